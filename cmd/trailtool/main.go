// trailtool inspects and seeds the upgrade trailers of slot image files on a
// development host. It is tooling around the core, not part of the firmware.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	deviceFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "device",
			Usage: "catalog slug of the flash part (see `trailtool devices`)",
		},
		&cli.UintFlag{
			Name:  "align",
			Usage: "write alignment in bytes; overrides --device",
		},
		&cli.UintFlag{
			Name:  "erased",
			Value: 0xFF,
			Usage: "erased-cell value; overridden by --device",
		},
		&cli.UintFlag{
			Name:  "entries",
			Value: 128,
			Usage: "maximum swap status entries",
		},
		&cli.BoolFlag{
			Name:  "enc",
			Usage: "reserve encryption key slots in the trailer",
		},
		&cli.BoolFlag{
			Name:  "enc-tlv",
			Usage: "key slots store the whole key TLV instead of a bare key",
		},
	}

	app := cli.App{
		Name:  "trailtool",
		Usage: "Inspect and seed firmware slot trailers",
		Commands: []*cli.Command{
			{
				Name:      "layout",
				Usage:     "Print the trailer layout for a slot",
				Action:    printLayout,
				ArgsUsage: " ",
				Flags: append([]cli.Flag{
					&cli.UintFlag{
						Name:  "slot-size",
						Value: 0x20000,
						Usage: "slot size in bytes",
					},
				}, deviceFlags...),
			},
			{
				Name:      "dump",
				Usage:     "Decode the trailer of a slot image file",
				Action:    dumpImage,
				ArgsUsage: "IMAGE_FILE",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "scratch",
						Usage: "treat the image as a scratch partition",
					},
				}, deviceFlags...),
			},
			{
				Name:      "seed",
				Usage:     "Write a trailer into a slot image file",
				Action:    seedImage,
				ArgsUsage: "IMAGE_FILE",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{Name: "magic", Usage: "write the boot magic"},
					&cli.BoolFlag{Name: "copy-done"},
					&cli.BoolFlag{Name: "image-ok"},
					&cli.StringFlag{
						Name:  "swap-type",
						Usage: "none, test, permanent, revert, or fail",
					},
					&cli.UintFlag{
						Name:  "image",
						Usage: "image number packed into the swap-info byte",
					},
					&cli.Int64Flag{
						Name:  "swap-size",
						Value: -1,
						Usage: "swap size to record; -1 leaves the field erased",
					},
				}, deviceFlags...),
			},
			{
				Name:      "devices",
				Usage:     "List the flash parts in the geometry catalog",
				Action:    listDevices,
				ArgsUsage: " ",
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}
