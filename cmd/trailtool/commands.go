package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/bootswap"
	"github.com/dargueta/bootswap/devices"
	"github.com/dargueta/bootswap/flash"
	"github.com/dargueta/bootswap/trailer"
)

// resolveParams turns the device/alignment flags into trailer parameters.
func resolveParams(context *cli.Context) (trailer.Params, error) {
	params := trailer.Params{
		WriteAlign: uint32(context.Uint("align")),
		ErasedVal:  byte(context.Uint("erased")),
		MaxEntries: uint32(context.Uint("entries")),
	}

	if slug := context.String("device"); slug != "" {
		geometry, err := devices.GetPredefinedGeometry(slug)
		if err != nil {
			return trailer.Params{}, err
		}
		if params.WriteAlign == 0 {
			params.WriteAlign = geometry.WriteAlign
		}
		params.ErasedVal = geometry.ErasedValue
	}
	if params.WriteAlign == 0 {
		params.WriteAlign = 8
	}
	if !flash.IsPowerOfTwo(params.WriteAlign) {
		return trailer.Params{}, fmt.Errorf(
			"write alignment %d is not a power of two", params.WriteAlign)
	}

	params.EncryptImages = context.Bool("enc")
	params.SaveEncTLV = context.Bool("enc-tlv")
	return params, nil
}

func printLayout(context *cli.Context) error {
	params, err := resolveParams(context)
	if err != nil {
		return err
	}
	slotSize := uint32(context.Uint("slot-size"))
	if params.TrailerSize() > slotSize {
		return fmt.Errorf(
			"trailer (%s) does not fit in a %s slot",
			humanize.IBytes(uint64(params.TrailerSize())),
			humanize.IBytes(uint64(slotSize)))
	}

	fmt.Printf("slot size:        %#x (%s)\n",
		slotSize, humanize.IBytes(uint64(slotSize)))
	fmt.Printf("write alignment:  %d\n", params.WriteAlign)
	fmt.Printf("trailer size:     %#x (%s)\n",
		params.TrailerSize(), humanize.IBytes(uint64(params.TrailerSize())))
	fmt.Printf("scratch trailer:  %#x\n", params.ScratchTrailerSize())
	fmt.Println()

	fmt.Printf("%-12s %-10s %s\n", "FIELD", "OFFSET", "SIZE")
	fmt.Printf("%-12s %#-10x %d\n", "magic", params.MagicOff(slotSize), params.MagicAlign())
	fmt.Printf("%-12s %#-10x %d\n", "swap-size", params.SwapSizeOff(slotSize), params.MaxAlign())
	fmt.Printf("%-12s %#-10x %d\n", "image-ok", params.ImageOkOff(slotSize), params.MaxAlign())
	fmt.Printf("%-12s %#-10x %d\n", "copy-done", params.CopyDoneOff(slotSize), params.MaxAlign())
	fmt.Printf("%-12s %#-10x %d\n", "swap-info", params.SwapInfoOff(slotSize), params.MaxAlign())
	if params.EncryptImages {
		for slot := 0; slot < 2; slot++ {
			fmt.Printf("enc-key-%-4d %#-10x %d\n",
				slot, params.EncKeyOff(slotSize, slot), params.EncAlign())
		}
	}
	fmt.Printf("%-12s %#-10x %d\n", "status",
		params.StatusOff(slotSize, false), params.StatusSize())
	return nil
}

// openImageArea wraps an image file's bytes in a simulated flash area so the
// trailer accessors can read it the way the bootloader would.
func openImageArea(data []byte, params trailer.Params, scratch bool) (*flash.Sim, error) {
	if len(data) == 0 || uint32(len(data))%params.WriteAlign != 0 {
		return nil, fmt.Errorf(
			"image size %d is not a multiple of the %d-byte write alignment",
			len(data), params.WriteAlign)
	}

	id := flash.ImagePrimary(0)
	if scratch {
		id = flash.Scratch
	}
	return flash.NewSim(
		id, 0, params.WriteAlign, params.ErasedVal,
		[]flash.Sector{{Offset: 0, Size: uint32(len(data))}},
		bytesextra.NewReadWriteSeeker(data))
}

func dumpImage(context *cli.Context) error {
	if context.NArg() != 1 {
		return fmt.Errorf("expected exactly one image file argument")
	}
	params, err := resolveParams(context)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(context.Args().Get(0))
	if err != nil {
		return err
	}
	area, err := openImageArea(data, params, context.Bool("scratch"))
	if err != nil {
		return err
	}

	tr := trailer.New(area, params)
	state, err := tr.ReadState()
	if err != nil {
		return err
	}

	fmt.Printf("image:      %s (%s)\n",
		context.Args().Get(0), humanize.IBytes(uint64(len(data))))
	fmt.Printf("magic:      %s\n", state.Magic)
	fmt.Printf("swap-type:  %s (image %d)\n", state.Swap.Type, state.Swap.Image)
	fmt.Printf("copy-done:  %s\n", state.CopyDone)
	fmt.Printf("image-ok:   %s\n", state.ImageOk)

	if state.Magic == trailer.MagicGood {
		swapSize, err := tr.ReadSwapSize()
		if err != nil {
			return err
		}
		fmt.Printf("swap-size:  %d\n", swapSize)
	}

	index, phase, err := tr.ReadStatus()
	if err != nil {
		return err
	}
	if index < 0 {
		fmt.Println("progress:   none")
	} else {
		fmt.Printf("progress:   operation %d, phase %d\n", index, phase)
	}
	return nil
}

func seedImage(context *cli.Context) error {
	if context.NArg() != 1 {
		return fmt.Errorf("expected exactly one image file argument")
	}
	params, err := resolveParams(context)
	if err != nil {
		return err
	}

	seed := trailer.InfoSeed{
		Magic:    context.Bool("magic"),
		CopyDone: context.Bool("copy-done"),
		ImageOk:  context.Bool("image-ok"),
		Image:    int(context.Uint("image")),
	}
	if name := context.String("swap-type"); name != "" {
		seed.SwapType, err = parseSwapType(name)
		if err != nil {
			return err
		}
	}
	if size := context.Int64("swap-size"); size >= 0 {
		seed.SwapSize = uint32(size)
		seed.HasSwapSize = true
	}

	path := context.Args().Get(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if uint32(len(data)) < params.InfoSize() {
		return fmt.Errorf(
			"image is smaller than the %d-byte trailer info block",
			params.InfoSize())
	}

	infoOff := uint32(len(data)) - params.InfoSize()
	if err := trailer.EncodeInfo(params, data[infoOff:], seed); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func parseSwapType(name string) (bootswap.SwapType, error) {
	for _, swapType := range []bootswap.SwapType{
		bootswap.SwapNone,
		bootswap.SwapTest,
		bootswap.SwapPerm,
		bootswap.SwapRevert,
		bootswap.SwapFail,
	} {
		if swapType.String() == name {
			return swapType, nil
		}
	}
	return 0, fmt.Errorf("unknown swap type %q", name)
}

func listDevices(*cli.Context) error {
	slugs := devices.Slugs()
	sort.Strings(slugs)

	fmt.Printf("%-18s %-8s %-8s %-10s %s\n",
		"SLUG", "ALIGN", "ERASED", "SIZE", "NAME")
	for _, slug := range slugs {
		geometry, err := devices.GetPredefinedGeometry(slug)
		if err != nil {
			return err
		}
		fmt.Printf("%-18s %-8d %#-8x %-10s %s\n",
			slug,
			geometry.WriteAlign,
			geometry.ErasedValue,
			humanize.IBytes(uint64(geometry.TotalSizeBytes())),
			geometry.Name)
	}
	return nil
}
