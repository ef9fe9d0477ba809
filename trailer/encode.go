package trailer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/bootswap"
)

// InfoSeed selects which trailer info fields EncodeInfo materializes. Fields
// left at their zero value stay erased, so a seed can describe any prefix of
// the durable write sequence.
type InfoSeed struct {
	// Magic writes the boot magic into the final cell.
	Magic bool
	// SwapType, when nonzero, fills the swap-info cell together with Image.
	SwapType bootswap.SwapType
	Image    int
	CopyDone bool
	ImageOk  bool
	// SwapSize is recorded only when HasSwapSize is set, because 0 is a
	// legitimate recorded size.
	SwapSize    uint32
	HasSwapSize bool
	// EncKeys holds per-slot key material; nil slots stay erased. Only
	// consulted when the layout has key slots.
	EncKeys [2][]byte
}

// EncodeInfo serializes a trailer info block into buf, which must be exactly
// p.InfoSize() bytes and represents the tail of a slot image. Host tooling
// and test fixtures use it to seed slot images with a trailer in any chosen
// state; on-device code writes fields through a Trailer instead, one flash
// cell at a time.
func EncodeInfo(p Params, buf []byte, seed InfoSeed) error {
	if uint32(len(buf)) != p.InfoSize() {
		return bootswap.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("info buffer must be %d bytes, got %d",
				p.InfoSize(), len(buf)))
	}

	writer := bytewriter.New(buf)
	erased := func(count uint32) []byte {
		return bytes.Repeat([]byte{p.ErasedVal}, int(count))
	}

	// Cells are emitted in ascending offset order: key slot 1, key slot 0,
	// swap info, copy done, image ok, swap size, magic.
	if p.EncryptImages {
		storedLen := EncKeyLen
		if p.SaveEncTLV {
			storedLen = EncTLVLen
		}
		for _, slot := range []int{1, 0} {
			material := seed.EncKeys[slot]
			if material == nil {
				writer.Write(erased(p.EncAlign()))
				continue
			}
			if len(material) != storedLen {
				return bootswap.ErrInvalidArgument.WithMessage(
					fmt.Sprintf("key slot %d material must be %d bytes, got %d",
						slot, storedLen, len(material)))
			}
			writer.Write(material)
			writer.Write(erased(p.EncAlign() - uint32(storedLen)))
		}
	}

	if seed.SwapType != 0 {
		writer.Write([]byte{EncodeSwapInfo(SwapInfo{
			Type:  seed.SwapType,
			Image: seed.Image,
		})})
		writer.Write(erased(p.MaxAlign() - 1))
	} else {
		writer.Write(erased(p.MaxAlign()))
	}

	for _, flag := range []bool{seed.CopyDone, seed.ImageOk} {
		if flag {
			writer.Write([]byte{FlagValue})
			writer.Write(erased(p.MaxAlign() - 1))
		} else {
			writer.Write(erased(p.MaxAlign()))
		}
	}

	if seed.HasSwapSize {
		binary.Write(writer, binary.LittleEndian, seed.SwapSize)
		writer.Write(erased(p.MaxAlign() - 4))
	} else {
		writer.Write(erased(p.MaxAlign()))
	}

	if seed.Magic {
		writer.Write(BootMagic[:])
		// The magic cell is zero-padded, unlike every other field.
		writer.Write(make([]byte, p.MagicAlign()-MagicLen))
	} else {
		writer.Write(erased(p.MagicAlign()))
	}

	return nil
}
