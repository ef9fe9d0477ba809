package trailer_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/bootswap/trailer"
)

var testedAlignments = []uint32{1, 2, 4, 8, 16, 32}

// Layout of a 128 KiB slot on an 8-byte-aligned device with no encryption.
func TestLayout8ByteAlignNoEnc(t *testing.T) {
	p := trailer.Params{WriteAlign: 8, MaxEntries: 128}
	const slotSize = 0x20000

	assert.EqualValues(t, 48, p.InfoSize(), "info size")
	assert.EqualValues(t, 3072, p.StatusSize(), "status size")
	assert.EqualValues(t, 3120, p.TrailerSize(), "trailer size")
	assert.EqualValues(t, 0x1F3D0, p.StatusOff(slotSize, false), "status offset")
	assert.EqualValues(t, 0x1FFF0, p.MagicOff(slotSize), "magic offset")
	assert.EqualValues(t, 0x1FFE8, p.SwapSizeOff(slotSize), "swap size offset")
}

// Layout on a 16-byte-aligned device with bare-key encryption slots.
func TestLayout16ByteAlignRawKeyEnc(t *testing.T) {
	p := trailer.Params{WriteAlign: 16, MaxEntries: 128, EncryptImages: true}

	assert.EqualValues(t, 16, p.MaxAlign())
	assert.EqualValues(t, 16, p.MagicAlign())
	assert.EqualValues(t, 16, p.EncAlign())
	assert.EqualValues(t, 112, p.InfoSize(), "info size")
}

func TestScratchTrailerHoldsOneEntry(t *testing.T) {
	p := trailer.Params{WriteAlign: 8, MaxEntries: 128}

	assert.EqualValues(
		t,
		p.StatusEntrySize()+p.InfoSize(),
		p.ScratchTrailerSize())
	assert.Less(t, p.ScratchTrailerSize(), p.TrailerSize())
}

func TestEncAlignPerStorageMode(t *testing.T) {
	raw := trailer.Params{WriteAlign: 4, EncryptImages: true}
	tlv := trailer.Params{WriteAlign: 4, EncryptImages: true, SaveEncTLV: true}
	off := trailer.Params{WriteAlign: 4}

	assert.EqualValues(t, 16, raw.EncAlign())
	assert.EqualValues(t, 48, tlv.EncAlign())
	assert.EqualValues(t, 0, off.EncAlign())

	// Coarse write units round the slot up.
	tlv32 := trailer.Params{WriteAlign: 32, EncryptImages: true, SaveEncTLV: true}
	assert.EqualValues(t, 64, tlv32.EncAlign())
}

func TestZeroValueParamsDefaults(t *testing.T) {
	var p trailer.Params

	// Write alignment 1, 128 entries, no encryption.
	assert.EqualValues(t, 16, p.MagicAlign())
	assert.EqualValues(t, 8, p.MaxAlign())
	assert.EqualValues(t, 3, p.StatusEntrySize())
	assert.EqualValues(t, 128*3, p.StatusSize())
	assert.EqualValues(t, 128*3+4*8+16, p.TrailerSize())
}

// Every field offset and every region size is a multiple of the write
// alignment, for every supported alignment and encryption mode.
func TestFieldAlignment(t *testing.T) {
	const slotSize = 0x40000

	for _, align := range testedAlignments {
		for _, mode := range []struct {
			name   string
			enc    bool
			encTLV bool
		}{
			{"no-enc", false, false},
			{"raw-key", true, false},
			{"enc-tlv", true, true},
		} {
			p := trailer.Params{
				WriteAlign:    align,
				EncryptImages: mode.enc,
				SaveEncTLV:    mode.encTLV,
			}
			label := fmt.Sprintf("align=%d mode=%s", align, mode.name)

			offsets := map[string]uint32{
				"magic":     p.MagicOff(slotSize),
				"swap-size": p.SwapSizeOff(slotSize),
				"image-ok":  p.ImageOkOff(slotSize),
				"copy-done": p.CopyDoneOff(slotSize),
				"swap-info": p.SwapInfoOff(slotSize),
				"status":    p.StatusOff(slotSize, false),
				"scratch":   p.StatusOff(slotSize, true),
			}
			if mode.enc {
				offsets["enc-key-0"] = p.EncKeyOff(slotSize, 0)
				offsets["enc-key-1"] = p.EncKeyOff(slotSize, 1)
			}
			for field, offset := range offsets {
				assert.Zerof(
					t, offset%align,
					"%s: field %s at %#x not aligned", label, field, offset)
			}

			assert.Zerof(t, p.TrailerSize()%align, "%s: trailer size", label)
			assert.Zerof(t, p.ScratchTrailerSize()%align,
				"%s: scratch trailer size", label)
			assert.Zerof(t, p.InfoSize()%align, "%s: info size", label)
		}
	}
}

// The byte ranges of all fields are pairwise disjoint and lie within
// [status offset, slot size).
func TestFieldNonOverlap(t *testing.T) {
	const slotSize = 0x40000

	type fieldRange struct {
		name  string
		start uint32
		size  uint32
	}

	for _, align := range testedAlignments {
		for _, encTLV := range []bool{false, true} {
			p := trailer.Params{
				WriteAlign:    align,
				EncryptImages: true,
				SaveEncTLV:    encTLV,
			}

			fields := []fieldRange{
				{"magic", p.MagicOff(slotSize), p.MagicAlign()},
				{"swap-size", p.SwapSizeOff(slotSize), p.MaxAlign()},
				{"image-ok", p.ImageOkOff(slotSize), p.MaxAlign()},
				{"copy-done", p.CopyDoneOff(slotSize), p.MaxAlign()},
				{"swap-info", p.SwapInfoOff(slotSize), p.MaxAlign()},
				{"enc-key-0", p.EncKeyOff(slotSize, 0), p.EncAlign()},
				{"enc-key-1", p.EncKeyOff(slotSize, 1), p.EncAlign()},
			}

			statusOff := p.StatusOff(slotSize, false)
			for i, f := range fields {
				require.GreaterOrEqualf(
					t, f.start, statusOff,
					"align=%d tlv=%v: field %s starts below the trailer",
					align, encTLV, f.name)
				require.LessOrEqualf(
					t, uint64(f.start)+uint64(f.size), uint64(slotSize),
					"align=%d tlv=%v: field %s extends past the slot",
					align, encTLV, f.name)

				for _, g := range fields[i+1:] {
					disjoint := f.start+f.size <= g.start || g.start+g.size <= f.start
					assert.Truef(
						t, disjoint,
						"align=%d tlv=%v: fields %s and %s overlap",
						align, encTLV, f.name, g.name)
				}
			}

			// The status array ends where the info fields begin.
			assert.EqualValues(
				t,
				p.EncKeyOff(slotSize, 1),
				statusOff+p.StatusSize(),
				"align=%d tlv=%v: gap between status array and info fields",
				align, encTLV)
		}
	}
}
