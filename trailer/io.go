package trailer

import (
	"encoding/binary"
	"fmt"

	"github.com/dargueta/bootswap"
	"github.com/dargueta/bootswap/bootlog"
	"github.com/dargueta/bootswap/flash"
)

// FlagValue is the single meaningful byte of a written boolean trailer field.
const FlagValue = 0x01

// FlagState classifies a boolean trailer field (copy-done, image-ok).
type FlagState int

const (
	// FlagSet means the field holds the written flag value.
	FlagSet FlagState = iota
	// FlagUnset means the field still reads as erased flash.
	FlagUnset
	// FlagBad means the field holds neither.
	FlagBad
)

func (s FlagState) String() string {
	switch s {
	case FlagSet:
		return "set"
	case FlagUnset:
		return "unset"
	case FlagBad:
		return "bad"
	}
	return fmt.Sprintf("FlagState(%d)", int(s))
}

////////////////////////////////////////////////////////////////////////////////

// Trailer provides typed access to the bookkeeping region of one flash area.
// It holds no flash contents itself: every accessor goes straight to the
// device, so a Trailer can be kept across writes performed by other code.
type Trailer struct {
	area flash.Area
	p    Params
}

// New binds a Trailer to an open area. The write alignment and erased value
// always come from the area; the remaining layout choices come from p.
func New(area flash.Area, p Params) *Trailer {
	p.WriteAlign = area.WriteAlign()
	p.ErasedVal = area.ErasedVal()
	return &Trailer{area: area, p: p}
}

// Area returns the flash area the trailer is bound to.
func (t *Trailer) Area() flash.Area {
	return t.area
}

// Params returns the resolved layout parameters.
func (t *Trailer) Params() Params {
	return t.p
}

func (t *Trailer) isScratch() bool {
	return t.area.ID() == flash.Scratch
}

////////////////////////////////////////////////////////////////////////////////
// Magic

// ReadMagic reads and classifies the trailer magic.
func (t *Trailer) ReadMagic() (MagicState, error) {
	cell := make([]byte, t.p.MagicAlign())
	if err := t.area.Read(t.p.MagicOff(t.area.Size()), cell); err != nil {
		return MagicBad, err
	}
	return DecodeMagic(cell[:MagicLen], t.p.ErasedVal)
}

// WriteMagic writes the magic pattern, zero-padded to its cell size. It is
// the final write of any durable trailer transition; callers must have
// finished every other field first.
func (t *Trailer) WriteMagic() error {
	cell := make([]byte, t.p.MagicAlign())
	copy(cell, BootMagic[:])

	offset := t.p.MagicOff(t.area.Size())
	bootlog.L().Debug("writing trailer magic",
		"area", t.area.ID().String(), "off", offset)
	return t.area.Write(offset, cell)
}

////////////////////////////////////////////////////////////////////////////////
// Swap size

// ReadSwapSize reads the 32-bit total swap size recorded for the in-progress
// swap.
func (t *Trailer) ReadSwapSize() (uint32, error) {
	cell := make([]byte, t.p.MaxAlign())
	if err := t.area.Read(t.p.SwapSizeOff(t.area.Size()), cell); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(cell[:4]), nil
}

// WriteSwapSize records the total swap size: four little-endian bytes padded
// to the field cell with the erased value.
func (t *Trailer) WriteSwapSize(size uint32) error {
	cell := t.erasedCell(t.p.MaxAlign())
	binary.LittleEndian.PutUint32(cell[:4], size)
	return t.area.Write(t.p.SwapSizeOff(t.area.Size()), cell)
}

////////////////////////////////////////////////////////////////////////////////
// Boolean flags

// ReadCopyDone classifies the copy-done flag.
func (t *Trailer) ReadCopyDone() (FlagState, error) {
	return t.readFlag(t.p.CopyDoneOff(t.area.Size()))
}

// WriteCopyDone marks the image copy as complete.
func (t *Trailer) WriteCopyDone() error {
	return t.writeFlag(t.p.CopyDoneOff(t.area.Size()))
}

// ReadImageOk classifies the image-ok flag.
func (t *Trailer) ReadImageOk() (FlagState, error) {
	return t.readFlag(t.p.ImageOkOff(t.area.Size()))
}

// WriteImageOk confirms the running image so the next boot will not revert
// it.
func (t *Trailer) WriteImageOk() error {
	return t.writeFlag(t.p.ImageOkOff(t.area.Size()))
}

func (t *Trailer) readFlag(offset uint32) (FlagState, error) {
	cell := make([]byte, t.p.MaxAlign())
	if err := t.area.Read(offset, cell); err != nil {
		return FlagBad, err
	}
	// Only the first byte of the cell is significant.
	switch cell[0] {
	case FlagValue:
		return FlagSet, nil
	case t.p.ErasedVal:
		return FlagUnset, nil
	}
	return FlagBad, nil
}

func (t *Trailer) writeFlag(offset uint32) error {
	cell := t.erasedCell(t.p.MaxAlign())
	cell[0] = FlagValue
	return t.area.Write(offset, cell)
}

////////////////////////////////////////////////////////////////////////////////
// Swap info

// ReadSwapInfo reads the packed swap type and image number. An erased cell
// decodes as SwapNone for image 0, matching a slot that has never had a swap
// requested.
func (t *Trailer) ReadSwapInfo() (SwapInfo, error) {
	cell := make([]byte, t.p.MaxAlign())
	if err := t.area.Read(t.p.SwapInfoOff(t.area.Size()), cell); err != nil {
		return SwapInfo{}, err
	}
	if cell[0] == t.p.ErasedVal {
		return SwapInfo{Type: bootswap.SwapNone}, nil
	}
	return DecodeSwapInfo(cell[0]), nil
}

// WriteSwapInfo records the swap intent for the upcoming or in-progress
// swap.
func (t *Trailer) WriteSwapInfo(info SwapInfo) error {
	if !info.Type.IsValid() || info.Image < 0 || info.Image > 0x0F {
		return bootswap.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("swap info %v for image %d", info.Type, info.Image))
	}
	cell := t.erasedCell(t.p.MaxAlign())
	cell[0] = EncodeSwapInfo(info)
	return t.area.Write(t.p.SwapInfoOff(t.area.Size()), cell)
}

////////////////////////////////////////////////////////////////////////////////
// Status entries

// StatusOff returns the offset of the first status entry in the bound area.
func (t *Trailer) StatusOff() uint32 {
	return t.p.StatusOff(t.area.Size(), t.isScratch())
}

// EntryCount returns the number of status entries the bound area carries:
// one for scratch, the full array for a slot.
func (t *Trailer) EntryCount() int {
	if t.isScratch() {
		return 1
	}
	return int(t.p.maxEntries())
}

// StatusEntryOff returns the offset of one progress marker: entry `index`,
// phase `state` within it.
func (t *Trailer) StatusEntryOff(index, state int) (uint32, error) {
	if index < 0 || index >= t.EntryCount() ||
		state < 0 || state >= StatusStateCount {
		return 0, bootswap.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("status entry %d state %d not in [0, %d)x[0, %d)",
				index, state, t.EntryCount(), StatusStateCount))
	}
	unit := uint32(index*StatusStateCount + state)
	return t.StatusOff() + unit*t.p.writeAlign(), nil
}

// WriteStatus records one progress marker. The value occupies the first byte
// of a write unit; the rest is erased-value fill.
func (t *Trailer) WriteStatus(index, state int, value byte) error {
	offset, err := t.StatusEntryOff(index, state)
	if err != nil {
		return err
	}
	cell := t.erasedCell(t.p.writeAlign())
	cell[0] = value
	return t.area.Write(offset, cell)
}

// ReadStatus scans the status entries and returns the index and phase of the
// last written marker, or (-1, -1) when no marker has been written. The scan
// tolerates a trailing partial entry: a reset can land between any two
// marker writes.
func (t *Trailer) ReadStatus() (index int, state int, err error) {
	index, state = -1, -1
	cell := make([]byte, t.p.writeAlign())

	for i := 0; i < t.EntryCount(); i++ {
		for s := 0; s < StatusStateCount; s++ {
			offset, offErr := t.StatusEntryOff(i, s)
			if offErr != nil {
				return -1, -1, offErr
			}
			if readErr := t.area.Read(offset, cell); readErr != nil {
				return -1, -1, readErr
			}
			if cell[0] == t.p.ErasedVal {
				return index, state, nil
			}
			index, state = i, s
		}
	}
	return index, state, nil
}

// StatusEntries reports how many status markers the given area carries for
// the given image: the per-operation state count for scratch, the full array
// for the image's own slots, and -1 for any other area.
func StatusEntries(image int, a flash.Area, p Params) int {
	switch a.ID() {
	case flash.Scratch:
		return StatusStateCount
	case flash.ImagePrimary(image), flash.ImageSecondary(image):
		return int(p.maxEntries()) * StatusStateCount
	}
	return -1
}

////////////////////////////////////////////////////////////////////////////////

// erasedCell returns a field-sized buffer pre-filled with the erased value,
// so unused pad bytes leave their cells unprogrammed.
func (t *Trailer) erasedCell(size uint32) []byte {
	cell := make([]byte, size)
	for i := range cell {
		cell[i] = t.p.ErasedVal
	}
	return cell
}
