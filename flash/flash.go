// Package flash defines the flash-area abstraction the trailer bookkeeping
// core consumes. An Area is one partition of the flash device: it knows its
// own size, write alignment, and sector geometry, and exposes alignment-
// checked read/write/erase. The core never caches flash contents between
// calls; every read goes back to the device.
package flash

import (
	"fmt"

	"github.com/dargueta/bootswap"
)

////////////////////////////////////////////////////////////////////////////////
// Area identifiers

// ID identifies one flash area within the device's partition map. The
// numbering scheme is fixed: scratch is 0, and each image index owns a
// primary/secondary pair above it.
type ID uint8

// Scratch is the ID of the scratch partition, when one exists.
const Scratch ID = 0

// ImagePrimary returns the area ID of the primary (executable) slot for the
// given image index.
func ImagePrimary(image int) ID {
	return ID(1 + 2*image)
}

// ImageSecondary returns the area ID of the secondary (staging) slot for the
// given image index.
func ImageSecondary(image int) ID {
	return ID(2 + 2*image)
}

// Image returns the image index a slot ID belongs to, or -1 for scratch.
func (id ID) Image() int {
	if id == Scratch {
		return -1
	}
	return (int(id) - 1) / 2
}

func (id ID) String() string {
	if id == Scratch {
		return "scratch"
	}
	image := (int(id) - 1) / 2
	if id == ImagePrimary(image) {
		return fmt.Sprintf("image%d-primary", image)
	}
	return fmt.Sprintf("image%d-secondary", image)
}

////////////////////////////////////////////////////////////////////////////////
// Sectors

// Sector is one erase unit of an area. Offsets are relative to the start of
// the area, not the device. Sectors within one area may differ in size.
type Sector struct {
	Offset uint32
	Size   uint32
}

// End returns the offset of the first byte past the sector.
func (s Sector) End() uint32 {
	return s.Offset + s.Size
}

// Contains reports whether the given area-relative offset falls inside the
// sector.
func (s Sector) Contains(offset uint32) bool {
	return offset >= s.Offset && offset < s.End()
}

////////////////////////////////////////////////////////////////////////////////
// The area abstraction

// Area is an open handle to one flash partition. Handles are cheap values;
// the flash driver layer owns the storage behind them.
//
// Read, Write and Erase take offsets relative to the start of the area. All
// three are alignment-checked by the implementation: offsets and lengths must
// be multiples of WriteAlign, and erases must cover whole sectors. Reads
// after a write return the written value; reads of never-written cells return
// the erased value.
type Area interface {
	// ID returns the area's identifier in the partition map.
	ID() ID
	// Offset returns the area's absolute offset on the flash device.
	Offset() uint32
	// Size returns the area's total size in bytes.
	Size() uint32
	// WriteAlign returns the smallest number of contiguous bytes the device
	// accepts per write. Always a power of two, at least 1.
	WriteAlign() uint32
	// ErasedVal returns the byte value an erased cell reads back as.
	ErasedVal() byte

	Read(offset uint32, buf []byte) error
	Write(offset uint32, buf []byte) error
	Erase(offset uint32, length uint32) error

	// SectorCount returns the number of erase sectors in the area.
	SectorCount() int
	// SectorAt returns the sector with the given index, counting from the
	// start of the area.
	SectorAt(index int) (Sector, error)
	// SectorContaining returns the sector holding the given area-relative
	// offset.
	SectorContaining(offset uint32) (Sector, error)

	// Close releases the handle. Every successful open must be matched by
	// exactly one close.
	Close() error
}

////////////////////////////////////////////////////////////////////////////////
// Access checking helpers

// IsPowerOfTwo reports whether v is a nonzero power of two.
func IsPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

// CheckAccess validates the offset and length of a read or write against the
// area's bounds and write alignment.
func CheckAccess(a Area, offset uint32, length int) error {
	if length <= 0 {
		return bootswap.ErrInvalidArgument.WithMessage("zero-length access")
	}

	align := a.WriteAlign()
	if offset%align != 0 || uint32(length)%align != 0 {
		return bootswap.ErrAlignment.WithMessage(
			fmt.Sprintf(
				"access at %#x of %d bytes is not a multiple of %d",
				offset,
				length,
				align))
	}

	if uint64(offset)+uint64(length) > uint64(a.Size()) {
		return bootswap.ErrOutOfBounds.WithMessage(
			fmt.Sprintf(
				"access [%#x, %#x) not within area of %d bytes",
				offset,
				uint64(offset)+uint64(length),
				a.Size()))
	}
	return nil
}
