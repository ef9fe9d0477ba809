// Package trailer implements the bookkeeping region at the tail of each
// firmware slot: the geometry of its fields, typed access to them through the
// flash abstraction, the post-reset status locator, and the per-strategy
// maximum-image-size oracle.
//
// The trailer grows backward from the end of the slot:
//
//	<status entries>          <-- grows upward toward the fields below
//	[<enc key/TLV slot 1>]
//	[<enc key/TLV slot 0>]
//	<swap type>
//	<copy done>
//	<image ok>
//	<swap size>
//	<magic>                   <-- end of the slot
//
// Every field sits at a multiple of the device's write alignment, and the
// magic is always the last field written in a durable transition: a GOOD
// magic vouches for everything beneath it.
package trailer

////////////////////////////////////////////////////////////////////////////////
// Fixed layout constants

const (
	// MagicLen is the length of the trailer magic pattern, before alignment
	// padding.
	MagicLen = 16

	// StatusStateCount is the number of progress markers recorded per
	// sector-pair operation: pre-swap, post-move, post-copy.
	StatusStateCount = 3

	// DefaultMaxEntries is the default number of status entries, one per
	// sector-pair operation the largest supported slot can need.
	DefaultMaxEntries = 128

	// EncKeyLen is the stored size of a bare encrypted image key.
	EncKeyLen = 16

	// EncTLVLen is the stored size of a full encrypted-key TLV.
	EncTLVLen = 48

	// DefaultErasedVal is the erased-cell value of typical NOR flash.
	DefaultErasedVal = 0xFF
)

////////////////////////////////////////////////////////////////////////////////
// Parameters

// Params fixes the trailer layout for one device configuration. Geometry
// methods are pure functions of these values; the zero value means 1-byte
// write alignment, DefaultMaxEntries status entries, and no encryption.
type Params struct {
	// WriteAlign is the device's minimum write size, a power of two. Zero is
	// treated as 1.
	WriteAlign uint32
	// MaxEntries is the maximum number of sector-pair operations a swap can
	// take; zero selects DefaultMaxEntries.
	MaxEntries uint32
	// EncryptImages reserves two key slots in the trailer.
	EncryptImages bool
	// SaveEncTLV stores the whole encrypted-key TLV in each slot instead of
	// the bare key. Only meaningful when EncryptImages is set.
	SaveEncTLV bool
	// ErasedVal is the value an erased flash cell reads back as. Trailers
	// bound to a flash area take this from the area itself.
	ErasedVal byte
}

func (p Params) writeAlign() uint32 {
	if p.WriteAlign == 0 {
		return 1
	}
	return p.WriteAlign
}

func (p Params) maxEntries() uint32 {
	if p.MaxEntries == 0 {
		return DefaultMaxEntries
	}
	return p.MaxEntries
}

// alignUp rounds size up to the next multiple of align. align must be a
// power of two.
func alignUp(size, align uint32) uint32 {
	return (size + align - 1) &^ (align - 1)
}

////////////////////////////////////////////////////////////////////////////////
// Field and region sizes

// MagicAlign returns the size of the magic cell: the 16-byte pattern rounded
// up to the write alignment.
func (p Params) MagicAlign() uint32 {
	return alignUp(MagicLen, p.writeAlign())
}

// MaxAlign returns the cell size of the single-value trailer fields: at
// least 8 bytes, or the write alignment when that is coarser.
func (p Params) MaxAlign() uint32 {
	if align := p.writeAlign(); align > 8 {
		return align
	}
	return 8
}

// EncAlign returns the cell size of one encryption key slot, or 0 when
// encryption is disabled.
func (p Params) EncAlign() uint32 {
	if !p.EncryptImages {
		return 0
	}
	if p.SaveEncTLV {
		return alignUp(EncTLVLen, p.writeAlign())
	}
	return alignUp(EncKeyLen, p.writeAlign())
}

// InfoSize returns the size of the fixed-field portion of the trailer: the
// optional key slots, the four aux fields, and the magic.
func (p Params) InfoSize() uint32 {
	return 2*p.EncAlign() + 4*p.MaxAlign() + p.MagicAlign()
}

// StatusEntrySize returns the on-flash size of one status entry.
func (p Params) StatusEntrySize() uint32 {
	return StatusStateCount * p.writeAlign()
}

// StatusSize returns the on-flash size of the full status-entry array.
func (p Params) StatusSize() uint32 {
	return p.maxEntries() * p.StatusEntrySize()
}

// TrailerSize returns the total trailer size in a slot.
func (p Params) TrailerSize() uint32 {
	return p.StatusSize() + p.InfoSize()
}

// ScratchTrailerSize returns the total trailer size in the scratch area,
// which holds status for exactly one sector-pair operation, never the full
// array.
func (p Params) ScratchTrailerSize() uint32 {
	return p.StatusEntrySize() + p.InfoSize()
}

////////////////////////////////////////////////////////////////////////////////
// Field offsets
//
// All offsets are relative to the start of an area of the given size.

// MagicOff returns the offset of the magic cell.
func (p Params) MagicOff(areaSize uint32) uint32 {
	return areaSize - p.MagicAlign()
}

// SwapSizeOff returns the offset of the swap-size field.
func (p Params) SwapSizeOff(areaSize uint32) uint32 {
	return p.MagicOff(areaSize) - p.MaxAlign()
}

// ImageOkOff returns the offset of the image-ok flag.
func (p Params) ImageOkOff(areaSize uint32) uint32 {
	return p.SwapSizeOff(areaSize) - p.MaxAlign()
}

// CopyDoneOff returns the offset of the copy-done flag.
func (p Params) CopyDoneOff(areaSize uint32) uint32 {
	return p.ImageOkOff(areaSize) - p.MaxAlign()
}

// SwapInfoOff returns the offset of the swap-info cell, which holds the
// packed swap type and image number.
func (p Params) SwapInfoOff(areaSize uint32) uint32 {
	return p.CopyDoneOff(areaSize) - p.MaxAlign()
}

// EncKeyOff returns the offset of encryption key slot s. The slots sit
// immediately below the lowest aux field, slot 0 first.
func (p Params) EncKeyOff(areaSize uint32, slot int) uint32 {
	return p.SwapInfoOff(areaSize) - uint32(slot+1)*p.EncAlign()
}

// StatusOff returns the offset of the first status entry. Scratch carries
// the shortened single-entry trailer.
func (p Params) StatusOff(areaSize uint32, scratch bool) uint32 {
	if scratch {
		return areaSize - p.ScratchTrailerSize()
	}
	return areaSize - p.TrailerSize()
}
