package trailer

import (
	"fmt"

	"github.com/dargueta/bootswap"
	"github.com/dargueta/bootswap/fih"
)

// BootMagic is the 16-byte sentinel that closes every valid trailer. It is
// the little-endian encoding of four fixed words and is the sole authority
// for trailer validity: nothing beneath it is trusted until it reads GOOD.
var BootMagic = [MagicLen]byte{
	0x77, 0xC2, 0x95, 0xF3,
	0x60, 0xD2, 0xEF, 0x7F,
	0x35, 0x52, 0x50, 0x0F,
	0x2C, 0xB6, 0x79, 0x80,
}

// MagicState classifies the bytes read from a trailer's magic cell.
type MagicState int

const (
	// MagicGood means the cell matches BootMagic exactly.
	MagicGood MagicState = iota
	// MagicBad means the cell holds something that is neither the pattern
	// nor erased flash.
	MagicBad
	// MagicUnset means every byte of the cell still reads as erased.
	MagicUnset
	// MagicAny is a wildcard for lookup predicates; DecodeMagic never
	// returns it.
	MagicAny
)

func (s MagicState) String() string {
	switch s {
	case MagicGood:
		return "good"
	case MagicBad:
		return "bad"
	case MagicUnset:
		return "unset"
	case MagicAny:
		return "any"
	}
	return fmt.Sprintf("MagicState(%d)", int(s))
}

// Matches reports whether s satisfies the predicate state `want`, honoring
// the MagicAny wildcard.
func (s MagicState) Matches(want MagicState) bool {
	return want == MagicAny || s == want
}

// DecodeMagic classifies raw magic bytes. The GOOD comparison goes through
// the fault-hardened equality primitive: it touches every byte and yields
// the multi-bit success sentinel rather than a boolean. A comparison result
// that is neither the success nor the failure sentinel means a fault was
// injected; that is returned as ErrFaultDetected and the caller must treat
// it as fatal.
func DecodeMagic(raw []byte, erasedVal byte) (MagicState, error) {
	if len(raw) < MagicLen {
		return MagicBad, bootswap.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("magic needs %d bytes, got %d", MagicLen, len(raw)))
	}
	raw = raw[:MagicLen]

	switch result := fih.Eq(raw, BootMagic[:]); result {
	case fih.Success:
		return MagicGood, nil
	case fih.Failure:
		// fall through to the erased check below
	default:
		return MagicBad, bootswap.ErrFaultDetected.WithMessage(
			fmt.Sprintf("comparison returned %#08x", uint32(result)))
	}

	// The erased scan also runs to completion: classification must not
	// depend on where the first programmed byte happens to sit.
	erasedCount := 0
	for _, b := range raw {
		if b == erasedVal {
			erasedCount++
		}
	}
	if erasedCount == MagicLen {
		return MagicUnset, nil
	}
	return MagicBad, nil
}
