package trailer

import (
	"fmt"

	"github.com/dargueta/bootswap"
	"github.com/dargueta/bootswap/bootlog"
)

// SwapInfo is the decoded content of the swap-info cell: the swap intent and
// the image number it applies to, packed into one byte on flash.
type SwapInfo struct {
	Type  bootswap.SwapType
	Image int
}

// EncodeSwapInfo packs the swap type into the low nibble and the image
// number into the high nibble.
func EncodeSwapInfo(info SwapInfo) byte {
	return byte(info.Type)&0x0F | byte(info.Image)<<4
}

// DecodeSwapInfo unpacks a swap-info byte.
func DecodeSwapInfo(b byte) SwapInfo {
	return SwapInfo{
		Type:  bootswap.SwapType(b & 0x0F),
		Image: int(b >> 4),
	}
}

// State is a snapshot of every classification field of one trailer. Because
// a reset can interrupt the writer between any two fields, every combination
// of values can be observed; only a GOOD magic makes the rest trustworthy.
type State struct {
	Magic    MagicState
	Swap     SwapInfo
	CopyDone FlagState
	ImageOk  FlagState
}

// ReadState reads and classifies the magic, swap-info, copy-done, and
// image-ok fields in one pass.
func (t *Trailer) ReadState() (State, error) {
	var state State
	var err error

	if state.Magic, err = t.ReadMagic(); err != nil {
		return State{}, err
	}
	if state.Swap, err = t.ReadSwapInfo(); err != nil {
		return State{}, err
	}
	if state.CopyDone, err = t.ReadCopyDone(); err != nil {
		return State{}, err
	}
	if state.ImageOk, err = t.ReadImageOk(); err != nil {
		return State{}, err
	}
	return state, nil
}

////////////////////////////////////////////////////////////////////////////////
// Durable transitions
//
// Both transitions follow the ordering invariant: auxiliary fields first,
// magic last. A reset at any point leaves a prefix the readers tolerate.

// MarkPending requests an upgrade by completing the staged slot's trailer.
// With permanent set, the new image will not need to confirm itself after
// the swap.
func (t *Trailer) MarkPending(permanent bool) error {
	swapType := bootswap.SwapTest
	if permanent {
		swapType = bootswap.SwapPerm
	}
	image := t.area.ID().Image()
	if image < 0 {
		image = 0
	}
	info := SwapInfo{Type: swapType, Image: image}

	if err := t.WriteSwapInfo(info); err != nil {
		return err
	}
	if permanent {
		if err := t.WriteImageOk(); err != nil {
			return err
		}
	}
	if err := t.WriteMagic(); err != nil {
		return err
	}

	bootlog.L().Info("upgrade request recorded",
		"area", t.area.ID().String(), "swap", swapType.String())
	return nil
}

// MarkConfirmed makes the currently-running image permanent by setting its
// image-ok flag. A trailer whose magic has not been written yet (a
// permanent-upgrade slot after overwrite, for example) gets its magic
// completed as well, after the flag.
func (t *Trailer) MarkConfirmed() error {
	state, err := t.ReadState()
	if err != nil {
		return err
	}
	if state.Magic == MagicBad {
		return bootswap.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%s: trailer magic is bad", t.area.ID()))
	}
	if state.ImageOk == FlagBad {
		return bootswap.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%s: image-ok flag is bad", t.area.ID()))
	}

	if state.ImageOk == FlagUnset {
		if err := t.WriteImageOk(); err != nil {
			return err
		}
	}
	if state.Magic == MagicUnset {
		if err := t.WriteMagic(); err != nil {
			return err
		}
	}

	bootlog.L().Info("image confirmed", "area", t.area.ID().String())
	return nil
}
