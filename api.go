package bootswap

import "fmt"

////////////////////////////////////////////////////////////////////////////////
// Upgrade strategies

// Strategy identifies how the outer boot engine moves a staged image into the
// executable slot. The trailer bookkeeping core is strategy-agnostic except
// for the status locator's probe list and the max-image-size oracle, which
// dispatch on this value.
type Strategy int

const (
	// StrategySwapScratch swaps the primary and secondary slots sector by
	// sector, buffering one sector pair at a time through a dedicated scratch
	// partition.
	StrategySwapScratch Strategy = iota
	// StrategySwapMove swaps the slots by moving every sector of the primary
	// up by one and then ratcheting the secondary across, using no scratch
	// partition.
	StrategySwapMove
	// StrategyOverwriteOnly copies the staged image over the primary slot
	// without preserving the old image. There is no revert.
	StrategyOverwriteOnly
	// StrategyDirectXIP executes whichever slot holds the newest valid image
	// in place; nothing is ever copied.
	StrategyDirectXIP
	// StrategyRAMLoad copies the selected image into RAM and runs it there.
	StrategyRAMLoad
	// StrategySingleSlot has no secondary slot at all; upgrades arrive over a
	// recovery channel.
	StrategySingleSlot
	// StrategyFirmwareLoader boots a dedicated loader image that performs the
	// upgrade itself.
	StrategyFirmwareLoader
)

func (s Strategy) String() string {
	switch s {
	case StrategySwapScratch:
		return "swap-scratch"
	case StrategySwapMove:
		return "swap-move"
	case StrategyOverwriteOnly:
		return "overwrite-only"
	case StrategyDirectXIP:
		return "direct-xip"
	case StrategyRAMLoad:
		return "ram-load"
	case StrategySingleSlot:
		return "single-slot"
	case StrategyFirmwareLoader:
		return "firmware-loader"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// UsesScratch reports whether the strategy buffers swap progress through a
// scratch partition. Only those strategies include scratch in the status
// locator's probe list.
func (s Strategy) UsesScratch() bool {
	return s == StrategySwapScratch
}

////////////////////////////////////////////////////////////////////////////////
// Swap types

// SwapType is the intent tag recorded in a slot trailer before a swap starts.
// The values are the on-flash encoding and must never be renumbered.
type SwapType uint8

const (
	// SwapNone means no swap is requested or in progress.
	SwapNone SwapType = 0x01
	// SwapTest requests a one-shot swap: the new image must confirm itself
	// after boot or it is swapped back.
	SwapTest SwapType = 0x02
	// SwapPerm requests a permanent swap with no confirmation step.
	SwapPerm SwapType = 0x03
	// SwapRevert is the swap that undoes an unconfirmed test swap.
	SwapRevert SwapType = 0x04
	// SwapFail records that a swap was attempted and did not complete.
	SwapFail SwapType = 0x05
)

func (t SwapType) String() string {
	switch t {
	case SwapNone:
		return "none"
	case SwapTest:
		return "test"
	case SwapPerm:
		return "permanent"
	case SwapRevert:
		return "revert"
	case SwapFail:
		return "fail"
	}
	return fmt.Sprintf("SwapType(%#02x)", uint8(t))
}

// IsValid reports whether t is one of the defined on-flash swap types.
func (t SwapType) IsValid() bool {
	return t >= SwapNone && t <= SwapFail
}
