package trailer

import (
	"fmt"

	"github.com/dargueta/bootswap"
	"github.com/dargueta/bootswap/bootlog"
	"github.com/dargueta/bootswap/flash"
	"github.com/hashicorp/go-multierror"
)

// Oracle answers the one question the boot engine must ask before accepting
// a staged image: how large may the firmware payload be without colliding
// with the trailer? The answer depends on the upgrade strategy; apart from
// the status locator's probe list, this is the only strategy-dependent part
// of the trailer core.
type Oracle struct {
	Strategy bootswap.Strategy
	Params   Params

	Primary   flash.Area
	Secondary flash.Area
	Scratch   flash.Area
}

// MaxImageSize returns the exclusive upper bound on image bytes placed at
// the start of the slot. A geometry failure — a sector descriptor that
// cannot be obtained — is reported as 0: no image passes, and the caller's
// image-too-large path handles it, instead of an oversize image slipping
// through.
func (o *Oracle) MaxImageSize() uint32 {
	p := o.Params.withAreaAlign(o.Primary)
	slotSize := o.Primary.Size()

	switch o.Strategy {
	case bootswap.StrategySwapScratch:
		return o.scratchMaxSize(p)

	case bootswap.StrategySwapMove:
		// The image must stay clear of every sector that holds trailer
		// bytes, so the bound is the start of the sector containing the
		// first status entry.
		sector, err := o.Primary.SectorContaining(p.StatusOff(slotSize, false))
		if err != nil {
			bootlog.L().Warn("status sector lookup failed", "err", err)
			return 0
		}
		return sector.Offset

	case bootswap.StrategyOverwriteOnly,
		bootswap.StrategyDirectXIP,
		bootswap.StrategyRAMLoad:
		// No swap progress is ever recorded; only the swap-info field and
		// everything above it must stay image-free.
		return p.SwapInfoOff(slotSize)

	case bootswap.StrategySingleSlot, bootswap.StrategyFirmwareLoader:
		return p.StatusOff(slotSize, false)
	}

	bootlog.L().Warn("unknown upgrade strategy", "strategy", o.Strategy)
	return 0
}

// scratchMaxSize computes the bound for scratch-mediated swap. Beyond
// keeping the trailer's own sectors image-free, the last sector-pair
// operation must fit its scratch-side trailer — status for one operation
// plus the info fields — inside a single scratch sector. When the first
// sector containing trailer bytes in either slot cannot accommodate that
// shortened trailer, the image is pushed down to make room.
func (o *Oracle) scratchMaxSize(p Params) uint32 {
	trailerSize := p.TrailerSize()
	scratchTrailerSize := p.ScratchTrailerSize()
	slotTrailerOff := o.Primary.Size() - trailerSize

	primaryFirst, err := firstTrailerSector(o.Primary, trailerSize)
	if err != nil {
		bootlog.L().Warn("trailer does not fit in primary", "err", err)
		return 0
	}
	secondaryFirst, err := firstTrailerSector(o.Secondary, trailerSize)
	if err != nil {
		bootlog.L().Warn("trailer does not fit in secondary", "err", err)
		return 0
	}

	firstSectorEnd := primaryFirst.End()
	if secondaryFirst.End() > firstSectorEnd {
		firstSectorEnd = secondaryFirst.End()
	}

	trailerInFirstSector := firstSectorEnd - slotTrailerOff
	padding := uint32(0)
	if scratchTrailerSize > trailerInFirstSector {
		padding = scratchTrailerSize - trailerInFirstSector
	}
	return slotTrailerOff - padding
}

// firstTrailerSector finds the first sector, counting from the end of the
// area toward lower addresses, whose cumulative size reaches the trailer
// size; that is the first sector containing any trailer byte. Sector sizes
// may differ.
func firstTrailerSector(a flash.Area, trailerSize uint32) (flash.Sector, error) {
	accumulated := uint32(0)
	for index := a.SectorCount() - 1; index >= 0; index-- {
		sector, err := a.SectorAt(index)
		if err != nil {
			return flash.Sector{}, err
		}
		accumulated += sector.Size
		if accumulated >= trailerSize {
			return sector, nil
		}
	}
	return flash.Sector{}, bootswap.ErrGeometry.WithMessage(
		fmt.Sprintf("%s: %d-byte trailer exceeds the %d-byte area",
			a.ID(), trailerSize, a.Size()))
}

// Validate checks that the configured areas can carry the trailer layout at
// all, reporting every violation at once. The boot engine runs this once at
// startup; MaxImageSize assumes it passed.
func (o *Oracle) Validate() error {
	var result *multierror.Error

	if o.Primary == nil {
		return bootswap.ErrInvalidArgument.WithMessage("oracle has no primary area")
	}
	p := o.Params.withAreaAlign(o.Primary)

	if p.TrailerSize() > o.Primary.Size() {
		result = multierror.Append(result, bootswap.ErrGeometry.WithMessage(
			fmt.Sprintf("trailer (%d bytes) exceeds primary slot (%d bytes)",
				p.TrailerSize(), o.Primary.Size())))
	}

	needSecondary := o.Strategy == bootswap.StrategySwapScratch ||
		o.Strategy == bootswap.StrategySwapMove
	if needSecondary {
		if o.Secondary == nil {
			result = multierror.Append(result, bootswap.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("%s requires a secondary slot", o.Strategy)))
		} else if o.Secondary.Size() != o.Primary.Size() {
			result = multierror.Append(result, bootswap.ErrGeometry.WithMessage(
				fmt.Sprintf("slot sizes differ: primary %d, secondary %d",
					o.Primary.Size(), o.Secondary.Size())))
		}
	}

	if o.Strategy.UsesScratch() {
		if o.Scratch == nil {
			result = multierror.Append(result, bootswap.ErrInvalidArgument.WithMessage(
				"swap-scratch requires a scratch area"))
		} else {
			// The scratch trailer must fit in the scratch area's last
			// sector. Room for the sector data swapped through it is not
			// checked here.
			last, err := o.Scratch.SectorAt(o.Scratch.SectorCount() - 1)
			if err != nil {
				result = multierror.Append(result, err)
			} else if p.ScratchTrailerSize() > last.Size {
				result = multierror.Append(result, bootswap.ErrGeometry.WithMessage(
					fmt.Sprintf("scratch trailer (%d bytes) exceeds scratch sector (%d bytes)",
						p.ScratchTrailerSize(), last.Size)))
			}
		}
	}

	return result.ErrorOrNil()
}

// withAreaAlign resolves the layout parameters against a concrete area, the
// same way New does for trailer I/O.
func (p Params) withAreaAlign(a flash.Area) Params {
	if a != nil {
		p.WriteAlign = a.WriteAlign()
		p.ErasedVal = a.ErasedVal()
	}
	return p
}
