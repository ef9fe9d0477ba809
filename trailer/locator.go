package trailer

import (
	"errors"

	"github.com/dargueta/bootswap"
	"github.com/dargueta/bootswap/bootlog"
	"github.com/dargueta/bootswap/flash"
)

// FindStatus locates the area holding the most recent in-progress swap
// record for the given image after an unexpected reset.
//
// The probe order is fixed: scratch first (when the strategy uses one), then
// the primary slot. The secondary is never probed, because a swap's magic
// migrates to primary or scratch as the swap advances; a GOOD magic on the
// secondary only ever means "swap requested", not "swap in progress".
//
// On success the returned area handle is open and its closure is the
// caller's responsibility. On failure the returned area is always nil and
// every handle opened during the probe has been closed. When no probed
// partition carries a GOOD magic the error is ErrStatusNotFound.
func FindStatus(
	opener flash.Opener,
	strategy bootswap.Strategy,
	image int,
	p Params,
) (flash.Area, error) {
	probeOrder := make([]flash.ID, 0, 2)
	if strategy.UsesScratch() {
		probeOrder = append(probeOrder, flash.Scratch)
	}
	probeOrder = append(probeOrder, flash.ImagePrimary(image))

	for _, id := range probeOrder {
		area, err := opener.Open(id)
		if errors.Is(err, bootswap.ErrNoArea) && id == flash.Scratch {
			// The platform has no scratch partition; fall through to the
			// primary.
			continue
		}
		if err != nil {
			return nil, err
		}

		state, err := New(area, p).ReadMagic()
		if err != nil {
			// The probe failed, not the lookup: close what we opened and
			// surface the flash error unchanged.
			if closeErr := area.Close(); closeErr != nil {
				bootlog.L().Warn("close failed during status probe",
					"area", id.String(), "err", closeErr)
			}
			return nil, err
		}

		bootlog.L().Debug("status probe",
			"area", id.String(), "magic", state.String())

		if state.Matches(MagicGood) {
			return area, nil
		}
		if err := area.Close(); err != nil {
			return nil, err
		}
	}

	return nil, bootswap.ErrStatusNotFound
}
