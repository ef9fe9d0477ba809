// Package testing provides shared fixtures for the bootswap test suites:
// simulated flash areas and slot images pre-seeded with trailers in chosen
// states.
package testing

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/bootswap/flash"
	"github.com/dargueta/bootswap/trailer"
)

// UniformSectors builds a sector table of `count` equally-sized sectors.
func UniformSectors(sectorSize uint32, count int) []flash.Sector {
	sectors := make([]flash.Sector, count)
	for i := range sectors {
		sectors[i] = flash.Sector{Offset: uint32(i) * sectorSize, Size: sectorSize}
	}
	return sectors
}

// NewSimArea creates a simulated area over freshly-erased backing storage.
// It is guaranteed to either return a valid area or fail the test.
func NewSimArea(
	t *testing.T,
	id flash.ID,
	writeAlign uint32,
	erasedVal byte,
	sectors []flash.Sector,
) *flash.Sim {
	t.Helper()

	size := uint32(0)
	for _, sector := range sectors {
		size = sector.End()
	}
	backing := bytes.Repeat([]byte{erasedVal}, int(size))

	sim, err := flash.NewSim(
		id, 0, writeAlign, erasedVal, sectors,
		bytesextra.NewReadWriteSeeker(backing))
	require.NoErrorf(t, err, "failed to create sim area %s", id)
	return sim
}

// NewSeededArea creates a simulated area whose trailer info block is already
// populated according to `seed`, the way an interrupted upgrade would have
// left it. The seed is applied to the backing bytes before the sim scans
// them, so the area's program-state tracking matches a device that was
// really written that way.
func NewSeededArea(
	t *testing.T,
	id flash.ID,
	writeAlign uint32,
	erasedVal byte,
	sectors []flash.Sector,
	p trailer.Params,
	seed trailer.InfoSeed,
) *flash.Sim {
	t.Helper()

	size := uint32(0)
	for _, sector := range sectors {
		size = sector.End()
	}
	backing := bytes.Repeat([]byte{erasedVal}, int(size))

	p.WriteAlign = writeAlign
	p.ErasedVal = erasedVal
	infoOff := size - p.InfoSize()
	require.NoError(t, trailer.EncodeInfo(p, backing[infoOff:], seed))

	sim, err := flash.NewSim(
		id, 0, writeAlign, erasedVal, sectors,
		bytesextra.NewReadWriteSeeker(backing))
	require.NoErrorf(t, err, "failed to create seeded area %s", id)
	return sim
}

// NewSlotMap wires a primary/secondary/scratch trio into a flash map. Areas
// may be nil to leave them out of the map.
func NewSlotMap(t *testing.T, areas ...flash.Area) *flash.Map {
	t.Helper()

	m := flash.NewMap()
	for _, area := range areas {
		if area == nil {
			continue
		}
		require.NoError(t, m.Add(area))
	}
	require.NoError(t, m.Validate())
	return m
}
