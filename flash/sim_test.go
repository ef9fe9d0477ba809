package flash_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/bootswap"
	"github.com/dargueta/bootswap/flash"
)

// newErasedSim builds a sim over freshly-erased storage with uniform sectors.
func newErasedSim(
	t *testing.T, align uint32, sectorSize uint32, sectorCount int,
) *flash.Sim {
	size := sectorSize * uint32(sectorCount)
	backing := bytes.Repeat([]byte{0xFF}, int(size))

	sectors := make([]flash.Sector, sectorCount)
	for i := range sectors {
		sectors[i] = flash.Sector{Offset: uint32(i) * sectorSize, Size: sectorSize}
	}

	sim, err := flash.NewSim(
		flash.ImagePrimary(0),
		0,
		align,
		0xFF,
		sectors,
		bytesextra.NewReadWriteSeeker(backing),
	)
	require.NoError(t, err)
	return sim
}

func TestSimReadBackAfterWrite(t *testing.T) {
	sim := newErasedSim(t, 8, 0x1000, 2)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, sim.Write(0x10, payload))

	readBack := make([]byte, 8)
	require.NoError(t, sim.Read(0x10, readBack))
	assert.Equal(t, payload, readBack)

	// Untouched cells still read as erased.
	require.NoError(t, sim.Read(0x18, readBack))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 8), readBack)
}

func TestSimRejectsMisalignedAccess(t *testing.T) {
	sim := newErasedSim(t, 8, 0x1000, 1)

	err := sim.Write(3, make([]byte, 8))
	assert.ErrorIs(t, err, bootswap.ErrAlignment, "misaligned offset accepted")

	err = sim.Write(0, make([]byte, 5))
	assert.ErrorIs(t, err, bootswap.ErrAlignment, "misaligned length accepted")

	err = sim.Read(4, make([]byte, 8))
	assert.ErrorIs(t, err, bootswap.ErrAlignment)
}

func TestSimRejectsOutOfBounds(t *testing.T) {
	sim := newErasedSim(t, 8, 0x100, 1)

	err := sim.Write(0x100-8, make([]byte, 16))
	assert.ErrorIs(t, err, bootswap.ErrOutOfBounds)

	err = sim.Erase(0, 0x200)
	assert.ErrorIs(t, err, bootswap.ErrOutOfBounds)
}

func TestSimWriteOnce(t *testing.T) {
	sim := newErasedSim(t, 8, 0x1000, 2)

	require.NoError(t, sim.Write(0, make([]byte, 8)))
	err := sim.Write(0, make([]byte, 8))
	assert.ErrorIs(t, err, bootswap.ErrWriteOnce, "reprogramming without erase accepted")

	// After erasing the sector the same cell is writable again.
	require.NoError(t, sim.Erase(0, 0x1000))
	assert.NoError(t, sim.Write(0, make([]byte, 8)))
}

func TestSimEraseMustCoverWholeSectors(t *testing.T) {
	sim := newErasedSim(t, 8, 0x1000, 2)

	assert.ErrorIs(t, sim.Erase(8, 0x1000), bootswap.ErrAlignment)
	assert.ErrorIs(t, sim.Erase(0, 0x800), bootswap.ErrAlignment)
	assert.NoError(t, sim.Erase(0x1000, 0x1000))
	assert.NoError(t, sim.Erase(0, 0x2000))
}

func TestSimDetectsPreProgrammedCells(t *testing.T) {
	backing := bytes.Repeat([]byte{0xFF}, 0x1000)
	backing[0x20] = 0x55 // one already-programmed unit

	sim, err := flash.NewSim(
		flash.ImageSecondary(0),
		0,
		8,
		0xFF,
		[]flash.Sector{{Offset: 0, Size: 0x1000}},
		bytesextra.NewReadWriteSeeker(backing),
	)
	require.NoError(t, err)

	assert.ErrorIs(t, sim.Write(0x20, make([]byte, 8)), bootswap.ErrWriteOnce)
	assert.NoError(t, sim.Write(0x28, make([]byte, 8)))
}

func TestSimErasedValueIsConfigurable(t *testing.T) {
	backing := make([]byte, 0x100) // all zeroes
	sim, err := flash.NewSim(
		flash.Scratch,
		0,
		4,
		0x00,
		[]flash.Sector{{Offset: 0, Size: 0x100}},
		bytesextra.NewReadWriteSeeker(backing),
	)
	require.NoError(t, err)

	// All-zero storage counts as erased on a zero-erase device.
	assert.NoError(t, sim.Write(0, []byte{1, 2, 3, 4}))

	require.NoError(t, sim.Erase(0, 0x100))
	readBack := make([]byte, 4)
	require.NoError(t, sim.Read(0, readBack))
	assert.Equal(t, []byte{0, 0, 0, 0}, readBack)
}

func TestSimHeterogeneousSectors(t *testing.T) {
	sectors := []flash.Sector{
		{Offset: 0, Size: 0x8000},
		{Offset: 0x8000, Size: 0x1000},
		{Offset: 0x9000, Size: 0x1000},
	}
	backing := bytes.Repeat([]byte{0xFF}, 0xA000)
	sim, err := flash.NewSim(
		flash.ImagePrimary(0), 0, 8, 0xFF, sectors,
		bytesextra.NewReadWriteSeeker(backing))
	require.NoError(t, err)

	sector, err := sim.SectorContaining(0x8123)
	require.NoError(t, err)
	assert.EqualValues(t, 0x8000, sector.Offset)
	assert.EqualValues(t, 0x1000, sector.Size)

	_, err = sim.SectorContaining(0xA000)
	assert.ErrorIs(t, err, bootswap.ErrGeometry)

	last, err := sim.SectorAt(2)
	require.NoError(t, err)
	assert.EqualValues(t, 0xA000, last.End())

	_, err = sim.SectorAt(3)
	assert.ErrorIs(t, err, bootswap.ErrGeometry)
}

func TestSimRejectsBrokenSectorTable(t *testing.T) {
	backing := bytes.Repeat([]byte{0xFF}, 0x2000)

	// Gap between sectors.
	_, err := flash.NewSim(
		flash.ImagePrimary(0), 0, 8, 0xFF,
		[]flash.Sector{{Offset: 0, Size: 0x800}, {Offset: 0x1000, Size: 0x1000}},
		bytesextra.NewReadWriteSeeker(backing))
	assert.ErrorIs(t, err, bootswap.ErrGeometry)

	// Alignment that isn't a power of two.
	_, err = flash.NewSim(
		flash.ImagePrimary(0), 0, 12, 0xFF,
		[]flash.Sector{{Offset: 0, Size: 0x1800}},
		bytesextra.NewReadWriteSeeker(backing))
	assert.ErrorIs(t, err, bootswap.ErrInvalidArgument)
}

func TestSimJournalRecordsMutations(t *testing.T) {
	sim := newErasedSim(t, 8, 0x1000, 1)

	require.NoError(t, sim.Write(0x20, make([]byte, 8)))
	require.NoError(t, sim.Erase(0, 0x1000))
	require.NoError(t, sim.Write(0x40, make([]byte, 16)))

	journal := sim.Journal()
	require.Len(t, journal, 3)
	assert.Equal(t, flash.Op{Kind: flash.OpWrite, Offset: 0x20, Length: 8}, journal[0])
	assert.Equal(t, flash.Op{Kind: flash.OpErase, Offset: 0, Length: 0x1000}, journal[1])
	assert.Equal(t, flash.Op{Kind: flash.OpWrite, Offset: 0x40, Length: 16}, journal[2])

	sim.ResetJournal()
	assert.Empty(t, sim.Journal())
}

func TestSimInjectedFailures(t *testing.T) {
	sim := newErasedSim(t, 8, 0x1000, 1)

	cause := errors.New("bus fault")
	sim.FailNextRead(cause)
	err := sim.Read(0, make([]byte, 8))
	assert.ErrorIs(t, err, bootswap.ErrFlashIO)
	assert.ErrorIs(t, err, cause)

	// One-shot: the next read succeeds.
	assert.NoError(t, sim.Read(0, make([]byte, 8)))

	sim.FailNextWrite(cause)
	assert.ErrorIs(t, sim.Write(0, make([]byte, 8)), bootswap.ErrFlashIO)
	assert.NoError(t, sim.Write(0, make([]byte, 8)))
}

func TestMapOpenAndClose(t *testing.T) {
	sim := newErasedSim(t, 8, 0x1000, 1)
	m := flash.NewMap()
	require.NoError(t, m.Add(sim))

	assert.ErrorIs(t, m.Add(sim), bootswap.ErrInvalidArgument, "duplicate ID accepted")

	area, err := m.Open(flash.ImagePrimary(0))
	require.NoError(t, err)
	assert.Equal(t, 1, sim.OpenCount())
	require.NoError(t, area.Close())
	assert.Equal(t, 0, sim.OpenCount())

	assert.ErrorIs(t, area.Close(), bootswap.ErrAreaClosed, "unbalanced close accepted")

	_, err = m.Open(flash.Scratch)
	assert.ErrorIs(t, err, bootswap.ErrNoArea)
}

func TestMapValidateAggregatesViolations(t *testing.T) {
	m := flash.NewMap()
	require.NoError(t, m.Add(newErasedSim(t, 8, 0x1000, 2)))
	require.NoError(t, m.Validate())

	// brokenArea bypasses NewSim's checking to exercise Validate itself.
	m2 := flash.NewMap()
	require.NoError(t, m2.Add(brokenArea{}))
	err := m2.Validate()
	require.Error(t, err)
	// Both the alignment violation and the coverage violation are reported.
	assert.Contains(t, err.Error(), "power of two")
	assert.Contains(t, err.Error(), "cover")
}

// brokenArea is an Area with deliberately inconsistent geometry.
type brokenArea struct{}

func (brokenArea) ID() flash.ID                      { return flash.Scratch }
func (brokenArea) Offset() uint32                    { return 0 }
func (brokenArea) Size() uint32                      { return 0x2000 }
func (brokenArea) WriteAlign() uint32                { return 24 }
func (brokenArea) ErasedVal() byte                   { return 0xFF }
func (brokenArea) Read(uint32, []byte) error         { return nil }
func (brokenArea) Write(uint32, []byte) error        { return nil }
func (brokenArea) Erase(uint32, uint32) error        { return nil }
func (brokenArea) SectorCount() int                  { return 1 }
func (brokenArea) SectorAt(int) (flash.Sector, error) {
	return flash.Sector{Offset: 0, Size: 0x1000}, nil
}
func (brokenArea) SectorContaining(uint32) (flash.Sector, error) {
	return flash.Sector{}, nil
}
func (brokenArea) Close() error { return nil }
