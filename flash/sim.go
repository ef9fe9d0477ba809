package flash

import (
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/bootswap"
)

// OpKind distinguishes the mutating operations a Sim records in its journal.
type OpKind int

const (
	OpWrite OpKind = iota
	OpErase
)

// Op is one recorded mutation of a simulated area.
type Op struct {
	Kind   OpKind
	Offset uint32
	Length uint32
}

// Sim is a simulated flash area over an io.ReadWriteSeeker, used by the test
// suite and by host-side tooling that inspects slot image files. It enforces
// the device contract the real driver would: aligned accesses, whole-sector
// erases, and write-once-until-erase cells. A bitmap tracks which write units
// have been programmed since their sector was last erased; reprogramming one
// fails instead of silently AND-ing bits the way real NOR flash would.
type Sim struct {
	id         ID
	offset     uint32
	size       uint32
	writeAlign uint32
	erased     byte
	sectors    []Sector
	storage    io.ReadWriteSeeker

	programmed bitmap.Bitmap
	openCount  int
	journal    []Op

	nextReadErr  error
	nextWriteErr error
}

// NewSim creates a simulated area. `sectors` must tile the area contiguously
// from offset 0, and every sector size must be a multiple of `writeAlign`.
// The storage must hold at least as many bytes as the sectors cover; existing
// content is kept, and any write unit whose bytes are not all `erasedVal` is
// considered already programmed.
func NewSim(
	id ID,
	deviceOffset uint32,
	writeAlign uint32,
	erasedVal byte,
	sectors []Sector,
	storage io.ReadWriteSeeker,
) (*Sim, error) {
	if !IsPowerOfTwo(writeAlign) {
		return nil, bootswap.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("write alignment %d is not a power of two", writeAlign))
	}
	if len(sectors) == 0 {
		return nil, bootswap.ErrInvalidArgument.WithMessage("empty sector table")
	}

	size := uint32(0)
	for i, sector := range sectors {
		if sector.Offset != size {
			return nil, bootswap.ErrGeometry.WithMessage(
				fmt.Sprintf("sector %d starts at %#x, expected %#x",
					i, sector.Offset, size))
		}
		if sector.Size == 0 || sector.Size%writeAlign != 0 {
			return nil, bootswap.ErrGeometry.WithMessage(
				fmt.Sprintf("sector %d size %d is not a multiple of %d",
					i, sector.Size, writeAlign))
		}
		size = sector.End()
	}

	sim := &Sim{
		id:         id,
		offset:     deviceOffset,
		size:       size,
		writeAlign: writeAlign,
		erased:     erasedVal,
		sectors:    sectors,
		storage:    storage,
		programmed: bitmap.New(int(size / writeAlign)),
	}

	if err := sim.scanProgrammed(); err != nil {
		return nil, err
	}
	return sim, nil
}

// scanProgrammed derives the program-state bitmap from the current storage
// contents: a write unit counts as programmed when any of its bytes differs
// from the erased value.
func (sim *Sim) scanProgrammed() error {
	buf := make([]byte, sim.size)
	if err := sim.readAt(0, buf); err != nil {
		return err
	}

	units := int(sim.size / sim.writeAlign)
	for unit := 0; unit < units; unit++ {
		start := uint32(unit) * sim.writeAlign
		for _, b := range buf[start : start+sim.writeAlign] {
			if b != sim.erased {
				sim.programmed.Set(unit, true)
				break
			}
		}
	}
	return nil
}

func (sim *Sim) ID() ID             { return sim.id }
func (sim *Sim) Offset() uint32     { return sim.offset }
func (sim *Sim) Size() uint32       { return sim.size }
func (sim *Sim) WriteAlign() uint32 { return sim.writeAlign }
func (sim *Sim) ErasedVal() byte    { return sim.erased }

func (sim *Sim) Read(offset uint32, buf []byte) error {
	if err := CheckAccess(sim, offset, len(buf)); err != nil {
		return err
	}
	if sim.nextReadErr != nil {
		err := sim.nextReadErr
		sim.nextReadErr = nil
		return bootswap.ErrFlashIO.Wrap(err)
	}
	return sim.readAt(offset, buf)
}

func (sim *Sim) Write(offset uint32, buf []byte) error {
	if err := CheckAccess(sim, offset, len(buf)); err != nil {
		return err
	}
	if sim.nextWriteErr != nil {
		err := sim.nextWriteErr
		sim.nextWriteErr = nil
		return bootswap.ErrFlashIO.Wrap(err)
	}

	firstUnit := int(offset / sim.writeAlign)
	unitCount := len(buf) / int(sim.writeAlign)
	for unit := firstUnit; unit < firstUnit+unitCount; unit++ {
		if sim.programmed.Get(unit) {
			return bootswap.ErrWriteOnce.WithMessage(
				fmt.Sprintf("%s: write unit at %#x",
					sim.id, uint32(unit)*sim.writeAlign))
		}
	}

	if err := sim.writeAt(offset, buf); err != nil {
		return err
	}
	for unit := firstUnit; unit < firstUnit+unitCount; unit++ {
		sim.programmed.Set(unit, true)
	}
	sim.journal = append(sim.journal, Op{OpWrite, offset, uint32(len(buf))})
	return nil
}

// Erase resets whole sectors to the erased value. The range must begin at a
// sector boundary and end exactly at the end of a sector.
func (sim *Sim) Erase(offset uint32, length uint32) error {
	if length == 0 {
		return bootswap.ErrInvalidArgument.WithMessage("zero-length erase")
	}

	end := uint64(offset) + uint64(length)
	if end > uint64(sim.size) {
		return bootswap.ErrOutOfBounds.WithMessage(
			fmt.Sprintf("erase [%#x, %#x) not within area of %d bytes",
				offset, end, sim.size))
	}

	covered := uint32(0)
	for _, sector := range sim.sectors {
		if sector.Offset < offset || sector.End() > uint32(end) {
			continue
		}
		covered += sector.Size
	}
	if covered != length {
		return bootswap.ErrAlignment.WithMessage(
			fmt.Sprintf("erase [%#x, %#x) does not cover whole sectors",
				offset, end))
	}

	fill := make([]byte, length)
	for i := range fill {
		fill[i] = sim.erased
	}
	if err := sim.writeAt(offset, fill); err != nil {
		return err
	}

	firstUnit := int(offset / sim.writeAlign)
	unitCount := int(length / sim.writeAlign)
	for unit := firstUnit; unit < firstUnit+unitCount; unit++ {
		sim.programmed.Set(unit, false)
	}
	sim.journal = append(sim.journal, Op{OpErase, offset, length})
	return nil
}

func (sim *Sim) SectorCount() int {
	return len(sim.sectors)
}

func (sim *Sim) SectorAt(index int) (Sector, error) {
	if index < 0 || index >= len(sim.sectors) {
		return Sector{}, bootswap.ErrGeometry.WithMessage(
			fmt.Sprintf("sector index %d not in [0, %d)", index, len(sim.sectors)))
	}
	return sim.sectors[index], nil
}

func (sim *Sim) SectorContaining(offset uint32) (Sector, error) {
	for _, sector := range sim.sectors {
		if sector.Contains(offset) {
			return sector, nil
		}
	}
	return Sector{}, bootswap.ErrGeometry.WithMessage(
		fmt.Sprintf("no sector contains offset %#x", offset))
}

func (sim *Sim) Close() error {
	if sim.openCount <= 0 {
		return bootswap.ErrAreaClosed.WithMessage(sim.id.String())
	}
	sim.openCount--
	return nil
}

func (sim *Sim) open() {
	sim.openCount++
}

////////////////////////////////////////////////////////////////////////////////
// Test hooks

// OpenCount returns the number of handles currently open on the area. Tests
// use it to assert that every open was matched by a close.
func (sim *Sim) OpenCount() int {
	return sim.openCount
}

// Journal returns the mutations recorded since the last ResetJournal, in
// order. Tests use it to assert write ordering, e.g. that the magic write is
// the final write of a durable transition.
func (sim *Sim) Journal() []Op {
	return sim.journal
}

func (sim *Sim) ResetJournal() {
	sim.journal = sim.journal[:0]
}

// FailNextRead makes the next Read return ErrFlashIO wrapping err, then
// clears itself.
func (sim *Sim) FailNextRead(err error) {
	sim.nextReadErr = err
}

// FailNextWrite makes the next Write return ErrFlashIO wrapping err, then
// clears itself.
func (sim *Sim) FailNextWrite(err error) {
	sim.nextWriteErr = err
}

////////////////////////////////////////////////////////////////////////////////

func (sim *Sim) readAt(offset uint32, buf []byte) error {
	if _, err := sim.storage.Seek(int64(offset), io.SeekStart); err != nil {
		return bootswap.ErrFlashIO.Wrap(err)
	}
	if _, err := io.ReadFull(sim.storage, buf); err != nil {
		return bootswap.ErrFlashIO.Wrap(err)
	}
	return nil
}

func (sim *Sim) writeAt(offset uint32, buf []byte) error {
	if _, err := sim.storage.Seek(int64(offset), io.SeekStart); err != nil {
		return bootswap.ErrFlashIO.Wrap(err)
	}
	if _, err := sim.storage.Write(buf); err != nil {
		return bootswap.ErrFlashIO.Wrap(err)
	}
	return nil
}
