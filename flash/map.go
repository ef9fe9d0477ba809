package flash

import (
	"fmt"

	"github.com/dargueta/bootswap"
	"github.com/hashicorp/go-multierror"
)

// Opener hands out area handles by ID. The platform integration provides one;
// Map is the implementation used by tests and host tooling.
type Opener interface {
	Open(id ID) (Area, error)
}

// Map is a partition map: a fixed set of areas indexed by ID. The zero value
// is not usable; create one with NewMap.
type Map struct {
	areas map[ID]Area
}

func NewMap() *Map {
	return &Map{areas: make(map[ID]Area)}
}

// Add registers an area under its own ID. Registering two areas with the
// same ID is an error.
func (m *Map) Add(a Area) error {
	id := a.ID()
	if _, exists := m.areas[id]; exists {
		return bootswap.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("duplicate flash area %s", id))
	}
	m.areas[id] = a
	return nil
}

// Open implements Opener. Opening an unknown ID returns ErrNoArea.
func (m *Map) Open(id ID) (Area, error) {
	a, ok := m.areas[id]
	if !ok {
		return nil, bootswap.ErrNoArea.WithMessage(id.String())
	}
	if sim, ok := a.(*Sim); ok {
		sim.open()
	}
	return a, nil
}

// Validate checks the geometry of every registered area and reports all
// violations at once rather than stopping at the first.
func (m *Map) Validate() error {
	var result *multierror.Error

	for id, a := range m.areas {
		if !IsPowerOfTwo(a.WriteAlign()) {
			result = multierror.Append(result, bootswap.ErrGeometry.WithMessage(
				fmt.Sprintf("%s: write alignment %d is not a power of two",
					id, a.WriteAlign())))
		}

		count := a.SectorCount()
		if count == 0 {
			result = multierror.Append(result, bootswap.ErrGeometry.WithMessage(
				fmt.Sprintf("%s: empty sector table", id)))
			continue
		}

		// The sector table must tile [0, size) contiguously, and every
		// sector must hold a whole number of write units.
		expectedOffset := uint32(0)
		for i := 0; i < count; i++ {
			sector, err := a.SectorAt(i)
			if err != nil {
				result = multierror.Append(result, err)
				break
			}
			if sector.Offset != expectedOffset {
				result = multierror.Append(result, bootswap.ErrGeometry.WithMessage(
					fmt.Sprintf("%s: sector %d starts at %#x, expected %#x",
						id, i, sector.Offset, expectedOffset)))
			}
			if sector.Size == 0 || sector.Size%a.WriteAlign() != 0 {
				result = multierror.Append(result, bootswap.ErrGeometry.WithMessage(
					fmt.Sprintf("%s: sector %d size %d is not a multiple of %d",
						id, i, sector.Size, a.WriteAlign())))
			}
			expectedOffset = sector.End()
		}
		if expectedOffset != a.Size() {
			result = multierror.Append(result, bootswap.ErrGeometry.WithMessage(
				fmt.Sprintf("%s: sectors cover %d bytes, area is %d",
					id, expectedOffset, a.Size())))
		}
	}

	return result.ErrorOrNil()
}
