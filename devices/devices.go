// Package devices carries a catalog of known flash part geometries, used by
// host tooling and tests to get realistic write alignments, erased values,
// and sector layouts without hand-typing them.
package devices

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/dargueta/bootswap/flash"
	"github.com/dargueta/bootswap/trailer"
)

// FlashGeometry describes one flash part (or one bank of it) as the trailer
// core sees it: write granularity, erased-cell value, and erase-sector
// layout.
type FlashGeometry struct {
	Name   string `csv:"name"`
	Slug   string `csv:"slug"`
	Vendor string `csv:"vendor"`

	// WriteAlign gives the smallest number of contiguous bytes the part
	// accepts per program operation. Always a power of two.
	WriteAlign uint32 `csv:"write_align"`

	// ErasedValue is the value an erased cell reads back as. Usually 0xFF,
	// but not on every part.
	ErasedValue uint8 `csv:"erased_value"`

	// SectorSize and SectorCount describe the erase geometry. Catalog parts
	// have uniform sectors; heterogeneous layouts are built by hand.
	SectorSize  uint32 `csv:"sector_size"`
	SectorCount uint32 `csv:"sector_count"`

	Notes string `csv:"notes"`
}

// TotalSizeBytes gives the size of the described flash bank.
func (g *FlashGeometry) TotalSizeBytes() int64 {
	return int64(g.SectorSize) * int64(g.SectorCount)
}

// Sectors expands the geometry into an explicit sector table.
func (g *FlashGeometry) Sectors() []flash.Sector {
	sectors := make([]flash.Sector, g.SectorCount)
	for i := range sectors {
		sectors[i] = flash.Sector{
			Offset: uint32(i) * g.SectorSize,
			Size:   g.SectorSize,
		}
	}
	return sectors
}

// SlotSectors expands the geometry into a sector table for a slot of
// `sectorCount` sectors, the way a partition carved out of the part would
// see it.
func (g *FlashGeometry) SlotSectors(sectorCount int) []flash.Sector {
	sectors := make([]flash.Sector, sectorCount)
	for i := range sectors {
		sectors[i] = flash.Sector{
			Offset: uint32(i) * g.SectorSize,
			Size:   g.SectorSize,
		}
	}
	return sectors
}

// TrailerParams returns the layout parameters the part dictates; encryption
// choices are layered on by the caller.
func (g *FlashGeometry) TrailerParams() trailer.Params {
	return trailer.Params{
		WriteAlign: g.WriteAlign,
		ErasedVal:  g.ErasedValue,
	}
}

////////////////////////////////////////////////////////////////////////////////

//go:embed flash-geometries.csv
var flashGeometriesRawCSV string
var flashGeometries = map[string]FlashGeometry{}

// GetPredefinedGeometry looks up a catalog part by slug.
func GetPredefinedGeometry(slug string) (FlashGeometry, error) {
	geometry, ok := flashGeometries[slug]
	if ok {
		return geometry, nil
	}

	err := fmt.Errorf("no predefined flash geometry exists with slug %q", slug)
	return FlashGeometry{}, err
}

// Slugs lists every catalog part.
func Slugs() []string {
	slugs := make([]string, 0, len(flashGeometries))
	for slug := range flashGeometries {
		slugs = append(slugs, slug)
	}
	return slugs
}

func init() {
	reader := strings.NewReader(flashGeometriesRawCSV)
	err := gocsv.UnmarshalToCallback(
		reader,
		func(row FlashGeometry) error {
			_, exists := flashGeometries[row.Slug]
			if exists {
				return fmt.Errorf(
					"duplicate definition for flash part %q found on row %d",
					row.Slug,
					len(flashGeometries)+1,
				)
			}
			flashGeometries[row.Slug] = row
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(err)
	}
}
