// Package h3map maps query geometry onto H3 cells for cache keying and
// invalidation.
package h3map

import (
	"fmt"
	"math"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/arpitjain799/geofilterd/internal/model"
)

// mean hexagon edge length in kilometers per resolution, used to size the
// grid disk covering a search radius
var edgeLengthKm = [16]float64{
	1107.71, 418.68, 158.24, 59.81, 22.61, 8.54, 3.23, 1.22,
	0.46, 0.17, 0.065, 0.025, 0.0094, 0.0035, 0.0013, 0.0005,
}

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// CellForPoint returns the cell containing the point at the resolution.
func (m *Mapper) CellForPoint(p model.GeoPoint, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat, Lng: p.Lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell for point: %w", err)
	}
	return cell.String(), nil
}

// CellsForCircle returns the cells covering a circle of the given radius
// around the point. The disk ring count is derived from the mean hexagon
// edge length at the resolution, so coverage errs on the generous side.
func (m *Mapper) CellsForCircle(p model.GeoPoint, radiusMeters float64, res int) (model.Cells, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	center, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat, Lng: p.Lon}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 cell for circle center: %w", err)
	}

	k := 0
	if radiusMeters > 0 {
		k = int(math.Ceil(radiusMeters / (edgeLengthKm[res] * 1000 * 1.5)))
	}

	cells, err := h3.GridDisk(center, k)
	if err != nil {
		return nil, fmt.Errorf("h3 grid disk (k=%d): %w", k, err)
	}
	return dedupeSorted(cells), nil
}

// CellsForBBox returns the cells covering a lon/lat bounding box.
func (m *Mapper) CellsForBBox(x1, y1, x2, y2 float64, res int) (model.Cells, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	outer := h3.GeoLoop{
		{Lat: y1, Lng: x1},
		{Lat: y1, Lng: x2},
		{Lat: y2, Lng: x2},
		{Lat: y2, Lng: x1},
	}
	poly := h3.GeoPolygon{GeoLoop: outer}
	cells, err := h3.PolygonToCells(poly, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	return dedupeSorted(cells), nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// unique cells, sorted for determinism
func dedupeSorted(cells []h3.Cell) model.Cells {
	out := make([]string, 0, len(cells))
	seen := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		s := c.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
