// Package invalidation defines the wire format for document-change events
// that expire cached search responses.
package invalidation

import (
	"errors"
	"fmt"
	"time"

	"github.com/arpitjain799/geofilterd/internal/model"
)

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// BBox is a lon/lat rectangle in EPSG:4326.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Event announces a change to a document in an index. The spatial footprint
// (point or bbox) determines which cached responses may be stale. Seq orders
// events per document; consumers ignore events at or below the last applied
// sequence.
type Event struct {
	Version int             `json:"version"`
	Op      string          `json:"op"`
	Index   string          `json:"index"`
	DocID   string          `json:"doc_id,omitempty"`
	Seq     uint64          `json:"seq"`
	TS      time.Time       `json:"ts,omitempty"`
	Point   *model.GeoPoint `json:"point,omitempty"`
	BBox    *BBox           `json:"bbox,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("unsupported event version %d", e.Version)
	}
	switch e.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return fmt.Errorf("unknown op %q", e.Op)
	}
	if e.Index == "" {
		return errors.New("missing index")
	}
	if e.Point == nil && e.BBox == nil {
		return errors.New("event has no spatial footprint")
	}
	if e.Point != nil {
		if e.Point.Lat < -90 || e.Point.Lat > 90 {
			return fmt.Errorf("latitude %v out of range", e.Point.Lat)
		}
		if e.Point.Lon < -180 || e.Point.Lon > 180 {
			return fmt.Errorf("longitude %v out of range", e.Point.Lon)
		}
	}
	if e.BBox != nil {
		b := e.BBox
		if b.X1 < -180 || b.X2 > 180 || b.Y1 < -90 || b.Y2 > 90 {
			return errors.New("bbox out of range")
		}
		if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
			return errors.New("bbox must satisfy x2>x1 and y2>y1")
		}
	}
	return nil
}

// DedupeKey identifies the event stream Seq orders. Events without a doc id
// share the per-index stream.
func (e Event) DedupeKey() string {
	if e.DocID == "" {
		return e.Index
	}
	return e.Index + "/" + e.DocID
}
