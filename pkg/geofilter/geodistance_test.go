package geofilter

import (
	"reflect"
	"testing"
)

func TestGeoDistanceParams_ThreeComponents(t *testing.T) {
	got := GeoDistanceParams("12km:45.0:-70.0", "loc")
	if got == nil {
		t.Fatalf("expected clause params")
	}
	if got["distance"] != "12km" {
		t.Fatalf("distance=%v want 12km", got["distance"])
	}
	point := got["loc"].(map[string]string)
	if point["lat"] != "45.0" || point["lon"] != "-70.0" {
		t.Fatalf("point=%v", point)
	}
	if got["distance_type"] != DefaultDistanceType {
		t.Fatalf("distance_type=%v want %q default", got["distance_type"], DefaultDistanceType)
	}
}

func TestGeoDistanceParams_FourComponents(t *testing.T) {
	got := GeoDistanceParams("12km:45.0:-70.0:plane", "loc")
	if got["distance_type"] != "plane" {
		t.Fatalf("distance_type=%v want plane", got["distance_type"])
	}
}

func TestGeoDistanceParams_TooFewComponents(t *testing.T) {
	if got := GeoDistanceParams("12km:45.0", "loc"); got != nil {
		t.Fatalf("two components must produce no clause, got %v", got)
	}
	if got := GeoDistanceParams("", "loc"); got != nil {
		t.Fatalf("empty value must produce no clause, got %v", got)
	}
}

func TestGeoDistanceParams_MaxThreeSplits(t *testing.T) {
	// extra delimiters stay inside the fourth component verbatim
	got := GeoDistanceParams("12km:45.0:-70.0:plane:extra", "loc")
	if got["distance_type"] != "plane:extra" {
		t.Fatalf("distance_type=%v want plane:extra", got["distance_type"])
	}
}

func TestGeoDistanceParams_OpaqueStrings(t *testing.T) {
	// no bounds validation; garbage passes through for downstream rejection
	got := GeoDistanceParams("far:north:west", "loc")
	want := map[string]string{"lat": "north", "lon": "west"}
	if !reflect.DeepEqual(got["loc"], want) {
		t.Fatalf("point=%v want %v", got["loc"], want)
	}
}
