package fleet

import (
	"fmt"
	"math"
)

const (
	earthRadiusMeters  = 6371000.0
	metersPerDegreeLat = 111320.0
)

// Location is a GeoJSON style point - coordinates are [longitude, latitude]
type Location struct {
	Type        string    `json:"type" groups:"basic,detailed"`
	Coordinates []float64 `json:"coordinates" groups:"basic,detailed"`
}

func NewLocation(lon float64, lat float64) *Location {
	return &Location{
		Type:        "Point",
		Coordinates: []float64{lon, lat},
	}
}

func (l *Location) Longitude() float64 {
	return l.Coordinates[0]
}

func (l *Location) Latitude() float64 {
	return l.Coordinates[1]
}

func (l *Location) Validate() error {
	if l == nil {
		return fmt.Errorf("%w: location missing", ErrInvalidGeometry)
	}

	if l.Type != "Point" {
		return fmt.Errorf("%w: type must be Point, got %q", ErrInvalidGeometry, l.Type)
	}

	if len(l.Coordinates) != 2 {
		return fmt.Errorf("%w: coordinates must contain exactly 2 values, got %d", ErrInvalidGeometry, len(l.Coordinates))
	}

	lon := l.Coordinates[0]
	lat := l.Coordinates[1]

	if math.IsNaN(lon) || math.IsInf(lon, 0) || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return fmt.Errorf("%w: coordinates must be finite", ErrInvalidGeometry)
	}

	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidGeometry, lon)
	}

	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidGeometry, lat)
	}

	return nil
}

// DistanceMeters returns the great-circle (haversine) distance between two points
func (l *Location) DistanceMeters(other *Location) float64 {
	lat1 := l.Latitude() * math.Pi / 180
	lat2 := other.Latitude() * math.Pi / 180
	dLat := (other.Latitude() - l.Latitude()) * math.Pi / 180
	dLon := (other.Longitude() - l.Longitude()) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

type BoundingBox struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// BoundingBox returns a rectangle guaranteed to contain every point within
// radiusMeters of the location. It over-approximates, never under.
func (l *Location) BoundingBox(radiusMeters float64) BoundingBox {
	dLat := radiusMeters / metersPerDegreeLat

	minLat := math.Max(l.Latitude()-dLat, -90)
	maxLat := math.Min(l.Latitude()+dLat, 90)

	// Longitude degrees shrink towards the poles, so size the span using the
	// latitude within the box that is closest to a pole
	extremeLat := math.Max(math.Abs(minLat), math.Abs(maxLat))
	cosLat := math.Cos(extremeLat * math.Pi / 180)

	var dLon float64
	if cosLat < 1e-6 {
		dLon = 360
	} else {
		dLon = radiusMeters / (metersPerDegreeLat * cosLat)
	}

	return BoundingBox{
		MinLatitude:  minLat,
		MaxLatitude:  maxLat,
		MinLongitude: l.Longitude() - dLon,
		MaxLongitude: l.Longitude() + dLon,
	}
}

func (b BoundingBox) Contains(l *Location) bool {
	lat := l.Latitude()
	lon := l.Longitude()

	if lat < b.MinLatitude || lat > b.MaxLatitude {
		return false
	}

	// The longitude span may extend past the antimeridian
	if lon >= b.MinLongitude && lon <= b.MaxLongitude {
		return true
	}
	if lon+360 >= b.MinLongitude && lon+360 <= b.MaxLongitude {
		return true
	}
	if lon-360 >= b.MinLongitude && lon-360 <= b.MaxLongitude {
		return true
	}

	return false
}
