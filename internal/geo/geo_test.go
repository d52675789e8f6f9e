// internal/geo/geo_test.go
package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	sf := Coordinate{Latitude: 37.7749, Longitude: -122.4194}

	assert.Zero(t, Distance(sf, sf))

	// Roughly one degree of latitude is 111 km.
	north := Coordinate{Latitude: 38.7749, Longitude: -122.4194}
	d := Distance(sf, north)
	assert.InDelta(t, 111195, d, 200)

	// Symmetric.
	assert.InDelta(t, d, Distance(north, sf), 1e-9)
}

func TestInZone(t *testing.T) {
	center := Coordinate{Latitude: 37.7749, Longitude: -122.4194}

	// ~140 m northwest of center.
	near := Coordinate{Latitude: 37.7759, Longitude: -122.4204}
	assert.True(t, InZone(near, center, 500))
	assert.False(t, InZone(near, center, 100))

	assert.True(t, InZone(center, center, 0))
}
