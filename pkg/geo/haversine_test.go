package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	kathmandu := Point{Lat: 27.7172, Lon: 85.3240}
	pokhara := Point{Lat: 28.2096, Lon: 83.9856}

	assert.InDelta(t, 0, DistanceKm(kathmandu, kathmandu), 1e-9)
	assert.InDelta(t, 142.0, DistanceKm(kathmandu, pokhara), 3.0)
	assert.InDelta(t, DistanceKm(kathmandu, pokhara), DistanceKm(pokhara, kathmandu), 1e-9)
}

func TestWithin(t *testing.T) {
	kathmandu := Point{Lat: 27.7172, Lon: 85.3240}
	bhaktapur := Point{Lat: 27.6710, Lon: 85.4298}
	pokhara := Point{Lat: 28.2096, Lon: 83.9856}

	assert.True(t, Within(kathmandu, bhaktapur, 50))
	assert.False(t, Within(kathmandu, pokhara, 50))
}

func TestValid(t *testing.T) {
	assert.True(t, Point{Lat: 27.7, Lon: 85.3}.Valid())
	assert.False(t, Point{Lat: 91, Lon: 0}.Valid())
}
