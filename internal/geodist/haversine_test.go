package geodist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine_ZeroAtIdentity(t *testing.T) {
	assert.Zero(t, Haversine(1.3521, 103.8198, 1.3521, 103.8198))
}

func TestHaversine_Symmetric(t *testing.T) {
	a := Haversine(1.3521, 103.8198, 1.2905, 103.8520)
	b := Haversine(1.2905, 103.8520, 1.3521, 103.8198)
	assert.InDelta(t, a, b, 1e-12)
}

func TestHaversine_KnownDistance(t *testing.T) {
	// Singapore city hall to Johor Bahru, roughly 20 km.
	d := Haversine(1.2931, 103.8520, 1.4655, 103.7578)
	assert.InDelta(t, 21.9, d, 0.5)
}

func TestNearest_SingletonAlwaysWins(t *testing.T) {
	ix := NewIndex([]ReferencePoint{
		{Name: "Only School", Latitude: 1.31, Longitude: 103.81},
	})

	pt, km, ok := ix.Nearest(1.40, 103.90)
	require.True(t, ok)
	assert.Equal(t, "Only School", pt.Name)
	assert.Greater(t, km, 0.0)
}

func TestNearest_GlobalMinimum(t *testing.T) {
	ix := NewIndex([]ReferencePoint{
		{Name: "Far School", Latitude: 1.40, Longitude: 103.90},
		{Name: "Near School", Latitude: 1.31, Longitude: 103.81},
		{Name: "Farther School", Latitude: 1.45, Longitude: 104.00},
	})

	pt, km, ok := ix.Nearest(1.30, 103.80)
	require.True(t, ok)
	assert.Equal(t, "Near School", pt.Name)
	assert.InDelta(t, Haversine(1.30, 103.80, 1.31, 103.81), km, 1e-12)
}

func TestNearest_TieBreaksToFirst(t *testing.T) {
	// Two points at the identical coordinate: first in load order wins.
	ix := NewIndex([]ReferencePoint{
		{Name: "First", Latitude: 1.31, Longitude: 103.81},
		{Name: "Second", Latitude: 1.31, Longitude: 103.81},
	})

	pt, _, ok := ix.Nearest(1.30, 103.80)
	require.True(t, ok)
	assert.Equal(t, "First", pt.Name)
}

func TestNearest_EmptyIndex(t *testing.T) {
	ix := NewIndex(nil)
	_, _, ok := ix.Nearest(1.30, 103.80)
	assert.False(t, ok)
}
