package masking

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource []float64

func (f *fixedSource) Float64() float64 {
	v := (*f)[0]
	*f = append((*f)[1:], v)
	return v
}

func TestJitterCoordinate_Bound(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10_000; i++ {
		lat := rng.Float64()*178 - 89
		lon := rng.Float64()*358 - 179

		jl, jn := JitterCoordinate(rng, lat, lon)
		require.LessOrEqual(t, math.Abs(jl-lat), JitterRadius, "lat %v", lat)
		require.LessOrEqual(t, math.Abs(jn-lon), JitterRadius, "lon %v", lon)
	}
}

func TestJitterCoordinate_Extremes(t *testing.T) {
	src := &fixedSource{0, 0}
	lat, lon := JitterCoordinate(src, 40, -70)
	assert.InDelta(t, 40-JitterRadius, lat, 1e-12)
	assert.InDelta(t, -70-JitterRadius, lon, 1e-12)

	src = &fixedSource{0.5, 0.5}
	lat, lon = JitterCoordinate(src, 40, -70)
	assert.InDelta(t, 40, lat, 1e-12)
	assert.InDelta(t, -70, lon, 1e-12)
	assert.NotEqual(t, 40.0, lat)
	assert.NotEqual(t, -70.0, lon)
}

func TestJitterCoordinate_ReflectsAtBounds(t *testing.T) {
	tests := []struct {
		name     string
		src      fixedSource
		lat, lon float64
	}{
		{"north east corner", fixedSource{0.9, 0.9}, 90, 180},
		{"south west corner", fixedSource{0.1, 0.1}, -90, -180},
		{"near north edge", fixedSource{0.999999, 0.999999}, 89.999, 179.999},
		{"zero offset at corner", fixedSource{0.5, 0.5}, 90, -180},
		{"zero offset at origin", fixedSource{0.5, 0.5}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := tt.src
			lat, lon := JitterCoordinate(&src, tt.lat, tt.lon)

			assert.NotEqual(t, tt.lat, lat)
			assert.NotEqual(t, tt.lon, lon)
			assert.True(t, Point{Lat: lat, Lon: lon}.Valid(), "(%v, %v) out of range", lat, lon)
			assert.LessOrEqual(t, math.Abs(lat-tt.lat), JitterRadius)
			assert.LessOrEqual(t, math.Abs(lon-tt.lon), JitterRadius)
		})
	}
}

func TestJitterCoordinate_ReflectedDistance(t *testing.T) {
	src := &fixedSource{0.9, 0.9}
	lat, lon := JitterCoordinate(src, 90, 180)
	off := 0.8 * JitterRadius
	assert.InDelta(t, 90-off, lat, 1e-9)
	assert.InDelta(t, 180-off, lon, 1e-9)
}

func TestJitterCoordinate_DefaultSource(t *testing.T) {
	lat, lon := JitterCoordinate(nil, 10, 10)
	assert.LessOrEqual(t, math.Abs(lat-10), JitterRadius)
	assert.LessOrEqual(t, math.Abs(lon-10), JitterRadius)
}

func TestMask_AppliesJitterOnce(t *testing.T) {
	src := &fixedSource{1.0, 0.0}
	m := Mask(src, Point{Lat: 51.5, Lon: -0.12})

	// A single application moves each axis by exactly the radius; a second
	// application would have moved it by twice the radius.
	assert.InDelta(t, 51.5+JitterRadius, m.Lat(), 1e-12)
	assert.InDelta(t, -0.12-JitterRadius, m.Lon(), 1e-12)
	assert.Equal(t, ComputeGeohash(m.Lat(), m.Lon()), m.Geohash())
}

func TestComputeGeohash_KnownValues(t *testing.T) {
	assert.Equal(t, "s00000", ComputeGeohash(0, 0))
	assert.Equal(t, "u4pruy", ComputeGeohash(57.64911, 10.40744))
}

func TestComputeGeohash_Deterministic(t *testing.T) {
	a := ComputeGeohash(39.9526, -75.1652)
	b := ComputeGeohash(39.9526, -75.1652)
	assert.Equal(t, a, b)
	assert.Len(t, a, GeohashPrecision)
}

func TestComputeGeohash_DistantPointsDiffer(t *testing.T) {
	philly := ComputeGeohash(39.9526, -75.1652)
	boston := ComputeGeohash(42.3601, -71.0589)
	assert.NotEqual(t, philly, boston)

	// 0.1 degrees is far wider than a 6-character cell.
	shifted := ComputeGeohash(39.9526+0.1, -75.1652)
	assert.NotEqual(t, philly, shifted)
}

func TestNeighborBuckets(t *testing.T) {
	hash := ComputeGeohash(39.9526, -75.1652)
	neighbors := NeighborBuckets(hash)

	assert.Len(t, neighbors, 8)
	for _, n := range neighbors {
		assert.Len(t, n, GeohashPrecision)
		assert.NotEqual(t, hash, n)
	}
}

func TestCommitResidency_Deterministic(t *testing.T) {
	a := CommitResidency("123 Main St", DefaultSalt)
	b := CommitResidency("123 Main St", DefaultSalt)
	assert.Equal(t, a, b)
	assert.Len(t, a, CommitmentLength)
}

func TestCommitResidency_KnownDigest(t *testing.T) {
	// sha256("broad & main st" + DefaultSalt), first 16 hex characters.
	assert.Equal(t, "e258bf0ac9d7b85d", CommitResidency("Broad & Main St", DefaultSalt))
}

func TestCommitResidency_NoRawText(t *testing.T) {
	c := CommitResidency("123 Main St", DefaultSalt)
	assert.NotEqual(t, "123 Main St", c)
	assert.NotContains(t, strings.ToLower(c), "main")
}

func TestCommitResidency_SaltChangesDigest(t *testing.T) {
	a := CommitResidency("123 Main St", DefaultSalt)
	b := CommitResidency("123 Main St", "other-salt")
	assert.NotEqual(t, a, b)
}

func TestCommitResidency_Normalization(t *testing.T) {
	base := CommitResidency("123 Main St", DefaultSalt)
	assert.Equal(t, base, CommitResidency("  123 MAIN st  ", DefaultSalt))
	assert.Equal(t, base, CommitResidency("123   Main\tSt", DefaultSalt))

	// Precomposed and decomposed forms commit identically.
	assert.Equal(t,
		CommitResidency("Rue de l'\u00c9glise", DefaultSalt),
		CommitResidency("Rue de l'E\u0301glise", DefaultSalt),
	)
}

func TestCommitResidency_Empty(t *testing.T) {
	assert.Equal(t, "", CommitResidency("", DefaultSalt))
	assert.Equal(t, "", CommitResidency("   ", DefaultSalt))
}

func TestPoint_Valid(t *testing.T) {
	assert.True(t, Point{Lat: 0, Lon: 0}.Valid())
	assert.True(t, Point{Lat: -90, Lon: 180}.Valid())
	assert.False(t, Point{Lat: 91, Lon: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lon: -181}.Valid())
	assert.False(t, Point{Lat: math.NaN(), Lon: 0}.Valid())
}
