// Package masking turns raw, potentially re-identifying input into the
// coarse values that are persisted: jittered coordinates, a fixed-precision
// geohash bucket, and a salted one-way commitment over street text.
//
// All functions are pure apart from the random source used for jitter.
package masking

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/mmcloughlin/geohash"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	// JitterRadius bounds the per-axis offset in degrees (about 500 m at
	// mid-latitudes).
	JitterRadius = 0.0045

	// GeohashPrecision is the bucket length in characters. Six characters
	// is a cell of roughly 1.2 km x 0.6 km.
	GeohashPrecision = 6

	// CommitmentLength is the number of hex characters kept from the
	// SHA-256 digest: 64 bits, so a birthday collision needs about 2^32
	// distinct addresses.
	CommitmentLength = 16

	// DefaultSalt is the application salt mixed into residency commitments.
	// It is public; the commitment relies on the one-way digest, not on the
	// salt being secret.
	DefaultSalt = "fieldnode/residency/v1"
)

// Source yields uniform values in [0, 1).
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultSource uses the process-wide math/rand/v2 generator, which is safe
// for concurrent use.
var DefaultSource Source = globalSource{}

// Point is a raw input coordinate. It must never be persisted.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether p lies within WGS84 bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// MaskedPoint is a coordinate that has been jittered exactly once, along
// with its geohash bucket. It can only be produced by Mask, so a record
// built from a MaskedPoint cannot carry raw or double-jittered values.
type MaskedPoint struct {
	lat     float64
	lon     float64
	geohash string
}

// Lat returns the jittered latitude.
func (m MaskedPoint) Lat() float64 { return m.lat }

// Lon returns the jittered longitude.
func (m MaskedPoint) Lon() float64 { return m.lon }

// Geohash returns the bucket of the jittered point.
func (m MaskedPoint) Geohash() string { return m.geohash }

// Mask jitters p once and buckets the jittered point.
func Mask(src Source, p Point) MaskedPoint {
	lat, lon := JitterCoordinate(src, p.Lat, p.Lon)
	return MaskedPoint{lat: lat, lon: lon, geohash: ComputeGeohash(lat, lon)}
}

// JitterCoordinate adds independent uniform noise in
// [-JitterRadius, +JitterRadius] to each axis. A result past a WGS84 bound
// is reflected back inside it, which never increases the distance from the
// input. The result never equals the input on either axis.
func JitterCoordinate(src Source, lat, lon float64) (float64, float64) {
	if src == nil {
		src = DefaultSource
	}
	jl := jitterAxis(lat, offset(src), 90)
	jn := jitterAxis(lon, offset(src), 180)
	return jl, jn
}

// jitterAxis displaces v by off within [-bound, bound].
func jitterAxis(v, off, bound float64) float64 {
	out := fold(displace(v, off), bound)
	if out == v {
		// Never publish the raw value; move one ulp inward.
		if v > 0 {
			out = math.Nextafter(v, math.Inf(-1))
		} else {
			out = math.Nextafter(v, math.Inf(1))
		}
	}
	return out
}

func offset(src Source) float64 {
	return (src.Float64()*2 - 1) * JitterRadius
}

// displace adds off to v, stepping back toward v by one ulp at a time if
// float rounding pushed the result past JitterRadius.
func displace(v, off float64) float64 {
	out := v + off
	for math.Abs(out-v) > JitterRadius {
		out = math.Nextafter(out, v)
	}
	return out
}

// fold reflects v back into [-bound, bound] across the edge it crossed.
func fold(v, bound float64) float64 {
	switch {
	case v > bound:
		return 2*bound - v
	case v < -bound:
		return -2*bound - v
	}
	return v
}

// ComputeGeohash returns the base-32 geohash of (lat, lon) at
// GeohashPrecision characters. Identical inputs always yield identical
// buckets.
func ComputeGeohash(lat, lon float64) string {
	return geohash.EncodeWithPrecision(lat, lon, GeohashPrecision)
}

// NeighborBuckets returns the eight buckets surrounding hash, for cheap
// proximity queries over masked records.
func NeighborBuckets(hash string) []string {
	return geohash.Neighbors(hash)
}

// NormalizeStreet trims, NFC-normalizes and case-folds street text so
// trivially different spellings of one address commit to the same digest.
func NormalizeStreet(street string) string {
	s := norm.NFC.String(strings.TrimSpace(street))
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}

// CommitResidency returns the first CommitmentLength hex characters of
// SHA-256(normalized street || salt). Empty street text (after
// normalization) yields an empty commitment.
func CommitResidency(street, salt string) string {
	normalized := NormalizeStreet(street)
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized + salt))
	return hex.EncodeToString(sum[:])[:CommitmentLength]
}
