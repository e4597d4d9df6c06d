//go:build property
// +build property

// Package canonicalize_test contains property-based tests for canonical
// encoding determinism and hash stability.
package canonicalize_test

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/chainbridge-oss/proofpack/pkg/canonicalize"
)

// TestCanonicalDeterminism verifies canonical encoding is deterministic.
// Property: JCS(obj) == JCS(obj) for any obj
func TestCanonicalDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical encoding is deterministic", prop.ForAll(
		func(keys []string, values []string) bool {
			obj := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				obj[keys[i]] = values[i]
			}
			if len(obj) == 0 {
				return true
			}

			b1, err1 := canonicalize.JCS(obj)
			b2, err2 := canonicalize.JCS(obj)

			if err1 != nil && err2 != nil {
				return true
			}
			if err1 != nil || err2 != nil {
				return false
			}
			return string(b1) == string(b2)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestCanonicalRoundTripFixedPoint verifies decode-then-encode of canonical
// output reproduces identical bytes, regardless of how the original value was
// constructed.
// Property: JCS(decode(JCS(obj))) == JCS(obj)
func TestCanonicalRoundTripFixedPoint(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical form is a fixed point", prop.ForAll(
		func(a, b, c string, n int, flag bool) bool {
			obj := map[string]any{
				"z_" + a: n,
				"a_" + b: flag,
				"m_" + c: []any{c, b, a},
			}

			b1, err := canonicalize.JCS(obj)
			if err != nil {
				return true
			}

			var decoded any
			if err := json.Unmarshal(b1, &decoded); err != nil {
				return false
			}

			b2, err := canonicalize.JCS(decoded)
			if err != nil {
				return false
			}
			return string(b1) == string(b2)
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Int(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestCanonicalHashKeyOrderIndependence verifies the content hash does not
// depend on map construction order.
func TestCanonicalHashKeyOrderIndependence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("hash is independent of insertion order", prop.ForAll(
		func(a, b, c string) bool {
			forward := make(map[string]any)
			forward["k1"] = a
			forward["k2"] = b
			forward["k3"] = c

			reverse := make(map[string]any)
			reverse["k3"] = c
			reverse["k2"] = b
			reverse["k1"] = a

			h1, err1 := canonicalize.CanonicalHash(forward)
			h2, err2 := canonicalize.CanonicalHash(reverse)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return h1 == h2
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
