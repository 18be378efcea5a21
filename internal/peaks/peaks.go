/*
Copyright 2025 The phfit Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package peaks holds the caller-supplied observation sets the engine
// computes over: raw chemical-shift values grouped by nucleus.
package peaks

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/nmrkit/phfit/internal/nucleus"
)

// Set groups observed chemical shifts (ppm) by nucleus. The per-nucleus order
// is the caller's acquisition order; the engine sorts copies as needed and
// never mutates the set.
type Set map[nucleus.Nucleus][]float64

// Total returns the total number of observations across all nuclei.
func (s Set) Total() int {
	n := 0
	for _, shifts := range s {
		n += len(shifts)
	}
	return n
}

// Nuclei returns the nuclei present in the set, in a deterministic order.
// Map iteration order must never leak into assignment or fitting results.
func (s Set) Nuclei() []nucleus.Nucleus {
	out := make([]nucleus.Nucleus, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sorted returns a copy of the shifts for n, sorted ascending. Index order of
// equal values is preserved (stable sort) so equidistant candidates resolve
// the same way on every run.
func (s Set) Sorted(n nucleus.Nucleus) []float64 {
	src := s[n]
	out := make([]float64, len(src))
	copy(out, src)
	sort.Stable(sort.Float64Slice(out))
	return out
}

// ParseYAML decodes an observation set from YAML of the form
//
//	1H: [3.21, 7.54]
//	31P: [2.05]
//
// Nucleus spellings are normalized; unknown spellings are an error.
func ParseYAML(data []byte) (Set, error) {
	raw := map[string][]float64{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}
	set := make(Set, len(raw))
	for key, shifts := range raw {
		n, ok := nucleus.Parse(key)
		if !ok {
			return nil, fmt.Errorf("unrecognized nucleus %q in observations", key)
		}
		set[n] = append(set[n], shifts...)
	}
	return set, nil
}
