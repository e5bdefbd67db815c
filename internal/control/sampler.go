package control

import (
	"fmt"

	"golang.org/x/exp/slices"

	"quadpong/internal/wire"
)

// Sampler turns held keys into at most one paddle direction per frame. It
// keeps no state between calls, so a held key produces a command every frame.
type Sampler[K comparable] struct {
	positive []K
	negative []K
}

func NewSampler[K comparable](positive, negative []K) Sampler[K] {
	return Sampler[K]{positive: slices.Clone(positive), negative: slices.Clone(negative)}
}

// Sample reports the direction for this frame, or false when no key is held
// or both directions are held at once.
func (s Sampler[K]) Sample(held func(K) bool) (wire.Direction, bool) {
	pos := slices.ContainsFunc(s.positive, held)
	neg := slices.ContainsFunc(s.negative, held)
	switch {
	case pos && !neg:
		return wire.Positive, true
	case neg && !pos:
		return wire.Negative, true
	}
	return "", false
}

// ParseKeys resolves key names through parse, reporting the first bad name.
func ParseKeys[K any](names []string, parse func(string) (K, error)) ([]K, error) {
	out := make([]K, 0, len(names))
	for _, n := range names {
		k, err := parse(n)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", n, err)
		}
		out = append(out, k)
	}
	return out, nil
}
