package provider

import (
	"math/rand/v2"
	"sync/atomic"

	gateway "github.com/eugener/aigateway/internal"
)

// KeyRotator selects one active key from a provider's key pool per request,
// per the strategy configured on the Provider row (spec.md §4.4).
type KeyRotator struct {
	counter atomic.Uint64
}

// NewKeyRotator returns a ready-to-use KeyRotator.
func NewKeyRotator() *KeyRotator {
	return &KeyRotator{}
}

// Next selects a key from keys (already filtered to Active == true) under
// the given strategy. Weighted strategies treat Weight as repetition
// multiplicity: a key with Weight 3 is 3x as likely to be chosen as a key
// with Weight 1. A Weight <= 0 is treated as 1.
func (r *KeyRotator) Next(keys []*gateway.ProviderKey, strategy gateway.KeyRotationStrategy) (*gateway.ProviderKey, error) {
	if len(keys) == 0 {
		return nil, gateway.ErrNoAPIKeys
	}

	switch strategy {
	case gateway.RotateRandom:
		return keys[rand.IntN(len(keys))], nil
	case gateway.RotateWeightedRandom:
		pool := expandByWeight(keys)
		return pool[rand.IntN(len(pool))], nil
	case gateway.RotateWeightedSequential:
		pool := expandByWeight(keys)
		i := r.counter.Add(1) - 1
		return pool[i%uint64(len(pool))], nil
	case gateway.RotateSequential:
		fallthrough
	default:
		i := r.counter.Add(1) - 1
		return keys[i%uint64(len(keys))], nil
	}
}

func expandByWeight(keys []*gateway.ProviderKey) []*gateway.ProviderKey {
	var pool []*gateway.ProviderKey
	for _, k := range keys {
		w := k.Weight
		if w <= 0 {
			w = 1
		}
		for i := 0; i < w; i++ {
			pool = append(pool, k)
		}
	}
	return pool
}
