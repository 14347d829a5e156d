package provider

import (
	"errors"
	"testing"

	gateway "github.com/eugener/aigateway/internal"
)

func TestKeyRotatorSequential(t *testing.T) {
	t.Parallel()

	keys := []*gateway.ProviderKey{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	r := NewKeyRotator()

	var got []string
	for i := 0; i < 6; i++ {
		k, err := r.Next(keys, gateway.RotateSequential)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, k.ID)
	}
	want := []string{"a", "b", "c", "a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestKeyRotatorWeightedSequentialRespectsWeight(t *testing.T) {
	t.Parallel()

	keys := []*gateway.ProviderKey{{ID: "a", Weight: 2}, {ID: "b", Weight: 1}}
	r := NewKeyRotator()

	counts := map[string]int{}
	for i := 0; i < 30; i++ {
		k, err := r.Next(keys, gateway.RotateWeightedSequential)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		counts[k.ID]++
	}
	if counts["a"] != 20 || counts["b"] != 10 {
		t.Errorf("counts = %v, want a=20 b=10 (2:1 ratio over 30 picks)", counts)
	}
}

func TestKeyRotatorRandomPicksFromPool(t *testing.T) {
	t.Parallel()

	keys := []*gateway.ProviderKey{{ID: "a"}, {ID: "b"}}
	r := NewKeyRotator()
	for i := 0; i < 10; i++ {
		k, err := r.Next(keys, gateway.RotateRandom)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if k.ID != "a" && k.ID != "b" {
			t.Errorf("unexpected key %q", k.ID)
		}
	}
}

func TestKeyRotatorNoKeys(t *testing.T) {
	t.Parallel()

	r := NewKeyRotator()
	_, err := r.Next(nil, gateway.RotateSequential)
	if !errors.Is(err, gateway.ErrNoAPIKeys) {
		t.Errorf("err = %v, want ErrNoAPIKeys", err)
	}
}

func TestKeyRotatorZeroWeightTreatedAsOne(t *testing.T) {
	t.Parallel()

	keys := []*gateway.ProviderKey{{ID: "a", Weight: 0}, {ID: "b", Weight: 0}}
	r := NewKeyRotator()

	counts := map[string]int{}
	for i := 0; i < 10; i++ {
		k, err := r.Next(keys, gateway.RotateWeightedSequential)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		counts[k.ID]++
	}
	if counts["a"] != 5 || counts["b"] != 5 {
		t.Errorf("counts = %v, want even 5/5 split", counts)
	}
}
