package router

import (
	"context"
	"errors"
	"testing"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/testutil"
)

func knownProviders(names ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func TestParsePinnedProvider(t *testing.T) {
	t.Parallel()

	provider, rest, err := Parse("openai/gpt-4o", knownProviders("openai", "anthropic"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if provider != "openai" || rest != "gpt-4o" {
		t.Errorf("got (%q, %q), want (openai, gpt-4o)", provider, rest)
	}
}

func TestParseOpaqueModel(t *testing.T) {
	t.Parallel()

	provider, rest, err := Parse("some-custom/model-name", knownProviders("openai", "anthropic"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if provider != "" || rest != "some-custom/model-name" {
		t.Errorf("got (%q, %q), want (\"\", some-custom/model-name)", provider, rest)
	}
}

func TestParseNoSlash(t *testing.T) {
	t.Parallel()

	provider, rest, err := Parse("gpt-4o", knownProviders("openai"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if provider != "" || rest != "gpt-4o" {
		t.Errorf("got (%q, %q), want (\"\", gpt-4o)", provider, rest)
	}
}

func TestParseEmptyRejected(t *testing.T) {
	t.Parallel()

	_, _, err := Parse("   ", knownProviders("openai"))
	if !errors.Is(err, gateway.ErrBadRequest) {
		t.Errorf("err = %v, want ErrBadRequest", err)
	}
}

func TestParsePinnedProviderWithEmptyRemainder(t *testing.T) {
	t.Parallel()

	// "openai/" has a known provider prefix but no model after it; this is
	// not treated as a pin since the remainder is empty.
	provider, rest, err := Parse("openai/", knownProviders("openai"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if provider != "" || rest != "openai/" {
		t.Errorf("got (%q, %q), want (\"\", openai/)", provider, rest)
	}
}

func TestResolveNoRedirect(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	r := New(store)

	resolved, err := r.Resolve(context.Background(), "openai/gpt-4o", knownProviders("openai"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Provider != "openai" || resolved.Model != "gpt-4o" {
		t.Errorf("resolved = %+v, want {openai gpt-4o}", resolved)
	}
}

func TestResolveOpaqueModelHasNoProvider(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	r := New(store)

	resolved, err := r.Resolve(context.Background(), "custom-model", knownProviders("openai"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Provider != "" || resolved.Model != "custom-model" {
		t.Errorf("resolved = %+v, want {\"\" custom-model}", resolved)
	}
}

func TestResolveAppliesRedirectChain(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	if err := store.UpsertModelRedirect(context.Background(), &gateway.ModelRedirect{
		Provider: "openai", Source: "gpt-4", Target: "gpt-4-turbo",
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertModelRedirect(context.Background(), &gateway.ModelRedirect{
		Provider: "openai", Source: "gpt-4-turbo", Target: "gpt-4o",
	}); err != nil {
		t.Fatal(err)
	}

	r := New(store)
	resolved, err := r.Resolve(context.Background(), "openai/gpt-4", knownProviders("openai"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", resolved.Model)
	}
}

func TestResolveCachesResult(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	if err := store.UpsertModelRedirect(context.Background(), &gateway.ModelRedirect{
		Provider: "openai", Source: "gpt-4", Target: "gpt-4o",
	}); err != nil {
		t.Fatal(err)
	}

	r := New(store)
	known := knownProviders("openai")
	if _, err := r.Resolve(context.Background(), "openai/gpt-4", known); err != nil {
		t.Fatal(err)
	}

	// Delete the provider's redirect map entirely; a cached resolve should
	// still return the previously-resolved model.
	if err := store.DeleteModelRedirect(context.Background(), "openai", "gpt-4"); err != nil {
		t.Fatal(err)
	}
	resolved, err := r.Resolve(context.Background(), "openai/gpt-4", known)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Model != "gpt-4o" {
		t.Errorf("model = %q, want cached gpt-4o", resolved.Model)
	}
}

func TestResolveDetectsRuntimeCycle(t *testing.T) {
	t.Parallel()

	// A pathological store that bypasses ValidateRedirectMap can still
	// produce a cycle; applyRedirects must detect it rather than loop
	// forever.
	store := testutil.NewFakeStore()
	if err := store.UpsertModelRedirect(context.Background(), &gateway.ModelRedirect{
		Provider: "openai", Source: "a", Target: "b",
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertModelRedirect(context.Background(), &gateway.ModelRedirect{
		Provider: "openai", Source: "b", Target: "a",
	}); err != nil {
		t.Fatal(err)
	}

	r := New(store)
	_, err := r.Resolve(context.Background(), "openai/a", knownProviders("openai"))
	if !errors.Is(err, gateway.ErrRedirectCycle) {
		t.Errorf("err = %v, want ErrRedirectCycle", err)
	}
}

func TestResolveExceedsHopBound(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	for i := 0; i < maxRedirectHops+5; i++ {
		from := "m" + itoa(i)
		to := "m" + itoa(i+1)
		if err := store.UpsertModelRedirect(context.Background(), &gateway.ModelRedirect{
			Provider: "openai", Source: from, Target: to,
		}); err != nil {
			t.Fatal(err)
		}
	}

	r := New(store)
	_, err := r.Resolve(context.Background(), "openai/m0", knownProviders("openai"))
	if !errors.Is(err, gateway.ErrRedirectCycle) {
		t.Errorf("err = %v, want ErrRedirectCycle (hop bound exceeded)", err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	return string(buf)
}

func TestValidateRedirectMapAcyclic(t *testing.T) {
	t.Parallel()

	err := ValidateRedirectMap(map[string]string{
		"gpt-4":       "gpt-4-turbo",
		"gpt-4-turbo": "gpt-4o",
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateRedirectMapRejectsSelfLoop(t *testing.T) {
	t.Parallel()

	err := ValidateRedirectMap(map[string]string{"gpt-4": "gpt-4"})
	if !errors.Is(err, gateway.ErrRedirectCycle) {
		t.Errorf("err = %v, want ErrRedirectCycle", err)
	}
}

func TestValidateRedirectMapRejectsMultiHopCycle(t *testing.T) {
	t.Parallel()

	err := ValidateRedirectMap(map[string]string{
		"a": "b",
		"b": "c",
		"c": "a",
	})
	if !errors.Is(err, gateway.ErrRedirectCycle) {
		t.Errorf("err = %v, want ErrRedirectCycle", err)
	}
}
