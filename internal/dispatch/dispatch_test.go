package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/clock"
	"github.com/eugener/aigateway/internal/provider"
	"github.com/eugener/aigateway/internal/router"
	"github.com/eugener/aigateway/internal/storage"
	"github.com/eugener/aigateway/internal/testutil"
)

func newService(t *testing.T, store *testutil.FakeStore, client gateway.ProviderClient, providerName string, c gateway.Clock) *Service {
	t.Helper()
	reg := provider.NewRegistry()
	reg.Register(providerName, client)
	resolver := router.New(store)
	rotator := provider.NewKeyRotator()
	return New(store, reg, resolver, rotator, c, gateway.KeyLogNone)
}

func mustProvider(t *testing.T, store *testutil.FakeStore, name string) {
	t.Helper()
	if err := store.CreateProvider(context.Background(), &gateway.Provider{Name: name, Enabled: true}); err != nil {
		t.Fatalf("CreateProvider: %v", err)
	}
}

func mustKey(t *testing.T, store *testutil.FakeStore, providerName, id, value string) {
	t.Helper()
	if err := store.CreateProviderKey(context.Background(), &gateway.ProviderKey{ID: id, Provider: providerName, Value: value, Active: true, Weight: 1}); err != nil {
		t.Fatalf("CreateProviderKey: %v", err)
	}
}

func mustToken(t *testing.T, store *testutil.FakeStore, id string, maxAmount *float64) *gateway.ClientToken {
	t.Helper()
	tok := &gateway.ClientToken{ID: id, Enabled: true, MaxAmount: maxAmount}
	if err := store.CreateToken(context.Background(), tok); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	return tok
}

func TestChatCompletionBudgetExhaustedRejectsBeforeUpstream(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	mustProvider(t, store, "acme")
	mustKey(t, store, "acme", "k1", "sk-1")
	exhausted := 0.0
	tok := mustToken(t, store, "atk_budget", &exhausted)
	tok.AmountSpent = 0.5

	called := false
	fp := &testutil.FakeProvider{ProviderName: "acme", ChatFn: func(ctx context.Context, key string, req *gateway.ChatRequest) (*gateway.ChatResponse, error) {
		called = true
		return nil, nil
	}}
	svc := newService(t, store, fp, "acme", clock.Fixed(time.Unix(0, 0)))

	_, err := svc.ChatCompletion(context.Background(), tok, &gateway.ChatRequest{Model: "acme/gpt"})
	if !errors.Is(err, gateway.ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
	if called {
		t.Fatal("upstream client was called despite exhausted budget")
	}

	logs, _ := store.ListRequestLogs(context.Background(), storage.RequestLogFilter{})
	if len(logs) != 1 {
		t.Fatalf("len(logs) = %d, want 1 (failure still logged)", len(logs))
	}
	if logs[0].StatusCode != 401 {
		t.Errorf("logs[0].StatusCode = %d, want 401", logs[0].StatusCode)
	}
}

func TestChatCompletionDeniedModelRejectedOnRequestedName(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	mustProvider(t, store, "acme")
	mustKey(t, store, "acme", "k1", "sk-1")
	tok := mustToken(t, store, "atk_deny", nil)
	tok.ModelBlacklist = []string{"acme/banned"}

	fp := &testutil.FakeProvider{ProviderName: "acme"}
	svc := newService(t, store, fp, "acme", clock.Fixed(time.Unix(0, 0)))

	_, err := svc.ChatCompletion(context.Background(), tok, &gateway.ChatRequest{Model: "acme/banned"})
	if !errors.Is(err, gateway.ErrModelNotAllowed) {
		t.Fatalf("err = %v, want ErrModelNotAllowed", err)
	}
}

func TestChatCompletionDeniedModelRejectedAfterRedirect(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	mustProvider(t, store, "acme")
	mustKey(t, store, "acme", "k1", "sk-1")
	if err := store.UpsertModelRedirect(context.Background(), &gateway.ModelRedirect{Provider: "acme", Source: "public", Target: "banned"}); err != nil {
		t.Fatalf("UpsertModelRedirect: %v", err)
	}
	tok := mustToken(t, store, "atk_deny2", nil)
	tok.ModelBlacklist = []string{"banned"}

	called := false
	fp := &testutil.FakeProvider{ProviderName: "acme", ChatFn: func(ctx context.Context, key string, req *gateway.ChatRequest) (*gateway.ChatResponse, error) {
		called = true
		return nil, nil
	}}
	svc := newService(t, store, fp, "acme", clock.Fixed(time.Unix(0, 0)))

	_, err := svc.ChatCompletion(context.Background(), tok, &gateway.ChatRequest{Model: "acme/public"})
	if !errors.Is(err, gateway.ErrModelNotAllowed) {
		t.Fatalf("err = %v, want ErrModelNotAllowed (redirect-bypass must be blocked)", err)
	}
	if called {
		t.Fatal("upstream client was called despite denied effective model")
	}
}

func TestChatCompletionNoActiveKeysFails(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	mustProvider(t, store, "acme")
	tok := mustToken(t, store, "atk_nokeys", nil)

	fp := &testutil.FakeProvider{ProviderName: "acme"}
	svc := newService(t, store, fp, "acme", clock.Fixed(time.Unix(0, 0)))

	_, err := svc.ChatCompletion(context.Background(), tok, &gateway.ChatRequest{Model: "acme/gpt"})
	if !errors.Is(err, gateway.ErrNoAPIKeys) {
		t.Fatalf("err = %v, want ErrNoAPIKeys", err)
	}
}

func TestChatCompletionAccountsSpendWhenPriceKnown(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	mustProvider(t, store, "acme")
	mustKey(t, store, "acme", "k1", "sk-1234567890")
	if err := store.UpsertModelPrice(context.Background(), &gateway.ModelPrice{Provider: "acme", Model: "gpt", PromptPricePerMillion: 1_000_000, CompletionPricePerMillion: 2_000_000}); err != nil {
		t.Fatalf("UpsertModelPrice: %v", err)
	}
	tok := mustToken(t, store, "atk_spend", nil)

	var gotKey string
	fp := &testutil.FakeProvider{ProviderName: "acme", ChatFn: func(ctx context.Context, key string, req *gateway.ChatRequest) (*gateway.ChatResponse, error) {
		gotKey = key
		return &gateway.ChatResponse{
			ID: "c1", Model: req.Model,
			Usage: &gateway.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	}}
	fx := clock.Fixed(time.Unix(1000, 0))
	svc := newService(t, store, fp, "acme", fx)

	resp, err := svc.ChatCompletion(context.Background(), tok, &gateway.ChatRequest{Model: "acme/gpt"})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("resp.Usage.TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
	if gotKey != "sk-1234567890" {
		t.Errorf("gotKey = %q, want the provider key value", gotKey)
	}

	refreshed, err := store.GetToken(context.Background(), tok.ID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	wantAmount := 10.0*1_000_000/1e6 + 5.0*2_000_000/1e6
	if refreshed.AmountSpent != wantAmount {
		t.Errorf("AmountSpent = %v, want %v", refreshed.AmountSpent, wantAmount)
	}
	if refreshed.TotalTokensSpent != 15 {
		t.Errorf("TotalTokensSpent = %d, want 15", refreshed.TotalTokensSpent)
	}

	logs, _ := store.ListRequestLogs(context.Background(), storage.RequestLogFilter{})
	if len(logs) != 1 {
		t.Fatalf("len(logs) = %d, want 1", len(logs))
	}
	if logs[0].AmountSpent == nil || *logs[0].AmountSpent != wantAmount {
		t.Errorf("logs[0].AmountSpent = %v, want %v", logs[0].AmountSpent, wantAmount)
	}
	if logs[0].APIKeyHint == "sk-1234567890" {
		t.Error("APIKeyHint must not carry the raw key value")
	}
}

func TestChatCompletionNoAmountWhenPriceMissing(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	mustProvider(t, store, "acme")
	mustKey(t, store, "acme", "k1", "sk-1")
	tok := mustToken(t, store, "atk_nospend", nil)

	fp := &testutil.FakeProvider{ProviderName: "acme", ChatFn: func(ctx context.Context, key string, req *gateway.ChatRequest) (*gateway.ChatResponse, error) {
		return &gateway.ChatResponse{ID: "c1", Model: req.Model, Usage: &gateway.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
	}}
	svc := newService(t, store, fp, "acme", clock.Fixed(time.Unix(0, 0)))

	if _, err := svc.ChatCompletion(context.Background(), tok, &gateway.ChatRequest{Model: "acme/gpt"}); err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	refreshed, _ := store.GetToken(context.Background(), tok.ID)
	if refreshed.AmountSpent != 0 {
		t.Errorf("AmountSpent = %v, want 0 when no price row exists", refreshed.AmountSpent)
	}
	logs, _ := store.ListRequestLogs(context.Background(), storage.RequestLogFilter{})
	if logs[0].AmountSpent != nil {
		t.Errorf("logs[0].AmountSpent = %v, want nil", logs[0].AmountSpent)
	}
}

func TestChatCompletionStreamAccumulatesTerminalUsage(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	mustProvider(t, store, "acme")
	mustKey(t, store, "acme", "k1", "sk-1")
	if err := store.UpsertModelPrice(context.Background(), &gateway.ModelPrice{Provider: "acme", Model: "gpt", PromptPricePerMillion: 500_000, CompletionPricePerMillion: 500_000}); err != nil {
		t.Fatalf("UpsertModelPrice: %v", err)
	}
	tok := mustToken(t, store, "atk_stream", nil)

	fp := &testutil.FakeProvider{ProviderName: "acme", StreamFn: func(ctx context.Context, key string, req *gateway.ChatRequest) (<-chan gateway.StreamChunk, error) {
		return testutil.FakeStreamChan(
			gateway.StreamChunk{Data: []byte("a")},
			gateway.StreamChunk{Data: []byte("b"), Usage: &gateway.Usage{PromptTokens: 4, CompletionTokens: 4, TotalTokens: 8}},
		), nil
	}}
	svc := newService(t, store, fp, "acme", clock.Fixed(time.Unix(0, 0)))

	ch, err := svc.ChatCompletionStream(context.Background(), tok, &gateway.ChatRequest{Model: "acme/gpt", Stream: true})
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}

	var count int
	for range ch {
		count++
	}
	if count != 3 {
		t.Fatalf("relayed %d chunks, want 3 (2 data + done sentinel)", count)
	}

	deadline := time.After(time.Second)
	for {
		refreshed, _ := store.GetToken(context.Background(), tok.ID)
		if refreshed.TotalTokensSpent == 8 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("accounting goroutine did not record spend in time")
		case <-time.After(time.Millisecond):
		}
	}
}
