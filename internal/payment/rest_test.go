// README: REST gateway tests against a stub processor.
package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookferry/internal/config"
	"bookferry/internal/types"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *RESTGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTGateway(config.GatewayConfig{
		BaseURL:     srv.URL,
		MerchantKey: "mk-test",
		CallbackURL: "https://example.test/payments/callback",
		Timeout:     time.Second,
	})
}

func TestCreateHold(t *testing.T) {
	var got holdRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/holds" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(gatewayResponse{SessionRef: "sess-1", Status: "pending"})
	})

	ref, err := g.CreateHold(context.Background(), types.Money{Amount: 5000, Currency: "USD"}, "payer-1", types.ID("m1"))
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	if ref != "sess-1" {
		t.Fatalf("session ref = %q", ref)
	}
	if got.MerchantKey != "mk-test" || got.Amount != 5000 || got.Currency != "USD" ||
		got.PayerRef != "payer-1" || got.Metadata.MatchID != "m1" {
		t.Fatalf("hold request = %+v", got)
	}
}

func TestCreateHoldMissingRef(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gatewayResponse{Code: "card_declined"})
	})
	if _, err := g.CreateHold(context.Background(), types.Money{Amount: 5000, Currency: "USD"}, "payer-1", "m1"); err == nil {
		t.Fatal("expected error when no session ref is returned")
	}
}

func TestConfirmHoldStatuses(t *testing.T) {
	cases := []struct {
		status  string
		want    HoldStatus
		wantErr bool
	}{
		{"succeeded", HoldSucceeded, false},
		{"failed", HoldFailed, false},
		{"pending", HoldPending, false},
		{"exploded", "", true},
	}
	for _, c := range cases {
		g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/holds/sess-1/confirm" {
				t.Errorf("path = %s", r.URL.Path)
			}
			json.NewEncoder(w).Encode(gatewayResponse{Status: c.status})
		})
		got, err := g.ConfirmHold(context.Background(), "sess-1")
		if c.wantErr {
			if err == nil {
				t.Errorf("status %q: expected error", c.status)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Errorf("status %q: got %q, %v", c.status, got, err)
		}
	}
}

func TestReleaseAlreadySettledIsSuccess(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/holds/sess-1/release" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(gatewayResponse{Status: "failed", Code: "already_settled"})
	})
	if err := g.Release(context.Background(), "sess-1"); err != nil {
		t.Fatalf("retry of a settled release must succeed: %v", err)
	}
}

func TestRefundFailure(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gatewayResponse{Status: "failed", Code: "insufficient_balance"})
	})
	if err := g.Refund(context.Background(), "sess-1"); err == nil {
		t.Fatal("expected refund failure")
	}
}

func TestProcessorServerError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if err := g.Release(context.Background(), "sess-1"); err == nil {
		t.Fatal("expected error on processor 5xx")
	}
}
