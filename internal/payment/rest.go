// README: REST client for the payment processor's hold/release/refund API.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"bookferry/internal/config"
	"bookferry/internal/types"
)

// RESTGateway talks to the processor over plain JSON-over-HTTP. The
// processor's API is four endpoints; no SDK is involved.
type RESTGateway struct {
	baseURL     string
	merchantKey string
	callbackURL string
	client      *http.Client
}

func NewRESTGateway(cfg config.GatewayConfig) *RESTGateway {
	return &RESTGateway{
		baseURL:     cfg.BaseURL,
		merchantKey: cfg.MerchantKey,
		callbackURL: cfg.CallbackURL,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

type holdRequest struct {
	MerchantKey string `json:"merchant_key"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	PayerRef    string `json:"payer_ref"`
	CallbackURL string `json:"callback_url"`
	Metadata    struct {
		MatchID string `json:"match_id"`
	} `json:"metadata"`
}

type gatewayResponse struct {
	SessionRef string `json:"session_ref"`
	Status     string `json:"status"`
	Code       string `json:"code"`
}

func (g *RESTGateway) CreateHold(ctx context.Context, amount types.Money, payerRef string, matchID types.ID) (string, error) {
	req := holdRequest{
		MerchantKey: g.merchantKey,
		Amount:      amount.Amount,
		Currency:    amount.Currency,
		PayerRef:    payerRef,
		CallbackURL: g.callbackURL,
	}
	req.Metadata.MatchID = string(matchID)

	var resp gatewayResponse
	if err := g.post(ctx, "/v1/holds", req, &resp); err != nil {
		return "", err
	}
	if resp.SessionRef == "" {
		return "", fmt.Errorf("gateway: hold created without session ref (code %s)", resp.Code)
	}
	return resp.SessionRef, nil
}

func (g *RESTGateway) ConfirmHold(ctx context.Context, sessionRef string) (HoldStatus, error) {
	var resp gatewayResponse
	err := g.post(ctx, "/v1/holds/"+sessionRef+"/confirm", map[string]string{
		"merchant_key": g.merchantKey,
	}, &resp)
	if err != nil {
		return "", err
	}
	switch resp.Status {
	case "succeeded":
		return HoldSucceeded, nil
	case "failed":
		return HoldFailed, nil
	case "pending":
		return HoldPending, nil
	default:
		return "", fmt.Errorf("gateway: unknown hold status %q", resp.Status)
	}
}

func (g *RESTGateway) Release(ctx context.Context, sessionRef string) error {
	return g.settle(ctx, sessionRef, "release")
}

func (g *RESTGateway) Refund(ctx context.Context, sessionRef string) error {
	return g.settle(ctx, sessionRef, "refund")
}

func (g *RESTGateway) settle(ctx context.Context, sessionRef, action string) error {
	var resp gatewayResponse
	err := g.post(ctx, "/v1/holds/"+sessionRef+"/"+action, map[string]string{
		"merchant_key": g.merchantKey,
	}, &resp)
	if err != nil {
		return err
	}
	// already_settled means an earlier attempt for this session succeeded;
	// the ref is the idempotency handle, so this is a success for retries.
	if resp.Status == "succeeded" || resp.Code == "already_settled" {
		return nil
	}
	return fmt.Errorf("gateway: %s for session %s failed (code %s)", action, sessionRef, resp.Code)
}

func (g *RESTGateway) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("gateway: %s: processor returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
