package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"callbridge/internal/calllog"
	"callbridge/internal/config"
)

// SmartfloProvider talks to a Smartflo-style cloud telephony HTTP API.
type SmartfloProvider struct {
	originateURL string
	hangupURL    string
	token        string
	client       *http.Client
}

func NewSmartfloProvider(cfg config.TelephonyConfig) *SmartfloProvider {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SmartfloProvider{
		originateURL: cfg.APIEndpoint,
		hangupURL:    cfg.HangupEndpoint,
		token:        cfg.APIToken,
		client:       &http.Client{Timeout: timeout},
	}
}

func (p *SmartfloProvider) Name() string { return "smartflo" }

func (p *SmartfloProvider) post(ctx context.Context, url string, body any) (calllog.Payload, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, providerError(err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, providerError(fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody)))
	}

	out := calllog.Payload{}
	if len(respBody) > 0 {
		// A malformed success body is still a success; the call id is
		// just unknown.
		_ = json.Unmarshal(respBody, (*map[string]any)(&out))
	}
	return out, nil
}

func (p *SmartfloProvider) Originate(ctx context.Context, req OriginateRequest) (OriginateResult, error) {
	body := map[string]any{
		"agent_number":       req.AgentNumber,
		"destination_number": req.DestinationNumber,
		"caller_id":          req.CallerID,
		"async":              1,
		"ref_id":             req.RefID,
	}
	data, err := p.post(ctx, p.originateURL, body)
	if err != nil {
		return OriginateResult{}, err
	}
	return OriginateResult{CallID: data.Pick("call_id", "id", "request_id")}, nil
}

func (p *SmartfloProvider) Hangup(ctx context.Context, callID string) error {
	if p.hangupURL == "" {
		return providerError("hangup endpoint not configured")
	}
	_, err := p.post(ctx, p.hangupURL, map[string]any{"call_id": callID})
	return err
}
