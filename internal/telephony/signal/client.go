package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acme/voicecampaign/internal/config"
	"github.com/acme/voicecampaign/internal/telephony"
	"github.com/acme/voicecampaign/pkg/logger"
)

// Client talks to the signaling provider's REST surface. Each call carries
// its own timeout so a stuck provider cannot stall the scheduling loop.
type Client struct {
	baseURL     string
	apiKey      string
	stepTimeout time.Duration
	http        *http.Client
	dispatchers []dispatchTransport
	logger      *logger.Logger
}

// dispatchTransport is one way of delivering an agent dispatch. Transports
// are tried in fixed order; all have identical effect on success.
type dispatchTransport interface {
	name() string
	dispatch(ctx context.Context, req telephony.DispatchRequest) (string, error)
}

// NewClient builds a signaling client from config.
func NewClient(cfg config.SignalConfig, lg *logger.Logger) *Client {
	httpClient := &http.Client{}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		stepTimeout: cfg.StepTimeout,
		http:        httpClient,
		logger:      lg,
	}

	c.dispatchers = []dispatchTransport{
		&rpcDispatch{client: c},
	}
	if cfg.DispatchFallbackURL != "" {
		c.dispatchers = append(c.dispatchers, &httpDispatch{client: c, url: cfg.DispatchFallbackURL})
	}

	return c
}

// CreateSession creates a session, treating an existing session with the
// same name as success.
func (c *Client) CreateSession(ctx context.Context, name string, metadata map[string]string) error {
	body := map[string]any{"name": name, "metadata": metadata}
	status, _, err := c.post(ctx, c.baseURL+"/v1/sessions", body)
	if err != nil {
		return fmt.Errorf("signal: create session: %w", err)
	}
	if status == http.StatusConflict {
		// Idempotent re-create for the same attempt name.
		return nil
	}
	if status >= 300 {
		return fmt.Errorf("signal: create session: unexpected status %d", status)
	}
	return nil
}

// DispatchAgent tries each transport in order and returns the first
// successful dispatch id.
func (c *Client) DispatchAgent(ctx context.Context, req telephony.DispatchRequest) (string, error) {
	var lastErr error
	for _, d := range c.dispatchers {
		id, err := d.dispatch(ctx, req)
		if err == nil {
			return id, nil
		}
		lastErr = err
		c.logger.Warn("signal: dispatch transport failed",
			zap.String("transport", d.name()),
			zap.String("session", req.SessionName),
			zap.Error(err))
	}
	return "", fmt.Errorf("signal: dispatch agent: all transports failed: %w", lastErr)
}

// CreateBridgeParticipant places the outbound call leg through the trunk.
func (c *Client) CreateBridgeParticipant(ctx context.Context, req telephony.BridgeRequest) (telephony.BridgeInfo, error) {
	body := map[string]any{
		"session_name": req.SessionName,
		"trunk_id":     req.TrunkID,
		"phone_number": req.PhoneNumber,
		"caller_id":    req.CallerID,
	}
	status, data, err := c.post(ctx, c.baseURL+"/v1/sip/participants", body)
	if err != nil {
		return telephony.BridgeInfo{}, fmt.Errorf("signal: create bridge participant: %w", err)
	}
	if status >= 300 {
		return telephony.BridgeInfo{}, fmt.Errorf("signal: create bridge participant: unexpected status %d", status)
	}

	var resp struct {
		ParticipantID  string `json:"participant_id"`
		ProviderCallID string `json:"call_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return telephony.BridgeInfo{}, fmt.Errorf("signal: decode participant response: %w", err)
	}
	return telephony.BridgeInfo{
		ParticipantID:  resp.ParticipantID,
		ProviderCallID: resp.ProviderCallID,
	}, nil
}

func (c *Client) post(ctx context.Context, url string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// rpcDispatch is the primary transport: the provider's dispatch RPC endpoint.
type rpcDispatch struct {
	client *Client
}

func (d *rpcDispatch) name() string { return "rpc" }

func (d *rpcDispatch) dispatch(ctx context.Context, req telephony.DispatchRequest) (string, error) {
	return d.client.postDispatch(ctx, d.client.baseURL+"/v1/agents/dispatch", req)
}

// httpDispatch is the fallback transport: a plain HTTP endpoint with the
// same request and response shape as the RPC path.
type httpDispatch struct {
	client *Client
	url    string
}

func (d *httpDispatch) name() string { return "http-fallback" }

func (d *httpDispatch) dispatch(ctx context.Context, req telephony.DispatchRequest) (string, error) {
	return d.client.postDispatch(ctx, d.url, req)
}

func (c *Client) postDispatch(ctx context.Context, url string, req telephony.DispatchRequest) (string, error) {
	body := map[string]any{
		"session_name": req.SessionName,
		"agent_id":     req.AgentID,
		"metadata": map[string]string{
			"campaign_id":  req.CampaignID,
			"contact_name": req.ContactName,
			"phone_number": req.PhoneNumber,
			"caller_id":    req.CallerID,
			"trunk_id":     req.TrunkID,
			"prompt":       req.Prompt,
		},
	}

	status, data, err := c.post(ctx, url, body)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", fmt.Errorf("unexpected status %d", status)
	}

	var resp struct {
		DispatchID string `json:"dispatch_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode dispatch response: %w", err)
	}
	return resp.DispatchID, nil
}
