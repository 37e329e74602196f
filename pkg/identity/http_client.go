package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/agridesk/agridesk/pkg/models"
)

// HTTPProvisioner talks to the identity service's REST API.
type HTTPProvisioner struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPProvisioner creates a provisioner for the identity service at
// baseURL. The API key is sent on every request.
func NewHTTPProvisioner(baseURL, apiKey string, logger *slog.Logger) *HTTPProvisioner {
	return &HTTPProvisioner{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type identityResponse struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// EnsureIdentity creates the account, or fetches the existing one when the
// service reports the email is already registered.
func (p *HTTPProvisioner) EnsureIdentity(ctx context.Context, req EnsureRequest) (*models.Identity, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal identity request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/identities", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}

	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("identity service unreachable: %w", err)
	}
	defer p.drainAndClose(ctx, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return p.decodeIdentity(resp.Body)
	case http.StatusConflict:
		// Account already exists; converge on it.
		return p.getByEmail(ctx, req.Email)
	default:
		return nil, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}
}

// DeleteIdentity removes the account. A 404 means the compensation already
// happened or never needed to, and is treated as success.
func (p *HTTPProvisioner) DeleteIdentity(ctx context.Context, identityID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/identities/"+url.PathEscape(identityID), nil)
	if err != nil {
		return fmt.Errorf("failed to build identity delete request: %w", err)
	}

	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("identity service unreachable: %w", err)
	}
	defer p.drainAndClose(ctx, resp.Body)

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil
	}

	return fmt.Errorf("identity service returned status %d", resp.StatusCode)
}

func (p *HTTPProvisioner) getByEmail(ctx context.Context, email string) (*models.Identity, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/identities?email="+url.QueryEscape(email), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity lookup request: %w", err)
	}

	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("identity service unreachable: %w", err)
	}
	defer p.drainAndClose(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity lookup returned status %d", resp.StatusCode)
	}

	return p.decodeIdentity(resp.Body)
}

func (p *HTTPProvisioner) decodeIdentity(body io.Reader) (*models.Identity, error) {
	var payload identityResponse

	err := json.NewDecoder(body).Decode(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode identity response: %w", err)
	}

	return &models.Identity{
		ID:          payload.ID,
		Email:       payload.Email,
		DisplayName: payload.DisplayName,
		Metadata:    payload.Metadata,
	}, nil
}

func (p *HTTPProvisioner) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")

	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

func (p *HTTPProvisioner) drainAndClose(ctx context.Context, body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)

	err := body.Close()
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to close response body", "error", err)
	}
}
