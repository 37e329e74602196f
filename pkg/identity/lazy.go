package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/agridesk/agridesk/pkg/guard"
	"github.com/agridesk/agridesk/pkg/models"
)

// ErrNotConfigured indicates the identity service URL is missing or invalid.
var ErrNotConfigured = errors.New("identity service is not configured")

// LazyProvisioner defers building the HTTP client until first use and
// serializes that initialization through a guard: one attempt at a time, a
// capped number of failed attempts, and automatic reinitialization when the
// configuration changes.
type LazyProvisioner struct {
	baseURL string
	apiKey  string
	guard   *guard.Guard[*HTTPProvisioner]
}

// NewLazyProvisioner creates a provisioner for the identity service at
// baseURL. Configuration is validated on first use, not here.
func NewLazyProvisioner(baseURL, apiKey string, logger *slog.Logger) *LazyProvisioner {
	p := &LazyProvisioner{baseURL: baseURL, apiKey: apiKey}

	p.guard = guard.New(guard.DefaultMaxAttempts, func(_ context.Context, _ string) (*HTTPProvisioner, error) {
		if p.baseURL == "" {
			return nil, ErrNotConfigured
		}

		parsed, err := url.Parse(p.baseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("%w: invalid base URL %q", ErrNotConfigured, p.baseURL)
		}

		return NewHTTPProvisioner(p.baseURL, p.apiKey, logger), nil
	})

	return p
}

func (p *LazyProvisioner) EnsureIdentity(ctx context.Context, req EnsureRequest) (*models.Identity, error) {
	client, err := p.guard.Get(ctx, p.configKey())
	if err != nil {
		return nil, err
	}

	return client.EnsureIdentity(ctx, req)
}

func (p *LazyProvisioner) DeleteIdentity(ctx context.Context, identityID string) error {
	client, err := p.guard.Get(ctx, p.configKey())
	if err != nil {
		return err
	}

	return client.DeleteIdentity(ctx, identityID)
}

// Reset discards the cached client and failed-attempt count.
func (p *LazyProvisioner) Reset() {
	p.guard.Reset()
}

func (p *LazyProvisioner) configKey() string {
	return p.baseURL + "\x00" + p.apiKey
}
