package license

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/logger"
	"grading-assistant-core/internal/model"

	"github.com/rs/zerolog"
)

// HTTPGate asks the license endpoint of the remote service.
type HTTPGate struct {
	cfg        *config.Config
	httpClient *http.Client
	identity   model.Identity
	log        zerolog.Logger
}

func NewHTTPGate(cfg *config.Config) *HTTPGate {
	return &HTTPGate{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RemoteAPI.Timeout,
		},
		identity: model.Identity{
			DeviceID:     cfg.License.DeviceID,
			ActivationID: cfg.License.ActivationID,
		},
		log: logger.Component("license_gate"),
	}
}

func (g *HTTPGate) Identity(ctx context.Context) (model.Identity, error) {
	if g.identity.DeviceID == "" {
		return g.identity, fmt.Errorf("device id is not configured")
	}
	return g.identity, nil
}

func (g *HTTPGate) Status(ctx context.Context, id model.Identity) (*model.LicenseStatus, error) {
	url := g.cfg.RemoteAPI.BaseURL + g.cfg.RemoteAPI.LicenseEndpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	SetIdentityHeaders(req, id)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check license: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var status model.LicenseStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	g.log.Debug().
		Str("device_id", id.DeviceID).
		Bool("entitled", status.Entitled).
		Int("remaining_quota", status.RemainingQuota).
		Msg("License status checked")

	return &status, nil
}
