// Package license exposes the entitlement collaborator consulted before any
// remote call. It does not implement licensing itself.
package license

import (
	"context"
	"net/http"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/model"
)

const (
	HeaderDeviceID     = "X-Device-Id"
	HeaderActivationID = "X-Activation-Id"
)

type Gate interface {
	Identity(ctx context.Context) (model.Identity, error)
	Status(ctx context.Context, id model.Identity) (*model.LicenseStatus, error)
}

// Entitled resolves the identity and reports whether it may sync.
func Entitled(ctx context.Context, g Gate) (model.Identity, bool, error) {
	id, err := g.Identity(ctx)
	if err != nil {
		return id, false, err
	}
	status, err := g.Status(ctx, id)
	if err != nil {
		return id, false, err
	}
	return id, status.Entitled, nil
}

// SetIdentityHeaders stamps the identity on an outgoing request.
func SetIdentityHeaders(req *http.Request, id model.Identity) {
	req.Header.Set(HeaderDeviceID, id.DeviceID)
	if id.ActivationID != "" {
		req.Header.Set(HeaderActivationID, id.ActivationID)
	}
}

// IdentityFromRequest reads the identity headers of an incoming request.
func IdentityFromRequest(req *http.Request) model.Identity {
	return model.Identity{
		DeviceID:     req.Header.Get(HeaderDeviceID),
		ActivationID: req.Header.Get(HeaderActivationID),
	}
}

// StaticGate answers from fixed values. It backs offline use and tests.
type StaticGate struct {
	ID     model.Identity
	Result model.LicenseStatus
}

func NewStaticGate(id model.Identity, entitled bool, quota int) *StaticGate {
	return &StaticGate{
		ID:     id,
		Result: model.LicenseStatus{Entitled: entitled, RemainingQuota: quota},
	}
}

// NewStaticGateFromConfig treats a configured activation id as entitlement.
func NewStaticGateFromConfig(cfg config.LicenseConfig) *StaticGate {
	id := model.Identity{DeviceID: cfg.DeviceID, ActivationID: cfg.ActivationID}
	entitled := cfg.ActivationID != "" || !cfg.RequireLicense
	return NewStaticGate(id, entitled, cfg.DefaultQuota)
}

func (g *StaticGate) Identity(ctx context.Context) (model.Identity, error) {
	return g.ID, nil
}

func (g *StaticGate) Status(ctx context.Context, id model.Identity) (*model.LicenseStatus, error) {
	status := g.Result
	return &status, nil
}
