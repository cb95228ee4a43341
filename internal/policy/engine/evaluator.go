package engine

import (
	"context"

	platformdomain "gym-frontdesk/backend/internal/platformsettings/domain"
)

// Evaluator decides device-trust policy questions using OPA or other engines.
type Evaluator interface {
	// RequiresFingerprint reports whether staff with role must log in from a pre-authorized device.
	RequiresFingerprint(ctx context.Context, settings platformdomain.DeviceTrustSettings, role string) (bool, error)
}
