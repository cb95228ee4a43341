package repository

import (
	"context"

	"gym-frontdesk/backend/internal/platformsettings/domain"
)

// Repository defines access to the settings rows used for device trust.
type Repository interface {
	// GetDeviceTrustSettings returns the fingerprinting flag and role list.
	// Uses domain.DefaultDeviceTrustSettings for keys that are missing.
	GetDeviceTrustSettings(ctx context.Context) (*domain.DeviceTrustSettings, error)
	// SetFingerprintingEnabled writes the device_fingerprinting_enabled flag.
	SetFingerprintingEnabled(ctx context.Context, enabled bool) error
}
