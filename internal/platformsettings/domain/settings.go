package domain

import "strings"

// Setting keys in the settings table.
const (
	KeyFingerprintingEnabled = "device_fingerprinting_enabled"
	KeyFingerprintRoles      = "fingerprint_roles"
)

// DeviceTrustSettings holds the settings rows the device trust gate reads.
type DeviceTrustSettings struct {
	// FingerprintingEnabled is the global escape hatch; false means every device is trusted.
	FingerprintingEnabled bool
	// FingerprintRoles lists the roles whose devices must be pre-authorized.
	FingerprintRoles []string
}

// DefaultDeviceTrustSettings returns the settings used when rows are missing.
func DefaultDeviceTrustSettings() DeviceTrustSettings {
	return DeviceTrustSettings{
		FingerprintingEnabled: true,
		FingerprintRoles:      []string{"cashier", "receptionist"},
	}
}

// RoleRequiresFingerprint reports whether role is listed in FingerprintRoles (case-insensitive).
func (s DeviceTrustSettings) RoleRequiresFingerprint(role string) bool {
	role = strings.TrimSpace(role)
	for _, r := range s.FingerprintRoles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}
