package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"gym-frontdesk/backend/internal/platformsettings/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a settings repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetDeviceTrustSettings returns the device trust settings from the settings table, or defaults.
func (r *PostgresRepository) GetDeviceTrustSettings(ctx context.Context) (*domain.DeviceTrustSettings, error) {
	out := domain.DefaultDeviceTrustSettings()
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value_json FROM settings WHERE key IN ($1, $2)`,
		domain.KeyFingerprintingEnabled, domain.KeyFingerprintRoles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		if err := applySetting(&out, key, value); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetFingerprintingEnabled upserts the device_fingerprinting_enabled row.
func (r *PostgresRepository) SetFingerprintingEnabled(ctx context.Context, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value_json) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value_json = EXCLUDED.value_json, updated_at = now()`,
		domain.KeyFingerprintingEnabled, strconv.FormatBool(enabled))
	return err
}

// applySetting decodes one settings row into s. A malformed value is an error so that
// the gate never silently falls back to a more permissive configuration.
func applySetting(s *domain.DeviceTrustSettings, key, value string) error {
	switch key {
	case domain.KeyFingerprintingEnabled:
		v, err := parseBool(value)
		if err != nil {
			return errors.New("settings: invalid " + key + " value")
		}
		s.FingerprintingEnabled = v
	case domain.KeyFingerprintRoles:
		roles, err := parseRoles(value)
		if err != nil {
			return errors.New("settings: invalid " + key + " value")
		}
		s.FingerprintRoles = roles
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(s), `"`)) {
	case "true", "1":
		return true, nil
	case "false", "0", "":
		return false, nil
	default:
		return false, strconv.ErrSyntax
	}
}

// parseRoles accepts a JSON string array or a comma-separated list.
func parseRoles(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") {
		var roles []string
		if err := json.Unmarshal([]byte(s), &roles); err != nil {
			return nil, err
		}
		return roles, nil
	}
	var roles []string
	for _, p := range strings.Split(s, ",") {
		if r := strings.TrimSpace(p); r != "" {
			roles = append(roles, r)
		}
	}
	return roles, nil
}
