package memory

import (
	"context"
	"strings"

	"gym-frontdesk/backend/internal/platformsettings/domain"
	userdomain "gym-frontdesk/backend/internal/user/domain"
)

// Users implements the profile repository.
type Users struct{ s *Store }

func (u *Users) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.faultLocked(ctx, OpGetProfile); err != nil {
		return nil, err
	}
	p, ok := u.s.users[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (u *Users) Upsert(ctx context.Context, p *userdomain.User) error {
	if err := p.Validate(); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	c := *p
	u.s.users[p.ID] = &c
	return nil
}

// Settings implements the settings repository.
type Settings struct{ s *Store }

func (st *Settings) GetDeviceTrustSettings(ctx context.Context) (*domain.DeviceTrustSettings, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.s.faultLocked(ctx, OpGetSettings); err != nil {
		return nil, err
	}
	c := st.s.settings
	c.FingerprintRoles = append([]string(nil), c.FingerprintRoles...)
	return &c, nil
}

func (st *Settings) SetFingerprintingEnabled(ctx context.Context, enabled bool) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	st.s.settings.FingerprintingEnabled = enabled
	return nil
}

// SetFingerprintRoles replaces the role list. Roles are trimmed and empty entries dropped.
func (st *Settings) SetFingerprintRoles(roles ...string) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	st.s.settings.FingerprintRoles = out
}
