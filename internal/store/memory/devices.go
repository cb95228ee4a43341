package memory

import (
	"context"
	"sort"
	"time"

	"gym-frontdesk/backend/internal/device/domain"
)

// Devices implements the device repository.
type Devices struct{ s *Store }

func (d *Devices) IsAuthorized(ctx context.Context, userID, fingerprint string) (bool, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if err := d.s.faultLocked(ctx, OpIsAuthorized); err != nil {
		return false, err
	}
	_, ok := d.s.devices[deviceKey{userID, fingerprint}]
	return ok, nil
}

func (d *Devices) TouchLastUsed(ctx context.Context, userID, fingerprint string, at time.Time) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if dev, ok := d.s.devices[deviceKey{userID, fingerprint}]; ok {
		t := at
		dev.LastUsedAt = &t
	}
	return nil
}

// Device returns the authorized device for the pair, or nil.
func (d *Devices) Device(userID, fingerprint string) *domain.AuthorizedDevice {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	dev, ok := d.s.devices[deviceKey{userID, fingerprint}]
	if !ok {
		return nil
	}
	c := *dev
	return &c
}

func (d *Devices) CreateOrReusePending(ctx context.Context, userID, fingerprint, description string, window time.Duration) (int64, bool, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if err := d.s.faultLocked(ctx, OpCreateRequest); err != nil {
		return 0, false, err
	}
	now := d.s.now()
	var newest *domain.AuthorizationRequest
	for _, r := range d.s.requests {
		if r.UserID != userID || r.Fingerprint != fingerprint || r.Status != domain.StatusPending {
			continue
		}
		if !r.RequestedAt.After(now.Add(-window)) {
			continue
		}
		if newest == nil || r.RequestedAt.After(newest.RequestedAt) {
			newest = r
		}
	}
	if newest != nil {
		if description != "" {
			newest.Description = description
		}
		return newest.ID, true, nil
	}
	d.s.nextReqID++
	r := &domain.AuthorizationRequest{
		ID:          d.s.nextReqID,
		UserID:      userID,
		Fingerprint: fingerprint,
		Status:      domain.StatusPending,
		RequestedAt: now,
		Description: description,
	}
	d.s.requests[r.ID] = r
	return r.ID, false, nil
}

func (d *Devices) GetRequest(ctx context.Context, id int64) (*domain.AuthorizationRequest, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if err := d.s.faultLocked(ctx, OpGetRequest); err != nil {
		return nil, err
	}
	r, ok := d.s.requests[id]
	if !ok {
		return nil, nil
	}
	return cloneRequest(r), nil
}

func (d *Devices) ListPending(ctx context.Context) ([]*domain.AuthorizationRequest, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*domain.AuthorizationRequest
	for _, r := range d.s.requests {
		if r.Status == domain.StatusPending {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Devices) Approve(ctx context.Context, req *domain.AuthorizationRequest, adminID, notes string) (bool, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r, ok := d.s.requests[req.ID]
	if !ok || r.Status != domain.StatusPending || r.UserID != req.UserID || r.Fingerprint != req.Fingerprint {
		return false, nil
	}
	d.s.reviewLocked(r, domain.StatusApproved, adminID, notes)
	d.s.devices[deviceKey{r.UserID, r.Fingerprint}] = &domain.AuthorizedDevice{
		UserID:       r.UserID,
		Fingerprint:  r.Fingerprint,
		Description:  req.Description,
		AuthorizedAt: d.s.now(),
	}
	return true, nil
}

func (d *Devices) Deny(ctx context.Context, id int64, adminID, notes string) (bool, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r, ok := d.s.requests[id]
	if !ok || r.Status != domain.StatusPending {
		return false, nil
	}
	d.s.reviewLocked(r, domain.StatusDenied, adminID, notes)
	return true, nil
}

// reviewLocked moves r to status and notifies subscribers. s.mu must be held.
func (s *Store) reviewLocked(r *domain.AuthorizationRequest, status domain.RequestStatus, adminID, notes string) {
	now := s.now()
	r.Status = status
	r.ReviewedAt = &now
	r.ReviewerID = adminID
	r.AdminNotes = notes
	s.notifyLocked(domain.StatusChange{RequestID: r.ID, Status: status})
}

func cloneRequest(r *domain.AuthorizationRequest) *domain.AuthorizationRequest {
	c := *r
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		c.ReviewedAt = &t
	}
	return &c
}
