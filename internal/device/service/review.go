package service

import (
	"context"
	"fmt"
	"strconv"

	"gym-frontdesk/backend/internal/audit"
	"gym-frontdesk/backend/internal/device/domain"
	"gym-frontdesk/backend/internal/device/repository"
	"gym-frontdesk/backend/internal/platform/rbac"
	"gym-frontdesk/backend/internal/telemetry"
	telemetrydomain "gym-frontdesk/backend/internal/telemetry/domain"
)

// FingerprintingSetter toggles the global fingerprinting flag.
type FingerprintingSetter interface {
	SetFingerprintingEnabled(ctx context.Context, enabled bool) error
}

// Reviewer implements the administrator side of device authorization.
type Reviewer struct {
	devices  repository.Repository
	profiles rbac.ProfileGetter
	settings FingerprintingSetter
	audit    audit.AuditLogger
	emitter  telemetry.EventEmitter
}

// NewReviewer returns a Reviewer. auditLogger and emitter may be nil.
func NewReviewer(devices repository.Repository, profiles rbac.ProfileGetter, settings FingerprintingSetter, auditLogger audit.AuditLogger, emitter telemetry.EventEmitter) *Reviewer {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Reviewer{devices: devices, profiles: profiles, settings: settings, audit: auditLogger, emitter: emitter}
}

// ListPending returns pending requests, oldest first.
func (r *Reviewer) ListPending(ctx context.Context) ([]*domain.AuthorizationRequest, error) {
	return r.devices.ListPending(ctx)
}

// Approve transitions a pending request to approved and registers its device as trusted.
// Returns ErrRequestNotPending if the request already left pending.
func (r *Reviewer) Approve(ctx context.Context, requestID int64, adminID, notes string) (*domain.AuthorizationRequest, error) {
	req, err := r.pendingRequest(ctx, requestID, adminID)
	if err != nil {
		return nil, err
	}
	ok, err := r.devices.Approve(ctx, req, adminID, notes)
	if err != nil {
		return nil, fmt.Errorf("approve request %d: %w", requestID, err)
	}
	if !ok {
		return nil, domain.ErrRequestNotPending
	}
	r.audit.LogEvent(ctx, adminID, audit.ActionDeviceApproved, requestResource(requestID), notes)
	r.emit(telemetrydomain.TypeDeviceRequestApproved, req.UserID, requestID, adminID)
	return r.devices.GetRequest(ctx, requestID)
}

// Deny transitions a pending request to denied. Returns ErrRequestNotPending if it already left pending.
func (r *Reviewer) Deny(ctx context.Context, requestID int64, adminID, notes string) (*domain.AuthorizationRequest, error) {
	req, err := r.pendingRequest(ctx, requestID, adminID)
	if err != nil {
		return nil, err
	}
	ok, err := r.devices.Deny(ctx, requestID, adminID, notes)
	if err != nil {
		return nil, fmt.Errorf("deny request %d: %w", requestID, err)
	}
	if !ok {
		return nil, domain.ErrRequestNotPending
	}
	r.audit.LogEvent(ctx, adminID, audit.ActionDeviceDenied, requestResource(requestID), notes)
	r.emit(telemetrydomain.TypeDeviceRequestDenied, req.UserID, requestID, adminID)
	return r.devices.GetRequest(ctx, requestID)
}

// SetFingerprinting turns the global fingerprinting flag on or off. Turning it off trusts every device.
func (r *Reviewer) SetFingerprinting(ctx context.Context, adminID string, enabled bool) error {
	if _, err := rbac.RequireAdmin(ctx, r.profiles, adminID); err != nil {
		return err
	}
	if err := r.settings.SetFingerprintingEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("set fingerprinting: %w", err)
	}
	r.audit.LogEvent(ctx, adminID, audit.ActionFingerprintingSet, "settings:device_fingerprinting_enabled", strconv.FormatBool(enabled))
	return nil
}

func (r *Reviewer) pendingRequest(ctx context.Context, requestID int64, adminID string) (*domain.AuthorizationRequest, error) {
	if _, err := rbac.RequireAdmin(ctx, r.profiles, adminID); err != nil {
		return nil, err
	}
	req, err := r.devices.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("read request %d: %w", requestID, err)
	}
	if req == nil {
		return nil, domain.ErrRequestNotFound
	}
	if req.Status != domain.StatusPending {
		return nil, domain.ErrRequestNotPending
	}
	return req, nil
}

func (r *Reviewer) emit(eventType, userID string, requestID int64, adminID string) {
	if r.emitter == nil {
		return
	}
	ev := telemetry.NewEvent(eventType, "device", userID, map[string]any{"admin_id": adminID})
	ev.RequestID = requestID
	telemetry.EmitAsync(r.emitter, ev)
}

func requestResource(id int64) string {
	return "device_request:" + strconv.FormatInt(id, 10)
}
