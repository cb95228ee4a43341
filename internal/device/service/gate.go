package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"gym-frontdesk/backend/internal/audit"
	"gym-frontdesk/backend/internal/device/repository"
	platformdomain "gym-frontdesk/backend/internal/platformsettings/domain"
	"gym-frontdesk/backend/internal/policy/engine"
	"gym-frontdesk/backend/internal/telemetry"
	telemetrydomain "gym-frontdesk/backend/internal/telemetry/domain"
	userdomain "gym-frontdesk/backend/internal/user/domain"
)

const touchTimeout = 5 * time.Second

var tracer = otel.Tracer("gym-frontdesk/device")

var (
	// ErrUnknownUser is returned when the user being evaluated has no profile row.
	ErrUnknownUser = errors.New("user profile not found")
	// ErrMissingFingerprint is returned when a role that requires fingerprinting presents none.
	ErrMissingFingerprint = errors.New("device fingerprint required")
)

// SettingsReader reads the device trust settings rows.
type SettingsReader interface {
	GetDeviceTrustSettings(ctx context.Context) (*platformdomain.DeviceTrustSettings, error)
}

// ProfileReader reads staff profiles.
type ProfileReader interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Decision is the outcome of Gate.Evaluate. When Trusted is false the session must wait for
// RequestID to be approved.
type Decision struct {
	Trusted   bool
	RequestID int64
	// Reused is set when an existing pending request inside the reuse window was returned.
	Reused bool
	// Bypassed is set when fingerprinting is globally disabled.
	Bypassed bool
}

// Gate decides whether a (user, fingerprint) pair may proceed.
type Gate struct {
	devices     repository.Repository
	settings    SettingsReader
	profiles    ProfileReader
	policy      engine.Evaluator
	audit       audit.AuditLogger
	emitter     telemetry.EventEmitter
	reuseWindow time.Duration
	now         func() time.Time

	touches sync.WaitGroup

	mu sync.Mutex
	// bypassed is the user and fingerprint whose bypass was last audited; cleared once fingerprinting is on.
	bypassed string
}

// NewGate returns a Gate. auditLogger and emitter may be nil.
func NewGate(
	devices repository.Repository,
	settings SettingsReader,
	profiles ProfileReader,
	policy engine.Evaluator,
	auditLogger audit.AuditLogger,
	emitter telemetry.EventEmitter,
	reuseWindow time.Duration,
) *Gate {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Gate{
		devices:     devices,
		settings:    settings,
		profiles:    profiles,
		policy:      policy,
		audit:       auditLogger,
		emitter:     emitter,
		reuseWindow: reuseWindow,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate returns Trusted or NeedsApproval(requestID) for the pair. Any store or policy failure is
// returned as an error; the gate never resolves an ambiguous decision to trusted.
func (g *Gate) Evaluate(ctx context.Context, userID, fingerprint, description string) (Decision, error) {
	ctx, span := tracer.Start(ctx, "device.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	d, err := g.evaluate(ctx, userID, strings.TrimSpace(fingerprint), description)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Decision{}, err
	}
	span.SetAttributes(attribute.Bool("device.trusted", d.Trusted), attribute.Int64("device.request_id", d.RequestID))
	return d, nil
}

func (g *Gate) evaluate(ctx context.Context, userID, fingerprint, description string) (Decision, error) {
	settings, err := g.settings.GetDeviceTrustSettings(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("read device trust settings: %w", err)
	}
	if settings == nil {
		def := platformdomain.DefaultDeviceTrustSettings()
		settings = &def
	}
	if !settings.FingerprintingEnabled {
		if g.firstBypass(userID, fingerprint) {
			g.audit.LogEvent(ctx, userID, audit.ActionDeviceTrustBypassed, "device:"+fingerprint, "fingerprinting disabled")
		}
		g.emit(telemetrydomain.TypeDeviceTrustBypassed, userID, 0, nil)
		return Decision{Trusted: true, Bypassed: true}, nil
	}

	g.mu.Lock()
	g.bypassed = ""
	g.mu.Unlock()

	u, err := g.profiles.GetByID(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("read profile: %w", err)
	}
	if u == nil {
		return Decision{}, ErrUnknownUser
	}
	required, err := g.policy.RequiresFingerprint(ctx, *settings, string(u.Role))
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate fingerprint policy: %w", err)
	}
	if !required {
		return Decision{Trusted: true}, nil
	}
	if fingerprint == "" {
		return Decision{}, ErrMissingFingerprint
	}

	ok, err := g.devices.IsAuthorized(ctx, userID, fingerprint)
	if err != nil {
		return Decision{}, fmt.Errorf("check authorized devices: %w", err)
	}
	if ok {
		g.touchAsync(userID, fingerprint)
		return Decision{Trusted: true}, nil
	}

	id, reused, err := g.devices.CreateOrReusePending(ctx, userID, fingerprint, description, g.reuseWindow)
	if err != nil {
		return Decision{}, fmt.Errorf("create device authorization request: %w", err)
	}
	g.emit(telemetrydomain.TypeDeviceApprovalRequested, userID, id, map[string]any{"reused": reused})
	return Decision{RequestID: id, Reused: reused}, nil
}

// touchAsync updates last_used_at off the caller's path. Failures are logged and ignored.
func (g *Gate) touchAsync(userID, fingerprint string) {
	g.touches.Add(1)
	go func() {
		defer g.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := g.devices.TouchLastUsed(ctx, userID, fingerprint, g.now()); err != nil {
			log.Printf("device: touch last used for %s: %v", userID, err)
		}
	}()
}

// Drain waits for in-flight last-used updates.
func (g *Gate) Drain() {
	g.touches.Wait()
}

func (g *Gate) emit(eventType, userID string, requestID int64, metadata map[string]any) {
	if g.emitter == nil {
		return
	}
	ev := telemetry.NewEvent(eventType, "device", userID, metadata)
	ev.RequestID = requestID
	telemetry.EmitAsync(g.emitter, ev)
}

// firstBypass reports whether this bypass starts a new run for the pair. Refreshes and reestablished
// sessions of the same sign-in repeat the pair and are not audited again.
func (g *Gate) firstBypass(userID, fingerprint string) bool {
	key := userID + "\x00" + fingerprint
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bypassed == key {
		return false
	}
	g.bypassed = key
	return true
}
