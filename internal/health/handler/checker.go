// Package handler reports front-desk readiness through the standard gRPC health service.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultInterval = 15 * time.Second
	checkTimeout    = 5 * time.Second
)

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the policy engine can evaluate (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusSetter receives serving status updates (e.g. *health.Server).
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// Checker runs readiness checks and publishes the result for the overall ("") service.
type Checker struct {
	pinger   Pinger
	policy   PolicyChecker
	setter   StatusSetter
	Interval time.Duration
}

// NewChecker returns a Checker. pinger and policy may be nil; nil checks are skipped.
func NewChecker(pinger Pinger, policy PolicyChecker, setter StatusSetter) *Checker {
	return &Checker{pinger: pinger, policy: policy, setter: setter, Interval: defaultInterval}
}

// Check runs every configured check and returns their joined failures.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	var errs []error
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("policy: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Update runs Check once and publishes SERVING or NOT_SERVING.
func (c *Checker) Update(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := c.Check(ctx); err != nil {
		log.Printf("health: not serving: %v", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if c.setter != nil {
		c.setter.SetServingStatus("", status)
	}
	return status
}

// Run updates the status immediately and then every Interval until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	c.Update(ctx)
	t := time.NewTicker(c.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Update(ctx)
		}
	}
}
