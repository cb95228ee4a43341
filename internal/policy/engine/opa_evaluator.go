package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	platformdomain "gym-frontdesk/backend/internal/platformsettings/domain"
)

const requiresFingerprintQuery = "data.gym.device_trust.requires_fingerprint"

// DefaultRegoPolicy requires a pre-authorized device for every role listed in fingerprint_roles.
const DefaultRegoPolicy = `package gym.device_trust

default requires_fingerprint := false

requires_fingerprint if {
	some r in input.settings.fingerprint_roles
	lower(trim_space(r)) == lower(trim_space(input.user.role))
}
`

// OPAEvaluator evaluates device-trust policy using OPA Rego.
type OPAEvaluator struct {
	module string
}

// NewOPAEvaluator returns an OPA-based policy evaluator using the default policy.
func NewOPAEvaluator() *OPAEvaluator {
	return &OPAEvaluator{module: DefaultRegoPolicy}
}

// NewOPAEvaluatorWithModule returns an evaluator for a custom Rego module.
// The module must define data.gym.device_trust.requires_fingerprint.
func NewOPAEvaluatorWithModule(module string) *OPAEvaluator {
	return &OPAEvaluator{module: module}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the policy.
// Does not touch the database. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.RequiresFingerprint(ctx, platformdomain.DefaultDeviceTrustSettings(), "cashier")
	return err
}

// RequiresFingerprint evaluates requires_fingerprint for role. Any compile or evaluation
// failure is returned as an error; it never resolves to an implicit allow.
func (e *OPAEvaluator) RequiresFingerprint(ctx context.Context, settings platformdomain.DeviceTrustSettings, role string) (bool, error) {
	compiler, err := ast.CompileModules(map[string]string{"device_trust.rego": e.module})
	if err != nil {
		return false, fmt.Errorf("compile policy: %w", err)
	}
	roles := make([]interface{}, 0, len(settings.FingerprintRoles))
	for _, r := range settings.FingerprintRoles {
		roles = append(roles, r)
	}
	input := map[string]interface{}{
		"settings": map[string]interface{}{
			"fingerprinting_enabled": settings.FingerprintingEnabled,
			"fingerprint_roles":      roles,
		},
		"user": map[string]interface{}{
			"role": role,
		},
	}
	q := rego.New(
		rego.Query(requiresFingerprintQuery),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("policy query returned no result")
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy result is %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}

var _ Evaluator = (*OPAEvaluator)(nil)
