package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"backoffice/backend/internal/policy/repository"
	"backoffice/backend/internal/security"
	userdomain "backoffice/backend/internal/user/domain"
)

const (
	rolesQuery     = "data.backoffice.credentials.roles"
	minLengthQuery = "data.backoffice.credentials.min_password_length"
)

// Default Rego policy: every account gets the "user" role, passwords need 8 characters.
const defaultRegoPolicy = `package backoffice.credentials

default roles := ["user"]

default min_password_length := 8
`

// OPAEvaluator evaluates credential policies using OPA Rego. Operator modules from the
// repository replace the default module.
type OPAEvaluator struct {
	policyRepo repository.Repository
}

// NewOPAEvaluator returns an OPA-based policy evaluator. policyRepo may be nil.
func NewOPAEvaluator(policyRepo repository.Repository) *OPAEvaluator {
	return &OPAEvaluator{policyRepo: policyRepo}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
// Does not call the policy repo. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	compiler, err := ast.CompileModules(map[string]string{"policy_0.rego": defaultRegoPolicy})
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	rs, err := rego.New(
		rego.Query(rolesQuery),
		rego.Compiler(compiler),
		rego.Input(buildInput(nil)),
	).Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// EvaluateCredentials evaluates roles and password length. Evaluation failures are logged and
// answered with the defaults.
func (e *OPAEvaluator) EvaluateCredentials(ctx context.Context, user *userdomain.User) (CredentialPolicy, error) {
	result, err := e.evaluatePolicies(ctx, e.loadPolicies(ctx), buildInput(user))
	if err != nil {
		log.Printf("policy: evaluation failed: %v, using defaults", err)
		return defaultResult(), nil
	}
	return result, nil
}

// Validate compiles the configured modules; cmd/server calls it at startup so a broken
// POLICY_FILE is reported before serving.
func (e *OPAEvaluator) Validate(ctx context.Context) error {
	modules := make(map[string]string)
	for i, policy := range e.loadPolicies(ctx) {
		modules[fmt.Sprintf("policy_%d.rego", i)] = policy
	}
	if _, err := ast.CompileModules(modules); err != nil {
		return fmt.Errorf("compile policies: %w", err)
	}
	return nil
}

func (e *OPAEvaluator) loadPolicies(ctx context.Context) []string {
	var policies []string
	if e.policyRepo != nil {
		enabled, err := e.policyRepo.GetEnabledPolicies(ctx)
		if err != nil {
			log.Printf("policy: failed to load policies: %v", err)
		}
		for _, p := range enabled {
			if p.Enabled && p.Rules != "" {
				policies = append(policies, p.Rules)
			}
		}
	}
	if len(policies) == 0 {
		policies = []string{defaultRegoPolicy}
	}
	return policies
}

func buildInput(user *userdomain.User) map[string]interface{} {
	userMap := map[string]interface{}{
		"id":                 "",
		"email":              "",
		"email_verified":     false,
		"two_factor_enabled": false,
	}
	if user != nil {
		userMap["id"] = user.ID
		userMap["email"] = user.Email
		userMap["email_verified"] = user.EmailVerified
		userMap["two_factor_enabled"] = user.TwoFactorEnabled
	}
	return map[string]interface{}{"user": userMap}
}

func (e *OPAEvaluator) evaluatePolicies(ctx context.Context, policies []string, input map[string]interface{}) (CredentialPolicy, error) {
	modules := make(map[string]string)
	for i, policy := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = policy
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return CredentialPolicy{}, fmt.Errorf("compile policies: %w", err)
	}

	out := defaultResult()

	rolesRS, err := rego.New(rego.Query(rolesQuery), rego.Compiler(compiler), rego.Input(input)).Eval(ctx)
	if err == nil && len(rolesRS) > 0 && len(rolesRS[0].Expressions) > 0 {
		if list, ok := rolesRS[0].Expressions[0].Value.([]interface{}); ok {
			var roles []string
			for _, v := range list {
				if s, ok := v.(string); ok && s != "" {
					roles = append(roles, s)
				}
			}
			if len(roles) > 0 {
				out.Roles = roles
			}
		}
	}

	lenRS, err := rego.New(rego.Query(minLengthQuery), rego.Compiler(compiler), rego.Input(input)).Eval(ctx)
	if err == nil && len(lenRS) > 0 && len(lenRS[0].Expressions) > 0 {
		switch v := lenRS[0].Expressions[0].Value.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				out.MinPasswordLength = int(n)
			}
		case float64:
			out.MinPasswordLength = int(v)
		case int64:
			out.MinPasswordLength = int(v)
		}
	}
	if out.MinPasswordLength < PasswordMinLengthFloor {
		out.MinPasswordLength = PasswordMinLengthFloor
	}
	return out, nil
}

func defaultResult() CredentialPolicy {
	return CredentialPolicy{
		Roles:             []string{security.DefaultRole},
		MinPasswordLength: PasswordMinLengthFloor,
	}
}
