package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"
)

// Engine evaluates release policies before gated actions.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	builtins map[string]*compiledPolicy
	disabled map[string]bool
	store    storage.Store
	logger   zerolog.Logger
	loader   *Loader
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine holding the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	store := inmem.NewFromObject(map[string]interface{}{
		"hu": map[string]interface{}{
			"gated_actions": toInterfaces(GatedActions),
		},
	})

	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		builtins: make(map[string]*compiledPolicy),
		disabled: make(map[string]bool),
		store:    store,
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
	e.loader = NewLoader(e.logger)

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}
	return e, nil
}

// EvaluateAction evaluates every enabled policy against input.
func (e *Engine) EvaluateAction(ctx context.Context, input Input) (*Result, error) {
	start := time.Now()

	e.mu.RLock()
	names := make([]string, 0, len(e.policies))
	for name, cp := range e.policies {
		if cp.policy.Enabled && !e.disabled[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	compiled := make([]*compiledPolicy, 0, len(names))
	for _, name := range names {
		compiled = append(compiled, e.policies[name])
	}
	e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedPolicies: names}
	for _, cp := range compiled {
		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("action", input.Action).
				Msg("Policy evaluation failed")
			result.Warnings = append(result.Warnings, Violation{
				Policy:   cp.policy.Name,
				Message:  fmt.Sprintf("evaluation failed: %v", err),
				Severity: SeverityWarning,
			})
			continue
		}

		for _, v := range violations {
			if v.Severity.Blocking() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}
	result.Duration = time.Since(start)

	e.logger.Debug().
		Str("action", input.Action).
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Action policy evaluation completed")

	return result, nil
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, d))
		}
	}

	sort.Slice(violations, func(i, j int) bool {
		return violations[i].Message < violations[j].Message
	})
	return violations, nil
}

// createViolation creates a Violation from one deny set element.
func createViolation(policy *Policy, result interface{}) Violation {
	v := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		if rem, ok := r["remediation"].(string); ok {
			v.Remediation = rem
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

// compile parses a policy and prepares its deny query.
func (e *Engine) compile(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil {
		return nil, errors.New("policy is empty")
	}

	query := module.Package.Path.String() + ".deny"
	r := rego.New(
		rego.ParsedModule(module),
		rego.Store(e.store),
		rego.Query(query),
	)

	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    prepared,
		compiled: time.Now(),
	}, nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtins := BuiltinPolicies()
	for i := range builtins {
		cp, err := e.compile(ctx, &builtins[i])
		if err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
		e.builtins[builtins[i].Name] = cp
		e.policies[builtins[i].Name] = cp
	}

	e.logger.Debug().
		Int("count", len(builtins)).
		Msg("Built-in policies loaded")
	return nil
}

// LoadDir replaces the repository policies with the .rego and .json files
// found in dir. A missing directory leaves only the built-ins.
func (e *Engine) LoadDir(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return e.replaceRepoPolicies(ctx, nil)
	}

	policies, err := e.loader.LoadFromPaths(ctx, []string{dir})
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.replaceRepoPolicies(ctx, policies)
}

// Watch reloads the policies in dir whenever a file changes, until ctx is
// done.
func (e *Engine) Watch(ctx context.Context, dir string) error {
	return e.loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		return e.replaceRepoPolicies(ctx, policies)
	})
}

// replaceRepoPolicies compiles all policies first and swaps them in only if
// every one compiled.
func (e *Engine) replaceRepoPolicies(ctx context.Context, policies []Policy) error {
	compiled := make(map[string]*compiledPolicy, len(policies))
	for i := range policies {
		p := &policies[i]
		if p.Source == SourceBuiltin {
			return fmt.Errorf("policy %s: source %q is reserved", p.Name, SourceBuiltin)
		}
		cp, err := e.compile(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
		compiled[p.Name] = cp
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	merged := make(map[string]*compiledPolicy, len(e.builtins)+len(compiled))
	for name, cp := range e.builtins {
		merged[name] = cp
	}
	for name, cp := range compiled {
		if _, ok := e.builtins[name]; ok {
			e.logger.Warn().Str("policy", name).Msg("Repository policy overrides built-in")
		}
		merged[name] = cp
	}
	e.policies = merged

	e.logger.Debug().Int("count", len(compiled)).Msg("Repository policies loaded")
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	p := *cp.policy
	p.Enabled = p.Enabled && !e.disabled[name]
	return &p, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for name, cp := range e.policies {
		p := *cp.policy
		p.Enabled = p.Enabled && !e.disabled[name]
		policies = append(policies, p)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies
}

// DisablePolicies turns off the named policies. The names stay disabled
// when repository policies are reloaded; a name that matches no policy yet
// is kept for later loads.
func (e *Engine) DisablePolicies(names ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, name := range names {
		e.disabled[name] = true
		if _, ok := e.policies[name]; !ok {
			e.logger.Debug().Str("policy", name).Msg("Disabled policy is not loaded")
		}
	}
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
