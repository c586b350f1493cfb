// Package policy decides whether an app should be restricted.
//
// Decisions come from a rego module evaluated with the facts the budget
// coordinator knows about the app. A default module is compiled into the
// binary; a directory of .rego files replaces it.
package policy

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Query is the rule every policy module must define.
const Query = "data.qinghe.restriction.restrict"

//go:embed restriction.rego
var defaultPolicy string

// Facts is the evaluation input for one app.
type Facts struct {
	AppToken            string
	PoolUnlocked        bool
	Exhausted           bool
	TemporarilyUnlocked bool
	PenaltyCancelled    bool
	RemainingSeconds    int64
	UsedSeconds         int64
}

func (f Facts) input() map[string]interface{} {
	return map[string]interface{}{
		"app_token":            f.AppToken,
		"pool_unlocked":        f.PoolUnlocked,
		"exhausted":            f.Exhausted,
		"temporarily_unlocked": f.TemporarilyUnlocked,
		"penalty_cancelled":    f.PenaltyCancelled,
		"remaining_seconds":    f.RemainingSeconds,
		"used_seconds":         f.UsedSeconds,
	}
}

// Engine evaluates the restriction policy.
type Engine struct {
	policyDir string
	logger    zerolog.Logger

	mu    sync.RWMutex
	query rego.PreparedEvalQuery
	files []string
}

// NewEngine compiles the policy. An empty policyDir uses the embedded module.
func NewEngine(policyDir string, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policyDir: policyDir,
		logger:    logger.With().Str("component", "policy").Logger(),
	}

	if err := e.load(); err != nil {
		return nil, err
	}

	e.logger.Info().Str("source", e.Source()).Msg("Restriction policy initialized")
	return e, nil
}

// Source describes where the active policy came from.
func (e *Engine) Source() string {
	if e.policyDir == "" {
		return "embedded"
	}
	return e.policyDir
}

// Files lists the loaded policy modules.
func (e *Engine) Files() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.files...)
}

// Reload recompiles the policy. On failure the previous policy stays active.
func (e *Engine) Reload() error {
	e.logger.Info().Msg("Reloading restriction policy")
	if err := e.load(); err != nil {
		return fmt.Errorf("failed to reload policy: %w", err)
	}
	e.logger.Info().Msg("Restriction policy reloaded successfully")
	return nil
}

// Decide reports whether the app should be restricted. Any evaluation
// failure restricts.
func (e *Engine) Decide(ctx context.Context, facts Facts) (bool, error) {
	startTime := time.Now()

	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(facts.input()))
	if err != nil {
		return true, fmt.Errorf("restriction query evaluation failed: %w", err)
	}

	e.logger.Debug().
		Str("app_token", facts.AppToken).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Restriction query evaluated")

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return true, fmt.Errorf("no results from restriction query")
	}

	restrict, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return true, fmt.Errorf("restriction decision is not a boolean: %T", results[0].Expressions[0].Value)
	}
	return restrict, nil
}

func (e *Engine) load() error {
	modules, err := e.readModules()
	if err != nil {
		return err
	}

	opts := []func(*rego.Rego){rego.Query(Query)}
	files := make([]string, 0, len(modules))
	for name, content := range modules {
		opts = append(opts, rego.Module(name, content))
		files = append(files, name)
	}
	sort.Strings(files)

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to prepare restriction query: %w", err)
	}

	e.mu.Lock()
	e.query = query
	e.files = files
	e.mu.Unlock()
	return nil
}

// readModules returns the policy sources keyed by file name. Every module is
// parsed up front so syntax errors name the offending file.
func (e *Engine) readModules() (map[string]string, error) {
	modules := make(map[string]string)

	if e.policyDir == "" {
		if _, err := ast.ParseModule("restriction.rego", defaultPolicy); err != nil {
			return nil, fmt.Errorf("failed to parse embedded policy: %w", err)
		}
		modules["restriction.rego"] = defaultPolicy
		return modules, nil
	}

	files, err := filepath.Glob(filepath.Join(e.policyDir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob policy files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found in %s", e.policyDir)
	}

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
		}
		module, err := ast.ParseModule(file, string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse policy file %s: %w", file, err)
		}
		modules[file] = string(content)
		e.logger.Debug().Str("file", file).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
	}
	return modules, nil
}
