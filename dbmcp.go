package dbmcp

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rickchristie/dbmcp/internal/errhint"
	"github.com/rickchristie/dbmcp/internal/policy"
	"github.com/rickchristie/dbmcp/internal/sanitize"
)

// Server is the core engine: it authorizes tool invocations against their
// policies, resolves templates, executes statements against the configured
// backends, and formats results. All exported methods are safe for
// concurrent use from multiple goroutines; per-invocation state lives on the
// stack, and the only shared mutable resources are the connection pools.
type Server struct {
	cfg       Config
	registry  *Registry
	templates *Store
	tools     map[string]*tool
	hints     *errhint.Matcher
	sanitizer *sanitize.Sanitizer
	logger    zerolog.Logger
}

// tool is one configured entry point with its compiled policy guard.
type tool struct {
	config ToolConfig
	guard  *policy.Guard
}

var outputFormats = map[string]bool{FormatJSON: true, FormatCSV: true}

// New creates a Server from an already-resolved Config.
// Panics on invalid config. Returns error only for runtime failures
// (pool creation). Connection pools are created once here and reused across
// invocations for the process lifetime.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Server, error) {
	// --- Config validation (panics on invalid config) ---

	if len(cfg.Databases) == 0 {
		panic("dbmcp: at least one database must be configured")
	}

	dbNames := make(map[string]bool, len(cfg.Databases))
	for i := range cfg.Databases {
		db := &cfg.Databases[i]
		if db.Name == "" {
			panic("dbmcp: database name must be non-empty")
		}
		if dbNames[db.Name] {
			panic(fmt.Sprintf("dbmcp: duplicate database name %q", db.Name))
		}
		dbNames[db.Name] = true
		if _, err := normalizeDriver(db.Type); err != nil {
			panic(fmt.Sprintf("dbmcp: database %q: %v", db.Name, err))
		}
		if db.URL == "" {
			panic(fmt.Sprintf("dbmcp: database %q: connection_url must be non-empty", db.Name))
		}
		if db.Pool.MaxConns < 0 {
			panic(fmt.Sprintf("dbmcp: database %q: pool.max_conns must be >= 0", db.Name))
		}
		if db.Query.DefaultTimeoutSeconds < 0 {
			panic(fmt.Sprintf("dbmcp: database %q: query.default_timeout_seconds must be >= 0", db.Name))
		}
		for _, rule := range db.Query.TimeoutRules {
			if rule.TimeoutSeconds <= 0 {
				panic(fmt.Sprintf("dbmcp: database %q: timeout_rule with pattern %q has timeout_seconds <= 0", db.Name, rule.Pattern))
			}
			mustCompile(fmt.Sprintf("database %q timeout_rule", db.Name), rule.Pattern)
		}
	}

	toolNames := make(map[string]bool, len(cfg.Tools))
	for i := range cfg.Tools {
		tc := &cfg.Tools[i]
		if tc.Name == "" {
			panic("dbmcp: tool name must be non-empty")
		}
		if toolNames[tc.Name] {
			panic(fmt.Sprintf("dbmcp: duplicate tool name %q", tc.Name))
		}
		toolNames[tc.Name] = true
		if !dbNames[tc.Database] {
			panic(fmt.Sprintf("dbmcp: tool %q references unknown database %q", tc.Name, tc.Database))
		}
		for _, name := range tc.AllowedDatabases {
			if !dbNames[name] {
				panic(fmt.Sprintf("dbmcp: tool %q allows unknown database %q", tc.Name, name))
			}
		}

		// Apply format defaults, then validate.
		if len(tc.OutputFormats) == 0 {
			tc.OutputFormats = []string{FormatJSON}
		}
		for j, f := range tc.OutputFormats {
			f = strings.ToLower(f)
			tc.OutputFormats[j] = f
			if !outputFormats[f] {
				panic(fmt.Sprintf("dbmcp: tool %q: unsupported output format %q (supported: csv, json)", tc.Name, f))
			}
		}
		if tc.DefaultOutputFormat == "" {
			tc.DefaultOutputFormat = tc.OutputFormats[0]
		}
		tc.DefaultOutputFormat = strings.ToLower(tc.DefaultOutputFormat)
		if !contains(tc.OutputFormats, tc.DefaultOutputFormat) {
			panic(fmt.Sprintf("dbmcp: tool %q: default_output_format %q must be one of %v", tc.Name, tc.DefaultOutputFormat, tc.OutputFormats))
		}

		if tc.DefaultTemplate != "" && len(tc.AllowedTemplates) > 0 && !contains(tc.AllowedTemplates, tc.DefaultTemplate) {
			panic(fmt.Sprintf("dbmcp: tool %q: default_template %q is not in allowed_templates", tc.Name, tc.DefaultTemplate))
		}
	}

	for _, rule := range cfg.ErrorHints {
		mustCompile("error_hints", rule.Pattern)
	}
	for _, rule := range cfg.Sanitization {
		mustCompile("sanitization", rule.Pattern)
	}

	// --- Initialize components ---

	hints, err := errhint.NewMatcher(mapErrorHintRules(cfg.ErrorHints))
	if err != nil {
		panic(fmt.Sprintf("dbmcp: %v", err))
	}
	sanitizer, err := sanitize.NewSanitizer(mapSanitizationRules(cfg.Sanitization))
	if err != nil {
		panic(fmt.Sprintf("dbmcp: %v", err))
	}

	registry, err := openRegistry(cfg.Databases, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database registry: %w", err)
	}

	tools := make(map[string]*tool, len(cfg.Tools))
	for _, tc := range cfg.Tools {
		tools[tc.Name] = &tool{
			config: tc,
			guard: policy.New(policy.Config{
				ToolName:         tc.Name,
				AllowRawSQL:      tc.AllowRawSQL,
				DefaultDatabase:  tc.Database,
				AllowedDatabases: tc.AllowedDatabases,
				AllowedTemplates: tc.AllowedTemplates,
				OutputFormats:    tc.OutputFormats,
				DefaultFormat:    tc.DefaultOutputFormat,
			}),
		}
		// Permissive default worth surfacing: an empty allow-list is an
		// opt-out of template restrictions, not a lockdown.
		if len(tc.AllowedTemplates) == 0 {
			logger.Warn().
				Str("tool", tc.Name).
				Str("database", tc.Database).
				Msg("allowed_templates is empty: tool may run any template in its target database's scope")
		}
	}

	return &Server{
		cfg:       cfg,
		registry:  registry,
		templates: newStore(cfg.Databases, cfg.Tools),
		tools:     tools,
		hints:     hints,
		sanitizer: sanitizer,
		logger:    logger,
	}, nil
}

// Close closes every connection pool. Accepts context for API
// forward-compatibility; database/sql close is not context-aware.
func (s *Server) Close(ctx context.Context) {
	s.registry.Close()
}

// Registry exposes the database registry for connectivity checks and tests.
func (s *Server) Registry() *Registry { return s.registry }

// Ping verifies connectivity to every configured backend.
func (s *Server) Ping(ctx context.Context) error {
	return s.registry.Ping(ctx)
}

func mustCompile(where, pattern string) {
	if _, err := regexp.Compile(pattern); err != nil {
		panic(fmt.Sprintf("dbmcp: %s: invalid regex pattern %q: %v", where, pattern, err))
	}
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

// mapErrorHintRules converts config ErrorHintRules to internal errhint.Rules.
func mapErrorHintRules(rules []ErrorHintRule) []errhint.Rule {
	result := make([]errhint.Rule, len(rules))
	for i, r := range rules {
		result[i] = errhint.Rule{Pattern: r.Pattern, Message: r.Message}
	}
	return result
}

// mapSanitizationRules converts config SanitizationRules to internal sanitize.Rules.
func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{Pattern: r.Pattern, Replacement: r.Replacement}
	}
	return result
}
