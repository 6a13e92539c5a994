// Package policy enforces per-tool invocation rules: which databases,
// templates, and output formats a tool may use, and whether raw SQL is
// allowed at all. Every invocation passes through a Guard before any
// connection is touched.
package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Rule identifiers for violations, in check order.
const (
	RuleAmbiguousSource        = "AmbiguousSource"
	RuleRawSQLDisabled         = "RawSQLDisabled"
	RuleDatabaseNotAllowed     = "DatabaseNotAllowed"
	RuleTemplateNotAllowed     = "TemplateNotAllowed"
	RuleOutputFormatNotAllowed = "OutputFormatNotAllowed"
)

// Violation is returned by Authorize when an invocation breaks a rule.
// Checks run in a fixed order and short-circuit, so an invocation violating
// multiple rules always reports the first one.
type Violation struct {
	Rule    string
	Message string
}

func (v *Violation) Error() string { return v.Message }

// Config describes one tool's policy. AllowedDatabases always contains
// DefaultDatabase after New. An empty AllowedTemplates set means any template
// resolvable in the target database's scope is permitted.
type Config struct {
	ToolName         string
	AllowRawSQL      bool
	DefaultDatabase  string
	AllowedDatabases []string
	AllowedTemplates []string
	OutputFormats    []string
	DefaultFormat    string
}

// Request is the policy-relevant view of one invocation. TemplateName is the
// effective template (explicit or the tool default); empty means none.
type Request struct {
	HasQuery     bool
	TemplateName string
	Database     string
	Format       string
}

// Resolved carries the defaulted database and output format for an
// authorized request.
type Resolved struct {
	Database string
	Format   string
}

// Guard authorizes invocations for a single tool.
type Guard struct {
	toolName        string
	allowRaw        bool
	defaultDatabase string
	defaultFormat   string
	databases       map[string]bool
	templates       map[string]bool
	formats         map[string]bool
}

// New builds a Guard from a tool's policy config. The default database is
// always a member of the allowed set.
func New(cfg Config) *Guard {
	g := &Guard{
		toolName:        cfg.ToolName,
		allowRaw:        cfg.AllowRawSQL,
		defaultDatabase: cfg.DefaultDatabase,
		defaultFormat:   cfg.DefaultFormat,
		databases:       make(map[string]bool, len(cfg.AllowedDatabases)+1),
		templates:       make(map[string]bool, len(cfg.AllowedTemplates)),
		formats:         make(map[string]bool, len(cfg.OutputFormats)),
	}
	g.databases[cfg.DefaultDatabase] = true
	for _, name := range cfg.AllowedDatabases {
		g.databases[name] = true
	}
	for _, name := range cfg.AllowedTemplates {
		g.templates[name] = true
	}
	for _, f := range cfg.OutputFormats {
		g.formats[strings.ToLower(f)] = true
	}
	return g
}

// Unrestricted reports whether the guard permits any template within the
// target database's scope (the allowed-templates set is empty).
func (g *Guard) Unrestricted() bool { return len(g.templates) == 0 }

// Authorize runs the policy checks in order, short-circuiting on the first
// violation. No connection is acquired before this passes.
func (g *Guard) Authorize(req Request) (Resolved, error) {
	hasTemplate := req.TemplateName != ""

	// 1. Exactly one statement source.
	if req.HasQuery && hasTemplate {
		return Resolved{}, &Violation{
			Rule:    RuleAmbiguousSource,
			Message: fmt.Sprintf("tool %q: provide either a raw query or a template, not both", g.toolName),
		}
	}
	if !req.HasQuery && !hasTemplate {
		return Resolved{}, &Violation{
			Rule:    RuleAmbiguousSource,
			Message: fmt.Sprintf("tool %q: either 'query' or 'template' must be supplied", g.toolName),
		}
	}

	// 2. Raw SQL must be opted into per tool.
	if req.HasQuery && !g.allowRaw {
		return Resolved{}, &Violation{
			Rule:    RuleRawSQLDisabled,
			Message: fmt.Sprintf("tool %q: raw SQL queries are disabled", g.toolName),
		}
	}

	// 3. Effective database must be in the allow-list.
	database := req.Database
	if database == "" {
		database = g.defaultDatabase
	}
	if !g.databases[database] {
		return Resolved{}, &Violation{
			Rule:    RuleDatabaseNotAllowed,
			Message: fmt.Sprintf("tool %q: database %q is not allowed (allowed: %s)", g.toolName, database, joinKeys(g.databases)),
		}
	}

	// 4. Template must be in the allow-list unless the set is empty.
	if hasTemplate && !g.Unrestricted() && !g.templates[req.TemplateName] {
		return Resolved{}, &Violation{
			Rule:    RuleTemplateNotAllowed,
			Message: fmt.Sprintf("tool %q: template %q is not allowed (allowed: %s)", g.toolName, req.TemplateName, joinKeys(g.templates)),
		}
	}

	// 5. Effective output format must be supported.
	format := strings.ToLower(req.Format)
	if format == "" {
		format = g.defaultFormat
	}
	if !g.formats[format] {
		return Resolved{}, &Violation{
			Rule:    RuleOutputFormatNotAllowed,
			Message: fmt.Sprintf("tool %q: output format %q is not supported (supported: %s)", g.toolName, format, joinKeys(g.formats)),
		}
	}

	return Resolved{Database: database, Format: format}, nil
}

func joinKeys(set map[string]bool) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
