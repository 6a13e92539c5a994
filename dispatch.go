package dbmcp

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rickchristie/dbmcp/internal/placeholder"
	"github.com/rickchristie/dbmcp/internal/policy"
)

// Invoke executes one tool invocation end to end: policy authorization,
// template resolution or raw-SQL pass-through, statement execution, and
// result formatting. Every transport adapter calls exactly this entry point.
// All failures are returned as *Failure with a stable error kind.
//
// When inv.Async is set the statement runs on a background goroutine and
// Invoke waits for its outcome; use InvokeAsync to hold the handle instead.
func (s *Server) Invoke(ctx context.Context, toolName string, inv Invocation) (*Payload, error) {
	if inv.Async {
		ex, err := s.InvokeAsync(ctx, toolName, inv)
		if err != nil {
			return nil, err
		}
		return ex.Wait(ctx)
	}

	t, stmt, format, err := s.prepare(toolName, inv)
	if err != nil {
		return nil, s.fail(toolName, err)
	}
	return s.run(ctx, t, stmt, format)
}

// InvokeAsync validates and authorizes the invocation synchronously, so a
// disallowed invocation fails before any connection is touched, then starts
// execution in the background and returns a cancellable handle.
func (s *Server) InvokeAsync(ctx context.Context, toolName string, inv Invocation) (*Execution, error) {
	t, stmt, format, err := s.prepare(toolName, inv)
	if err != nil {
		return nil, s.fail(toolName, err)
	}

	execCtx, cancel := context.WithCancel(ctx)
	ex := &Execution{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer cancel()
		payload, err := s.run(execCtx, t, stmt, format)
		ex.finish(payload, err)
	}()
	return ex, nil
}

// prepare runs every check that must pass before a connection is acquired:
// tool lookup, policy authorization, template resolution, and parameter
// merging. It has no side effects.
func (s *Server) prepare(toolName string, inv Invocation) (*tool, resolvedStatement, string, error) {
	t, ok := s.tools[toolName]
	if !ok {
		return nil, resolvedStatement{}, "", failf(KindUnknownTool, "tool %q is not configured", toolName)
	}

	rawQuery := strings.TrimSpace(inv.Query)
	templateName := strings.TrimSpace(inv.Template)
	if rawQuery == "" && templateName == "" {
		templateName = t.config.DefaultTemplate
	}

	resolved, err := t.guard.Authorize(policy.Request{
		HasQuery:     rawQuery != "",
		TemplateName: templateName,
		Database:     strings.TrimSpace(inv.Database),
		Format:       inv.OutputFormat,
	})
	if err != nil {
		return nil, resolvedStatement{}, "", err
	}

	database, err := s.registry.Resolve(resolved.Database)
	if err != nil {
		return nil, resolvedStatement{}, "", err
	}

	var sqlText string
	var placeholders []string
	if rawQuery != "" {
		sqlText = rawQuery
		placeholders = placeholder.Extract(rawQuery)
	} else {
		tmpl, err := s.templates.Resolve(toolName, resolved.Database, templateName)
		if err != nil {
			return nil, resolvedStatement{}, "", err
		}
		sqlText = tmpl.SQL
		placeholders = tmpl.Placeholders
	}

	params := make(map[string]any, len(t.config.DefaultParameters)+len(inv.Parameters))
	for k, v := range t.config.DefaultParameters {
		params[k] = v
	}
	for k, v := range inv.Parameters {
		params[k] = v
	}

	stmt := resolvedStatement{
		database:     database,
		sql:          sqlText,
		placeholders: placeholders,
		params:       params,
	}
	return t, stmt, resolved.Format, nil
}

// run executes a prepared statement, applies sanitization, and formats the
// result. Shared by the sync and async paths so both produce the same shape.
func (s *Server) run(ctx context.Context, t *tool, stmt resolvedStatement, format string) (*Payload, error) {
	startTime := time.Now()

	result, err := s.executeStatement(ctx, stmt)
	if err != nil {
		return nil, s.fail(t.config.Name, err)
	}

	result.Rows = s.sanitizer.SanitizeRows(result.Rows)

	payload, err := FormatResult(result, format)
	if err != nil {
		return nil, s.fail(t.config.Name, err)
	}

	logEvent := s.logger.Info().
		Str("tool", t.config.Name).
		Str("database", stmt.database.Name()).
		Str("sql", truncateForLog(stmt.sql, 200)).
		Str("format", format).
		Int("row_count", result.RowCount).
		Dur("duration", time.Since(startTime))
	if s.sanitizer.HasRules() {
		logEvent = logEvent.Bool("sanitized", true)
	}
	logEvent.Msg("invocation executed")

	return payload, nil
}

// fail converts any pipeline error into a *Failure and logs it. Driver
// errors are matched against the configured error hints and matching
// guidance is appended. Cancellation is a distinct outcome, not an error,
// so it logs at info.
func (s *Server) fail(toolName string, err error) *Failure {
	f := AsFailure(err)

	if f.Kind == KindDriverError {
		if hint := s.hints.Match(f.Message); hint != "" {
			f = &Failure{Kind: f.Kind, Message: f.Message + "\n\n" + hint}
		}
	}

	var logEvent = s.logger.Warn()
	switch f.Kind {
	case KindCancelled:
		logEvent = s.logger.Info()
	case KindDriverError, KindPoolExhausted, KindTimeout:
		logEvent = s.logger.Error()
	}
	if patterns := s.hints.MatchedPatterns(f.Message); len(patterns) > 0 {
		logEvent = logEvent.Strs("error_hints", patterns)
	}
	logEvent.
		Str("tool", toolName).
		Str("error_kind", f.Kind).
		Str("error", f.Message).
		Msg("invocation failed")

	return f
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
