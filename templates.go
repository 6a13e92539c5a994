package dbmcp

import (
	"strings"

	"github.com/rickchristie/dbmcp/internal/placeholder"
)

// Template is a named, parameterized SQL fragment. Placeholder names are
// extracted once at load time, not per invocation.
type Template struct {
	Name         string
	SQL          string
	Placeholders []string
}

// Store resolves (scope, name) to a template. Tool-scoped templates shadow
// database-scoped templates sharing a name, so a tool can specialize a
// shared template name.
type Store struct {
	byTool     map[string]map[string]*Template
	byDatabase map[string]map[string]*Template
}

// newStore precompiles every configured template. Templates are trimmed and
// their placeholder sets cached for bind-time validation.
func newStore(databases []DatabaseConfig, tools []ToolConfig) *Store {
	s := &Store{
		byTool:     make(map[string]map[string]*Template),
		byDatabase: make(map[string]map[string]*Template),
	}
	for _, db := range databases {
		s.byDatabase[db.Name] = compileTemplates(db.Templates)
	}
	for _, tool := range tools {
		s.byTool[tool.Name] = compileTemplates(tool.Templates)
	}
	return s
}

func compileTemplates(raw map[string]string) map[string]*Template {
	compiled := make(map[string]*Template, len(raw))
	for name, sqlText := range raw {
		sqlText = strings.TrimSpace(sqlText)
		compiled[name] = &Template{
			Name:         name,
			SQL:          sqlText,
			Placeholders: placeholder.Extract(sqlText),
		}
	}
	return compiled
}

// Resolve looks up a template by name: the tool's scope first, then the
// database's scope, first match wins. Fails with UnknownTemplate if the name
// is absent in both.
func (s *Store) Resolve(toolName, databaseName, templateName string) (*Template, error) {
	if scoped, ok := s.byTool[toolName]; ok {
		if t, ok := scoped[templateName]; ok {
			return t, nil
		}
	}
	if scoped, ok := s.byDatabase[databaseName]; ok {
		if t, ok := scoped[templateName]; ok {
			return t, nil
		}
	}
	return nil, failf(KindUnknownTemplate,
		"unknown query template %q for database %q", templateName, databaseName)
}
