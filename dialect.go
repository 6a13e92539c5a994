package dbmcp

import (
	"database/sql"
	"fmt"

	"github.com/rickchristie/dbmcp/internal/placeholder"
)

// Dialect renders a statement's :name placeholders into the parameter syntax
// a driver natively understands. Binding always goes through the driver's
// parameterization mechanism; values are never interpolated into SQL text.
type Dialect interface {
	// Name returns the dialect identifier (matches the normalized driver).
	Name() string
	// Bind rewrites sqlText and produces the driver argument list. names is
	// the unique placeholder set in order of first appearance; params must
	// contain exactly those names (validated by the engine beforehand).
	Bind(sqlText string, names []string, params map[string]any) (string, []any)
}

// dialectFor returns the Dialect for a normalized driver name.
func dialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx":
		return postgresDialect{}, nil
	case "mysql", "sqlite3":
		return qmarkDialect{driver: driver}, nil
	case "sqlserver":
		return sqlserverDialect{}, nil
	case "godror":
		return oracleDialect{}, nil
	default:
		return nil, fmt.Errorf("no dialect for driver %q", driver)
	}
}

// postgresDialect rewrites :name to $1..$n positional placeholders.
type postgresDialect struct{}

func (postgresDialect) Name() string { return "pgx" }

func (postgresDialect) Bind(sqlText string, names []string, params map[string]any) (string, []any) {
	index := make(map[string]int, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		index[name] = i + 1
		args[i] = params[name]
	}
	bound := placeholder.Rewrite(sqlText, func(name string) string {
		return fmt.Sprintf("$%d", index[name])
	})
	return bound, args
}

// qmarkDialect rewrites :name to ? placeholders; a repeated placeholder
// repeats its value in the argument list.
type qmarkDialect struct {
	driver string
}

func (d qmarkDialect) Name() string { return d.driver }

func (d qmarkDialect) Bind(sqlText string, names []string, params map[string]any) (string, []any) {
	var args []any
	bound := placeholder.Rewrite(sqlText, func(name string) string {
		args = append(args, params[name])
		return "?"
	})
	return bound, args
}

// sqlserverDialect rewrites :name to @name and passes sql.Named arguments.
type sqlserverDialect struct{}

func (sqlserverDialect) Name() string { return "sqlserver" }

func (sqlserverDialect) Bind(sqlText string, names []string, params map[string]any) (string, []any) {
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = sql.Named(name, params[name])
	}
	bound := placeholder.Rewrite(sqlText, func(name string) string {
		return "@" + name
	})
	return bound, args
}

// oracleDialect keeps :name placeholders; godror binds them by name.
type oracleDialect struct{}

func (oracleDialect) Name() string { return "godror" }

func (oracleDialect) Bind(sqlText string, names []string, params map[string]any) (string, []any) {
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = sql.Named(name, params[name])
	}
	return sqlText, args
}
