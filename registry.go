package dbmcp

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rickchristie/dbmcp/internal/timeout"

	// Drivers for the supported backend types. Registered here so embedding
	// programs get them without importing each driver themselves.
	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/godror/godror"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// driverAliases normalizes configured database types to registered driver
// names. Aliases match what operators actually write in configs.
var driverAliases = map[string]string{
	"postgres":   "pgx",
	"postgresql": "pgx",
	"pgsql":      "pgx",
	"mysql":      "mysql",
	"mariadb":    "mysql",
	"maria":      "mysql",
	"sqlserver":  "sqlserver",
	"sql-server": "sqlserver",
	"mssql":      "sqlserver",
	"oracle":     "godror",
	"oracledb":   "godror",
	"oracle-db":  "godror",
	"oracle_db":  "godror",
	"sqlite":     "sqlite3",
	"sqlite3":    "sqlite3",
}

// normalizeDriver resolves a configured database type to a driver name.
func normalizeDriver(dbType string) (string, error) {
	driver, ok := driverAliases[strings.ToLower(strings.TrimSpace(dbType))]
	if !ok {
		return "", fmt.Errorf("unsupported database type %q (supported: mysql, mariadb, oracle, postgresql, sqlite, sqlserver)", dbType)
	}
	return driver, nil
}

const defaultAcquireTimeout = 10 * time.Second

// Registry holds one connection pool per configured backend and resolves
// logical database names to live handles. Pools are created once at startup
// and are safe for concurrent checkout from multiple goroutines.
type Registry struct {
	databases map[string]*Database
	logger    zerolog.Logger
}

// Database is one named backend: its pool, dialect, and execution settings.
type Database struct {
	name           string
	driver         string
	dialect        Dialect
	db             *sql.DB
	sem            chan struct{}
	acquireTimeout time.Duration
	timeouts       *timeout.Manager
	inUse          atomic.Int64
}

// openRegistry opens one pool per DatabaseConfig. Pools open lazily; no
// network traffic happens until the first statement or an explicit Ping.
// Config validation has already run, so failures here are runtime failures.
func openRegistry(configs []DatabaseConfig, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		databases: make(map[string]*Database, len(configs)),
		logger:    logger,
	}
	for _, cfg := range configs {
		d, err := openDatabase(cfg, logger)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("database %q: %w", cfg.Name, err)
		}
		r.databases[cfg.Name] = d
	}
	return r, nil
}

func openDatabase(cfg DatabaseConfig, logger zerolog.Logger) (*Database, error) {
	driver, err := normalizeDriver(cfg.Type)
	if err != nil {
		return nil, err
	}
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	maxConns := cfg.Pool.MaxConns
	if maxConns <= 0 {
		maxConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(cfg.Pool.MinConns)
	if cfg.Pool.MaxConnLifetime != "" {
		d, err := time.ParseDuration(cfg.Pool.MaxConnLifetime)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("invalid pool.max_conn_lifetime %q: %w", cfg.Pool.MaxConnLifetime, err)
		}
		db.SetConnMaxLifetime(d)
	}
	if cfg.Pool.MaxConnIdleTime != "" {
		d, err := time.ParseDuration(cfg.Pool.MaxConnIdleTime)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("invalid pool.max_conn_idle_time %q: %w", cfg.Pool.MaxConnIdleTime, err)
		}
		db.SetConnMaxIdleTime(d)
	}

	acquireTimeout := defaultAcquireTimeout
	if cfg.Pool.AcquireTimeoutSeconds > 0 {
		acquireTimeout = time.Duration(cfg.Pool.AcquireTimeoutSeconds) * time.Second
	}

	defaultTimeout := 30 * time.Second
	if cfg.Query.DefaultTimeoutSeconds > 0 {
		defaultTimeout = time.Duration(cfg.Query.DefaultTimeoutSeconds) * time.Second
	}
	rules := make([]timeout.Rule, len(cfg.Query.TimeoutRules))
	for i, rule := range cfg.Query.TimeoutRules {
		rules[i] = timeout.Rule{
			Pattern: rule.Pattern,
			Timeout: time.Duration(rule.TimeoutSeconds) * time.Second,
		}
	}
	timeouts, err := timeout.NewManager(timeout.Config{
		DefaultTimeout: defaultTimeout,
		Rules:          rules,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug().
		Str("database", cfg.Name).
		Str("driver", driver).
		Int("max_conns", maxConns).
		Msg("pool opened")

	return &Database{
		name:           cfg.Name,
		driver:         driver,
		dialect:        dialect,
		db:             db,
		sem:            make(chan struct{}, maxConns),
		acquireTimeout: acquireTimeout,
		timeouts:       timeouts,
	}, nil
}

// Resolve returns the database for a logical name, or UnknownDatabase.
func (r *Registry) Resolve(name string) (*Database, error) {
	d, ok := r.databases[name]
	if !ok {
		return nil, failf(KindUnknownDatabase, "database %q is not configured", name)
	}
	return d, nil
}

// Names returns the configured database names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.databases))
	for name := range r.databases {
		names = append(names, name)
	}
	return names
}

// InUse returns the number of connections currently checked out for the
// named database, or zero for unknown names.
func (r *Registry) InUse(name string) int {
	d, ok := r.databases[name]
	if !ok {
		return 0
	}
	return int(d.inUse.Load())
}

// Ping verifies connectivity to every configured backend.
func (r *Registry) Ping(ctx context.Context) error {
	for name, d := range r.databases {
		if err := d.db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database %q: %w", name, err)
		}
	}
	return nil
}

// Close closes every pool. Safe to call on a partially opened registry.
func (r *Registry) Close() {
	for _, d := range r.databases {
		d.db.Close()
	}
}

// Name returns the logical database name.
func (d *Database) Name() string { return d.name }

// Driver returns the normalized driver name.
func (d *Database) Driver() string { return d.driver }

// Ping verifies connectivity to this backend.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// acquire checks out a connection slot for one statement execution. The wait
// is bounded by the configured acquire timeout; exhaustion surfaces as
// PoolExhausted rather than blocking indefinitely. The returned release must
// run on every exit path.
func (d *Database) acquire(ctx context.Context) (release func(), err error) {
	timer := time.NewTimer(d.acquireTimeout)
	defer timer.Stop()

	select {
	case d.sem <- struct{}{}:
	case <-timer.C:
		return nil, failf(KindPoolExhausted,
			"database %q: all %d connection slots in use, gave up after %s",
			d.name, cap(d.sem), d.acquireTimeout)
	case <-ctx.Done():
		return nil, failf(KindCancelled,
			"database %q: cancelled while waiting for a connection slot", d.name)
	}

	d.inUse.Add(1)
	return func() {
		d.inUse.Add(-1)
		<-d.sem
	}, nil
}
