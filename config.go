package dbmcp

// Config is the base configuration used by library mode via New. The core
// never reads files or environment variables; the CLI (or any embedding
// program) supplies an already-resolved Config.
type Config struct {
	Databases    []DatabaseConfig   `json:"databases"`
	Tools        []ToolConfig       `json:"tools"`
	ErrorHints   []ErrorHintRule    `json:"error_hints"`
	Sanitization []SanitizationRule `json:"sanitization"`
}

// DatabaseConfig describes a single backend. Immutable after load; the
// connection pool for it is created once at startup and reused across
// invocations.
type DatabaseConfig struct {
	Name string `json:"name"`
	// Type selects the driver: postgres/postgresql/pgsql, mysql/mariadb,
	// sqlserver/mssql, oracle, sqlite. Aliases are normalized at load.
	Type  string      `json:"type"`
	URL   string      `json:"connection_url"`
	Pool  PoolConfig  `json:"pool"`
	Query QueryConfig `json:"query"`
	// Templates holds database-scoped query templates with :name placeholders.
	Templates map[string]string `json:"query_templates"`
	// PromptCredentials makes the CLI prompt for username/password at startup
	// instead of embedding them in connection_url. Ignored in library mode.
	PromptCredentials bool `json:"prompt_credentials"`
}

// PoolConfig holds connection pool settings for one database.
type PoolConfig struct {
	MaxConns        int    `json:"max_conns"`
	MinConns        int    `json:"min_conns"`
	MaxConnLifetime string `json:"max_conn_lifetime"`
	MaxConnIdleTime string `json:"max_conn_idle_time"`
	// AcquireTimeoutSeconds bounds the wait for a free connection before the
	// invocation fails with PoolExhausted. Defaults to 10 seconds.
	AcquireTimeoutSeconds int `json:"acquire_timeout_seconds"`
}

// QueryConfig holds per-database statement execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds int           `json:"default_timeout_seconds"`
	TimeoutRules          []TimeoutRule `json:"timeout_rules"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ToolConfig describes one policy-scoped entry point. Immutable after load.
type ToolConfig struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// Database is the default target; always implicitly allowed.
	Database string `json:"database"`
	// AllowRawSQL opts the tool into executing caller-supplied SQL. Off by
	// default: raw SQL is only possible when explicitly enabled per tool.
	AllowRawSQL bool `json:"allow_raw_sql"`
	// AllowedDatabases restricts which databases the tool may target.
	// Defaults to just the target database.
	AllowedDatabases []string `json:"allowed_databases"`
	// AllowedTemplates restricts which templates the tool may run. Empty
	// means any template resolvable in the target database's scope.
	AllowedTemplates []string `json:"allowed_templates"`
	// DefaultTemplate runs when the invocation names neither a template nor
	// a raw query.
	DefaultTemplate string `json:"default_template"`
	// DefaultParameters are merged under caller-supplied parameters.
	DefaultParameters map[string]any `json:"default_parameters"`
	// OutputFormats is drawn from {json, csv}. Defaults to ["json"].
	OutputFormats       []string `json:"output_formats"`
	DefaultOutputFormat string   `json:"default_output_format"`
	// Templates holds tool-scoped templates; they shadow database-scoped
	// templates sharing a name.
	Templates map[string]string `json:"query_templates"`
}

// ErrorHintRule maps a driver error pattern to a guidance message appended
// to the surfaced DriverError.
type ErrorHintRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// SanitizationRule defines a regex-based field sanitization rule applied to
// result values before formatting.
type SanitizationRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description"`
}

// ServerConfig embeds the core Config fields and adds server-only settings
// for CLI mode (transports, auth, logging).
type ServerConfig struct {
	Server       ServerSettings     `json:"server"`
	HTTP         HTTPConfig         `json:"http"`
	SSE          SSEConfig          `json:"sse"`
	Logging      LoggingConfig      `json:"logging"`
	Databases    []DatabaseConfig   `json:"databases"`
	Tools        []ToolConfig       `json:"tools"`
	ErrorHints   []ErrorHintRule    `json:"error_hints"`
	Sanitization []SanitizationRule `json:"sanitization"`
}

// Core returns the library-mode Config carried inside a ServerConfig.
func (c *ServerConfig) Core() Config {
	return Config{
		Databases:    c.Databases,
		Tools:        c.Tools,
		ErrorHints:   c.ErrorHints,
		Sanitization: c.Sanitization,
	}
}

// ServerSettings holds MCP server identity and enabled transports.
type ServerSettings struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Instructions string `json:"instructions"`
	// Protocols is any subset of {stdio, http, sse}; they run concurrently.
	Protocols []string `json:"protocols"`
}

// HTTPConfig holds streamable-HTTP transport settings for CLI mode.
type HTTPConfig struct {
	Host               string          `json:"host"`
	Port               int             `json:"port"`
	Path               string          `json:"path"`
	Stateless          bool            `json:"stateless"`
	HealthCheckEnabled bool            `json:"health_check_enabled"`
	HealthCheckPath    string          `json:"health_check_path"`
	BasicAuth          BasicAuthConfig `json:"basic_auth"`
}

// BasicAuthConfig enables HTTP Basic authentication. Credentials are
// resolved from the named environment variables, never stored in the file.
type BasicAuthConfig struct {
	Enabled     bool   `json:"enabled"`
	UsernameEnv string `json:"username_env"`
	PasswordEnv string `json:"password_env"`
	Realm       string `json:"realm"`
}

// SSEConfig holds SSE transport settings for CLI mode.
type SSEConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stderr, stdout, or file path
}
