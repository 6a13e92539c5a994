package main

import (
	"context"
	"crypto/subtle"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	dbmcp "github.com/rickchristie/dbmcp"
)

func runServe() error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", configPathDefault(), "Path to configuration file")
	fs.Parse(os.Args[2:])

	ctx := context.Background()

	serverConfig, err := loadServerConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(serverConfig.Logging)

	// Databases flagged prompt_credentials get their username/password from
	// the terminal instead of the config file.
	for i := range serverConfig.Databases {
		db := &serverConfig.Databases[i]
		if !db.PromptCredentials {
			continue
		}
		username := promptInput(fmt.Sprintf("Username for %s: ", db.Name))
		password := promptPassword(fmt.Sprintf("Password for %s: ", db.Name))
		db.URL = applyCredentials(db.URL, username, password)
	}

	srv, err := dbmcp.New(ctx, serverConfig.Core(), logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close(ctx)

	logger.Info().Strs("databases", srv.Registry().Names()).Msg("testing database connections")
	if err := srv.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("database connection test failed")
		return fmt.Errorf("database connection test failed: %w", err)
	}
	logger.Info().Msg("database connection test successful")

	mcpServer := newMCPServer(serverConfig, srv, logger)

	protocols := serverConfig.Server.Protocols
	if len(protocols) == 0 {
		protocols = []string{"stdio"}
	}

	errCh := make(chan error, len(protocols))
	for _, protocol := range protocols {
		switch strings.ToLower(protocol) {
		case "stdio":
			logger.Info().Msg("starting stdio transport")
			go func() { errCh <- server.ServeStdio(mcpServer) }()
		case "http":
			startHTTP, err := httpTransport(serverConfig, mcpServer, logger)
			if err != nil {
				return err
			}
			go func() { errCh <- startHTTP() }()
		case "sse":
			if serverConfig.SSE.Port <= 0 {
				panic("dbmcp: sse.port must be > 0 when the sse protocol is enabled")
			}
			addr := fmt.Sprintf("%s:%d", serverConfig.SSE.Host, serverConfig.SSE.Port)
			logger.Info().Str("addr", addr).Msg("starting sse transport")
			sseServer := server.NewSSEServer(mcpServer)
			go func() { errCh <- sseServer.Start(addr) }()
		default:
			panic(fmt.Sprintf("dbmcp: unknown protocol %q (supported: stdio, http, sse)", protocol))
		}
	}

	return <-errCh
}

// newMCPServer builds the MCP server with initialize lifecycle logging and
// every configured tool registered.
func newMCPServer(config *dbmcp.ServerConfig, srv *dbmcp.Server, logger zerolog.Logger) *server.MCPServer {
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	name := config.Server.Name
	if name == "" {
		name = "dbmcp"
	}
	serverVersion := config.Server.Version
	if serverVersion == "" {
		serverVersion = version
	}

	opts := []server.ServerOption{
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	}
	if config.Server.Instructions != "" {
		opts = append(opts, server.WithInstructions(config.Server.Instructions))
	}

	mcpServer := server.NewMCPServer(name, serverVersion, opts...)
	dbmcp.RegisterMCPTools(mcpServer, srv)
	return mcpServer
}

// httpTransport wires the streamable HTTP transport: endpoint path, optional
// health check, and optional basic auth. It returns the blocking start
// function so transport setup errors surface before any goroutine runs.
func httpTransport(config *dbmcp.ServerConfig, mcpServer *server.MCPServer, logger zerolog.Logger) (func() error, error) {
	if config.HTTP.Port <= 0 {
		panic("dbmcp: http.port must be > 0 when the http protocol is enabled")
	}
	path := config.HTTP.Path
	if path == "" {
		path = "/mcp"
	}

	addr := fmt.Sprintf("%s:%d", config.HTTP.Host, config.HTTP.Port)
	mux := http.NewServeMux()

	// Health check endpoint (process liveness only, not DB connectivity).
	if config.HTTP.HealthCheckEnabled {
		healthPath := config.HTTP.HealthCheckPath
		if healthPath == "" {
			panic("dbmcp: http.health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(healthPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath(path),
		server.WithStateLess(config.HTTP.Stateless),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Manually register the MCP handler — Start() does NOT register
	// when a custom *http.Server is provided via WithStreamableHTTPServer.
	var handler http.Handler = streamableServer
	if config.HTTP.BasicAuth.Enabled {
		authed, err := basicAuthMiddleware(config.HTTP.BasicAuth, handler)
		if err != nil {
			return nil, err
		}
		handler = authed
	}
	mux.Handle(path, handler)

	logger.Info().Str("addr", addr).Str("path", path).Msg("starting http transport")
	return func() error { return streamableServer.Start(addr) }, nil
}

// basicAuthMiddleware guards an HTTP handler with Basic auth. Credentials
// come from the configured environment variables; both must be set or the
// server refuses to start.
func basicAuthMiddleware(config dbmcp.BasicAuthConfig, next http.Handler) (http.Handler, error) {
	if config.UsernameEnv == "" || config.PasswordEnv == "" {
		return nil, fmt.Errorf("basic_auth requires username_env and password_env")
	}
	wantUser := os.Getenv(config.UsernameEnv)
	wantPass := os.Getenv(config.PasswordEnv)
	if wantUser == "" || wantPass == "" {
		return nil, fmt.Errorf("basic_auth credentials not set: export %s and %s",
			config.UsernameEnv, config.PasswordEnv)
	}
	realm := config.Realm
	if realm == "" {
		realm = "dbmcp"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(wantPass)) == 1
		if !ok || !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", realm))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}), nil
}

// applyCredentials substitutes prompted credentials into a connection URL.
// The URL carries {username} and {password} tokens; values are URL-escaped
// so special characters in passwords survive.
func applyCredentials(connURL, username, password string) string {
	replacer := strings.NewReplacer(
		"{username}", url.QueryEscape(username),
		"{password}", url.QueryEscape(password),
	)
	return replacer.Replace(connURL)
}

func setupLogger(config dbmcp.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptInput(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	var input string
	fmt.Scanln(&input)
	return input
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return ""
	}
	return string(password)
}
