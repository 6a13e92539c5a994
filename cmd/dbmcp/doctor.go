package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	dbmcp "github.com/rickchristie/dbmcp"
	"github.com/rs/zerolog"
)

func runDoctor() error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", configPathDefault(), "Path to configuration file")
	ping := fs.Bool("ping", false, "Open connection pools and ping every backend")
	fs.Parse(os.Args[2:])

	useColor := isTTY(os.Stderr.Fd())
	return doctor(os.Stderr, useColor, *configPath, *ping)
}

func doctor(w io.Writer, useColor bool, configPath string, ping bool) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "dbmcp %s\n\n", version)

	config, ok := doctorValidateConfig(w, useColor, configPath)
	if ok && ping {
		ok = doctorPing(w, useColor, config)
	}
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'dbmcp doctor' again.")
		return nil
	}

	if hasProtocol(config, "http") {
		fmt.Fprintln(w)
		printAgentSnippets(w, useColor, config)
	}
	return nil
}

// doctorValidateConfig loads and validates the config file, printing check
// results. Returns the parsed config and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) (*dbmcp.ServerConfig, bool) {
	allPassed := true

	// Check 1: config file loads and parses
	config, err := loadServerConfig(configPath)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file loads (%s): %v", configPath, err))
		return nil, false
	}
	printCheck(w, useColor, true, fmt.Sprintf("Config file loads (%s)", configPath))

	// Check 2: at least one database with a connection URL
	if len(config.Databases) == 0 {
		printCheck(w, useColor, false, "At least one database is configured")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("At least one database is configured (%d)", len(config.Databases)))
	}
	dbNames := make(map[string]bool, len(config.Databases))
	for _, db := range config.Databases {
		dbNames[db.Name] = true
		if db.URL == "" {
			printCheck(w, useColor, false, fmt.Sprintf("Database %q has a connection_url", db.Name))
			allPassed = false
		}
	}

	// Check 3: tools reference configured databases
	toolRefsOK := true
	for _, tool := range config.Tools {
		if !dbNames[tool.Database] {
			printCheck(w, useColor, false, fmt.Sprintf("Tool %q references configured database (%q is unknown)", tool.Name, tool.Database))
			toolRefsOK = false
			allPassed = false
		}
		for _, name := range tool.AllowedDatabases {
			if !dbNames[name] {
				printCheck(w, useColor, false, fmt.Sprintf("Tool %q allowed database %q is configured", tool.Name, name))
				toolRefsOK = false
				allPassed = false
			}
		}
	}
	if toolRefsOK && len(config.Tools) > 0 {
		printCheck(w, useColor, true, "All tools reference configured databases")
	}

	// Check 4: regex patterns compile
	regexOK := true

	for i, rule := range config.ErrorHints {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("error_hints[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	for i, rule := range config.Sanitization {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("sanitization[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	for _, db := range config.Databases {
		for i, rule := range db.Query.TimeoutRules {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				printCheck(w, useColor, false, fmt.Sprintf("database %q timeout_rules[%d] regex compiles: %v", db.Name, i, err))
				regexOK = false
				allPassed = false
			}
		}
	}

	if regexOK {
		printCheck(w, useColor, true, "All regex patterns compile")
	}

	// Check 5: protocol-specific settings
	for _, protocol := range config.Server.Protocols {
		switch protocol {
		case "stdio", "sse":
		case "http":
			if config.HTTP.Port <= 0 {
				printCheck(w, useColor, false, "http.port is > 0 (required for http protocol)")
				allPassed = false
			} else {
				printCheck(w, useColor, true, fmt.Sprintf("http.port is > 0 (%d)", config.HTTP.Port))
			}
		default:
			printCheck(w, useColor, false, fmt.Sprintf("Protocol %q is supported (stdio, http, sse)", protocol))
			allPassed = false
		}
	}

	return config, allPassed
}

// doctorPing creates the engine (opening every pool) and pings each backend.
func doctorPing(w io.Writer, useColor bool, config *dbmcp.ServerConfig) (ok bool) {
	defer func() {
		// New panics on invalid config; report it as a failed check.
		if r := recover(); r != nil {
			printCheck(w, useColor, false, fmt.Sprintf("Configuration accepted: %v", r))
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := zerolog.New(io.Discard)
	srv, err := dbmcp.New(ctx, config.Core(), logger)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Connection pools open: %v", err))
		return false
	}
	defer srv.Close(ctx)
	printCheck(w, useColor, true, "Configuration accepted, connection pools open")

	allPassed := true
	for _, name := range srv.Registry().Names() {
		db, err := srv.Registry().Resolve(name)
		if err != nil {
			continue
		}
		if err := db.Ping(ctx); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("Database %q reachable: %v", name, err))
			allPassed = false
			continue
		}
		printCheck(w, useColor, true, fmt.Sprintf("Database %q reachable", name))
	}
	return allPassed
}

func hasProtocol(config *dbmcp.ServerConfig, want string) bool {
	if config == nil {
		return false
	}
	for _, protocol := range config.Server.Protocols {
		if protocol == want {
			return true
		}
	}
	return false
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	if pass {
		if useColor {
			fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✓ %s\n", msg)
		}
	} else {
		if useColor {
			fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✗ %s\n", msg)
		}
	}
}

// printAgentSnippets prints MCP connection config snippets for various AI agents.
func printAgentSnippets(w io.Writer, useColor bool, config *dbmcp.ServerConfig) {
	path := config.HTTP.Path
	if path == "" {
		path = "/mcp"
	}
	url := fmt.Sprintf("http://localhost:%d%s", config.HTTP.Port, path)

	heading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "\033[1;36m%s\033[0m\n", title)
		} else {
			fmt.Fprintln(w, title)
		}
	}

	subheading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "  \033[1m%s\033[0m\n", title)
		} else {
			fmt.Fprintf(w, "  %s\n", title)
		}
	}

	heading("Agent Connection Snippets")
	fmt.Fprintln(w)

	subheading("Claude Code")
	fmt.Fprintf(w, "  Run this command to add the server:\n\n")
	fmt.Fprintf(w, "    claude mcp add --transport http dbmcp %s\n\n", url)
	fmt.Fprintf(w, "  Or add to .mcp.json (project scope):\n\n")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "dbmcp": {
        "type": "http",
        "url": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	subheading("Copilot CLI (~/.copilot/mcp-config.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "dbmcp": {
        "type": "http",
        "url": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	subheading("Gemini CLI (~/.gemini/settings.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "dbmcp": {
        "httpUrl": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	subheading("Cursor (.cursor/mcp.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "dbmcp": {
        "url": "%s"
      }
    }
  }
`, url)
}
