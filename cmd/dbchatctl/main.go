package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/duckmesh/dbchat/internal/cli/dbchatctl"
)

func main() {
	options := dbchatctl.Options{
		BaseURL: envOr("DBCHAT_API_URL", "http://localhost:8080"),
		Timeout: parseDurationWithDefault(strings.TrimSpace(os.Getenv("DBCHAT_CLI_TIMEOUT")), 90*time.Second),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	os.Exit(dbchatctl.Run(context.Background(), os.Args[1:], options))
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid DBCHAT_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
