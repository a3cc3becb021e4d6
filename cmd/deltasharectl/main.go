package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/deltashare/deltashare/internal/cli/deltasharectl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("DELTASHARE_CLI_TIMEOUT")), 10*time.Second)
	options := deltasharectl.Options{
		BaseURL: envOr("DELTASHARE_API_URL", "http://localhost:8080"),
		Token:   strings.TrimSpace(os.Getenv("DELTASHARE_TOKEN")),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := deltasharectl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
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
		_, _ = fmt.Fprintf(os.Stderr, "invalid DELTASHARE_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
