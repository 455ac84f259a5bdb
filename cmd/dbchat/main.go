package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/duckmesh/dbchat/internal/config"
	"github.com/duckmesh/dbchat/internal/conversation"
	"github.com/duckmesh/dbchat/internal/gateway"
	"github.com/duckmesh/dbchat/internal/llm"
	"github.com/duckmesh/dbchat/internal/nl2sql"
	"github.com/duckmesh/dbchat/internal/observability"
	"github.com/duckmesh/dbchat/internal/tui"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("dbchat")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	dialect := flag.String("dialect", cfg.Database.Dialect, "mssql|postgres|duckdb|sqlite")
	host := flag.String("host", cfg.Database.Host, "server host")
	port := flag.Int("port", cfg.Database.Port, "server port (0 = driver default)")
	user := flag.String("user", cfg.Database.User, "user name")
	password := flag.String("password", cfg.Database.Password, "password")
	database := flag.String("database", cfg.Database.Name, "database name or file path")
	trust := flag.Bool("trust-server-certificate", cfg.Database.TrustServerCertificate, "skip TLS certificate verification")
	connect := flag.Bool("connect", true, "connect on startup")
	logFile := flag.String("log-file", "", "write logs to this file instead of discarding them")
	flag.Parse()

	parsed, err := gateway.ParseDialect(*dialect)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// The terminal belongs to the UI, so logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}
	logger := observability.NewLogger(cfg, logOut)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	client, err := llm.New(ctx, llm.Config{
		Provider:    llm.Provider(cfg.LLM.Provider),
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "llm client: %v\n", err)
		os.Exit(1)
	}

	session := conversation.NewSession(uuid.NewString(), conversation.Options{
		Answerer:  &nl2sql.Pipeline{LLM: client, Logger: logger},
		Connector: conversation.GatewayConnector(gateway.WithSampleRows(cfg.Database.SchemaSampleRows)),
		Logger:    logger,
	})
	defer func() { _ = session.Close() }()

	model := tui.New(ctx, session, tui.Options{
		Params: gateway.ConnectParams{
			Dialect:                parsed,
			Host:                   *host,
			Port:                   *port,
			User:                   *user,
			Password:               *password,
			Database:               *database,
			TrustServerCertificate: *trust,
		},
		AutoConnect: *connect,
	})
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "dbchat: %v\n", err)
		os.Exit(1)
	}
}
