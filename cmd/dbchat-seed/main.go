package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/duckmesh/dbchat/internal/config"
	"github.com/duckmesh/dbchat/internal/gateway"
	"github.com/duckmesh/dbchat/internal/sampledata"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("dbchat-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	direction := flag.String("direction", "up", "seed direction: up|down")
	steps := flag.Int("steps", 0, "number of scripts; 0 means all for up, 1 for down")
	dialect := flag.String("dialect", cfg.Database.Dialect, "mssql|postgres|duckdb|sqlite")
	host := flag.String("host", cfg.Database.Host, "server host")
	port := flag.Int("port", cfg.Database.Port, "server port (0 = driver default)")
	user := flag.String("user", cfg.Database.User, "user name")
	password := flag.String("password", cfg.Database.Password, "password")
	database := flag.String("database", cfg.Database.Name, "database name or file path")
	trust := flag.Bool("trust-server-certificate", cfg.Database.TrustServerCertificate, "skip TLS certificate verification")
	flag.Parse()

	parsed, err := gateway.ParseDialect(*dialect)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	gw, err := gateway.Connect(ctx, gateway.ConnectParams{
		Dialect:                parsed,
		Host:                   *host,
		Port:                   *port,
		User:                   *user,
		Password:               *password,
		Database:               *database,
		TrustServerCertificate: *trust,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database connect error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = gw.Close() }()

	loader := sampledata.NewLoader(parsed)
	switch *direction {
	case "up":
		applied, err := loader.Up(ctx, gw.DB(), *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d sample script(s) to %s\n", applied, parsed.DisplayName())
	case "down":
		reverted, err := loader.Down(ctx, gw.DB(), *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d sample script(s)\n", reverted)
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}
