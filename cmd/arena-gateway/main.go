// ABOUTME: Entry point for the arena-gateway match server.
// ABOUTME: Commands: serve (run the gateway), health (check a running gateway).

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/moltpit/arena/internal/config"
	"github.com/moltpit/arena/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                              _
  __ _ _ __ ___ _ __   __ _        __ _  __ _| |_ _____      ____ _ _   _
 / _' | '__/ _ \ '_ \ / _' |_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| | | |  __/ | | | (_| |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \__,_|_|  \___|_| |_|\__,_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                  |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: ARENA_CONFIG env var > XDG_CONFIG_HOME/arena/gateway.yaml > ~/.config/arena/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ARENA_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "arena", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: arena-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the gateway server")
		fmt.Println("  health   Check gateway health")
		fmt.Println("  version  Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	color.Cyan(banner)
	color.White("  version %s\n\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	setupLogging(cfg)

	gw, err := gateway.New(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("assembling gateway: %w", err)
	}

	return gw.Run(ctx)
}

func loadConfig() (*config.Config, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		color.Yellow("No config at %s, using defaults\n", configPath)
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr := cfg.Server.HTTPAddr
	if addr[0] == ':' {
		addr = "localhost" + addr
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	color.Green("Gateway healthy: %s\n", body["status"])
	return nil
}
