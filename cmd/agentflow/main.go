package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/agentflow/internal/config"
	"github.com/user/agentflow/internal/conversation"
	"github.com/user/agentflow/internal/graph"
)

var (
	cfgPath   string
	graphPath string
)

var rootCmd = &cobra.Command{
	Use:           "agentflow",
	Short:         "Wire an agent from a node graph and chat with it",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&graphPath, "graph", "", "graph seed file (overrides graph_path)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if graphPath != "" {
		cfg.GraphPath = graphPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadGraph builds the starting graph and the reducer configured for it.
func loadGraph(cfg *config.Config) (*graph.Store, graph.Reducer, error) {
	dangling, err := graph.ParseDanglingPolicy(cfg.Graph.DanglingEdges)
	if err != nil {
		return nil, graph.Reducer{}, err
	}
	policy, err := graph.ParseModelPolicy(cfg.Graph.ModelPolicy)
	if err != nil {
		return nil, graph.Reducer{}, err
	}
	store, err := graph.LoadSeed(cfg.GraphPath, graph.WithDanglingPolicy(dangling))
	if err != nil {
		return nil, graph.Reducer{}, err
	}
	return store, graph.Reducer{Policy: policy}, nil
}

func newTransport(cfg *config.Config) *conversation.Client {
	var opts []conversation.ClientOption
	if cfg.Client.TimeoutSeconds > 0 {
		opts = append(opts, conversation.WithHeaderTimeout(time.Duration(cfg.Client.TimeoutSeconds)*time.Second))
	}
	return conversation.NewClient(cfg.Client.Endpoint, opts...)
}
