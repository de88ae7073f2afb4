package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ctxengine "github.com/user/agentflow/internal/context"
	"github.com/user/agentflow/internal/graph"
	"github.com/user/agentflow/internal/runtime"
	"github.com/user/agentflow/internal/runtime/tools"
	"github.com/user/agentflow/internal/server"
	"github.com/user/agentflow/pkg/llm"
	"github.com/user/agentflow/pkg/llm/openai"
)

var serveListen string

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides http.listen)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent execution service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	if serveListen != "" {
		cfg.HTTP.Listen = serveListen
	}

	// Context engine
	engine, err := ctxengine.New(graph.DefaultModelName, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return fmt.Errorf("create context engine: %w", err)
	}

	// Tool registry
	registry := runtime.NewRegistry(tools.NewWeather(), tools.NewReadURL())
	if cfg.Brave.APIKey != "" {
		registry.Register(tools.NewBraveSearch(cfg.Brave.APIKey))
	}

	// Runtime
	rt := runtime.New(openai.Factory(), engine, registry, llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, cfg.MaxToolRounds)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           server.NewServer(rt, int64(cfg.MaxConcurrent), cfg.HTTP.AllowedOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	slog.Info("agentflow server started",
		"listen", cfg.HTTP.Listen,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"max_tool_rounds", cfg.MaxToolRounds,
		"llm_base_url", cfg.LLM.BaseURL,
		"tools", registry.Names(),
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
