package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/user/agentflow/internal/console"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Edit the graph and chat with the agent it describes",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	store, reducer, err := loadGraph(cfg)
	if err != nil {
		return err
	}
	c := console.New(store, reducer, newTransport(cfg), console.NewTerminal(), os.Stdout)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Ctrl-C cancels the running turn; with nothing running it exits.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		for {
			select {
			case <-sigChan:
				if !c.Interrupt() {
					fmt.Println()
					os.Exit(130)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return c.Run(ctx)
}
