package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/agentflow/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		runSetup(bufio.NewScanner(os.Stdin), os.Stdout, cfg)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// runSetup asks for the settings a first run needs, keeping current values
// on empty input.
func runSetup(scanner *bufio.Scanner, w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "agentflow setup")
	fmt.Fprintln(w, "Press Enter to accept the value shown in brackets.")
	fmt.Fprintln(w)

	// Execution service
	cfg.LLM.BaseURL = prompt(scanner, w, "Model API base URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = prompt(scanner, w, "Model API key (used when a model node has none)", cfg.LLM.APIKey)
	cfg.HTTP.Listen = prompt(scanner, w, "Listen address for agentflow serve", cfg.HTTP.Listen)

	// Front-ends
	cfg.Client.Endpoint = prompt(scanner, w, "Chat endpoint for agentflow chat", cfg.Client.Endpoint)
	cfg.GraphPath = prompt(scanner, w, "Graph seed file (optional)", cfg.GraphPath)
	cfg.Telegram.Token = prompt(scanner, w, "Telegram bot token (optional)", cfg.Telegram.Token)
	cfg.Brave.APIKey = prompt(scanner, w, "Brave API key (optional)", cfg.Brave.APIKey)
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, w io.Writer, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(w, "%s [%s]: ", label, defaultVal)
	} else {
		fmt.Fprintf(w, "%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
