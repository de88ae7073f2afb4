package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/agentflow/internal/graph"
)

var graphInitForce bool

func init() {
	graphInitCmd.Flags().BoolVar(&graphInitForce, "force", false, "overwrite an existing file")
	graphCmd.AddCommand(graphShowCmd, graphDeriveCmd, graphInitCmd)
	rootCmd.AddCommand(graphCmd)
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the agent graph",
}

var graphShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the graph as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, _, err := loadGraph(cfg)
		if err != nil {
			return err
		}
		snap := store.Snapshot()
		for i, n := range snap.Nodes {
			if n.Field(graph.FieldAPIKey) != "" {
				snap.Nodes[i].Fields[graph.FieldAPIKey] = "***"
			}
		}
		return printJSON(snap)
	},
}

var graphDeriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Print the agent config the graph reduces to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, reducer, err := loadGraph(cfg)
		if err != nil {
			return err
		}
		agent, err := reducer.Derive(store)
		if err != nil {
			return err
		}
		if agent.APIKey != "" {
			agent.APIKey = "***"
		}
		return printJSON(agent)
	},
}

var graphInitCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Write the default graph as a TOML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		if graphInitForce {
			flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		}
		f, err := os.OpenFile(path, flags, 0644)
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err != nil {
			return fmt.Errorf("create seed: %w", err)
		}
		if err := graph.EncodeSeed(f, graph.DefaultStore().Snapshot()); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("write seed: %w", err)
		}
		fmt.Fprintln(os.Stdout, "Wrote", path)
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
