package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/counselhq/counsel/internal/config"
)

// --- prompt ---

var promptCmd = &cobra.Command{
	Use:   "prompt <text>",
	Short: "Submit a prompt for research and summarization",
	Long: `Submit a prompt for research and summarization.

Examples:
  counsel prompt "Should we migrate the billing service to Postgres?"
  counsel prompt --agent 2 "Assess the vendor shortlist"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		agentID, _ := cmd.Flags().GetInt64("agent")

		req := map[string]any{"text": text}
		if agentID > 0 {
			req["agent_id"] = agentID
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/prompts", req)
		if err != nil {
			return err
		}

		var result struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Submitted prompt %d (%s)", result.ID, result.Status)
		fmt.Printf("%d\n", result.ID)
		return nil
	},
}

// --- result ---

var resultCmd = &cobra.Command{
	Use:   "result <id>",
	Short: "Show the current result for a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/prompts/"+args[0]+"/result")
		if err != nil {
			return err
		}

		var result struct {
			Status  string   `json:"status"`
			Options []string `json:"options"`
			Summary string   `json:"summary"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStatus("Status", "%s", result.Status)
		if result.Summary != "" {
			fmt.Printf("\n%s\n%s\n", colorize(colorBold, "Summary"), result.Summary)
		}
		if len(result.Options) > 0 {
			fmt.Printf("\n%s\n", colorize(colorBold, "Options"))
			for i, opt := range result.Options {
				fmt.Printf("  %d. %s\n", i+1, opt)
			}
		}
		return nil
	},
}

func init() {
	promptCmd.Flags().Int64("agent", 0, "agent profile id to summarize with")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadUnchecked()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
