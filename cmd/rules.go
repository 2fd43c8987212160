package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ciciliostudio/loginpilot/internal/engine"
	"github.com/ciciliostudio/loginpilot/internal/rules"
	"github.com/ciciliostudio/loginpilot/internal/stats"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and manage learned login rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rules with provenance and confidence",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := rules.NewStore(cfg.RulesPath(), logger)
		domains := store.Domains()

		names := make([]string, 0, len(domains))
		for domain := range domains {
			names = append(names, domain)
		}
		sort.Strings(names)

		if len(names) == 0 {
			fmt.Println("No rules learned yet.")
			return nil
		}
		for _, domain := range names {
			rule := domains[domain]
			fmt.Printf("%-30s %-10s confidence=%.2f success=%d failure=%d\n",
				domain, rule.Provenance, rule.Confidence, rule.SuccessCount, rule.FailureCount)
		}
		return nil
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show <domain>",
	Short: "Show the full rule for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := rules.NewStore(cfg.RulesPath(), logger)
		rule, ok := store.RuleForDomain(args[0])
		if !ok {
			fmt.Printf("No rule found for %s.\n", args[0])
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rule)
	},
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a community rule file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := rules.NewStore(cfg.RulesPath(), logger)
		adopted, err := store.ImportCommunity(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d community rule(s).\n", adopted)
		return nil
	},
}

var rulesContributeCmd = &cobra.Command{
	Use:   "contribute",
	Short: "Print rules stable enough to share, in community import format",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := rules.NewStore(cfg.RulesPath(), logger)
		learner := engine.NewLearner(store, logger)

		entries := stats.ContributionReport(learner.ContributableRules())
		if len(entries) == 0 {
			fmt.Println("No rules meet the contribution threshold yet.")
			return nil
		}
		// Keyed by domain so the output is directly importable.
		domains := make(map[string]stats.ContributionEntry, len(entries))
		for _, entry := range entries {
			domains[entry.Domain] = entry
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"domains": domains})
	},
}

func init() {
	rulesCmd.AddCommand(rulesListCmd, rulesShowCmd, rulesImportCmd, rulesContributeCmd)
	rootCmd.AddCommand(rulesCmd)
}
