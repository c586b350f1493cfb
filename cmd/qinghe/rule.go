package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/lxj901/qingheplan-sub004/internal/rules"
	"github.com/lxj901/qingheplan-sub004/internal/storage"
	"github.com/spf13/cobra"
)

var (
	ruleName     string
	ruleBundleID string
	ruleMaxDaily time.Duration
	ruleDisabled bool
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage app unlock rules",
}

var ruleAddCmd = &cobra.Command{
	Use:   "add [TOKEN]",
	Short: "Add an app rule",
	Long: `Add an app rule. A rule is identified by its app token, or by --name
when no token is given. Adding an existing identity changes nothing.`,
	Example: `  qinghe rule add com.example.video --name Video --max-daily 1h
  qinghe rule add --name "Reading App" --max-daily 30m`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuleAdd,
}

var ruleRemoveCmd = &cobra.Command{
	Use:   "remove KEY",
	Short: "Remove an app rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRules(func(ctx context.Context, store *rules.Store) error {
			return store.RemoveRule(ctx, args[0])
		})
	},
}

var ruleEnableCmd = &cobra.Command{
	Use:   "enable KEY",
	Short: "Enable an app rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRules(func(ctx context.Context, store *rules.Store) error {
			return store.SetEnabled(ctx, args[0], true)
		})
	},
}

var ruleDisableCmd = &cobra.Command{
	Use:   "disable KEY",
	Short: "Disable an app rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRules(func(ctx context.Context, store *rules.Store) error {
			return store.SetEnabled(ctx, args[0], false)
		})
	},
}

var ruleSetCapCmd = &cobra.Command{
	Use:     "set-cap KEY DURATION",
	Short:   "Set the daily cap of an app rule",
	Example: `  qinghe rule set-cap com.example.video 45m`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[1], err)
		}
		return withRules(func(ctx context.Context, store *rules.Store) error {
			return store.SetMaxDailyTime(ctx, args[0], int64(d/time.Second))
		})
	},
}

var ruleDedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Remove duplicate app rules, keeping the newest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRules(func(ctx context.Context, store *rules.Store) error {
			removed := store.Deduplicate(ctx)
			fmt.Printf("Removed %d duplicate rule(s)\n", removed)
			return nil
		})
	},
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List app rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRules(func(ctx context.Context, store *rules.Store) error {
			printRules(store.ListRules())
			return nil
		})
	},
}

func init() {
	ruleAddCmd.Flags().StringVar(&ruleName, "name", "", "Display name")
	ruleAddCmd.Flags().StringVar(&ruleBundleID, "bundle-id", "", "Bundle identifier")
	ruleAddCmd.Flags().DurationVar(&ruleMaxDaily, "max-daily", 0, "Daily cap on the app's draw from the shared budget (0 means no cap)")
	ruleAddCmd.Flags().BoolVar(&ruleDisabled, "disabled", false, "Add the rule disabled")

	ruleCmd.AddCommand(ruleAddCmd, ruleRemoveCmd, ruleEnableCmd, ruleDisableCmd, ruleSetCapCmd, ruleDedupeCmd, ruleListCmd)
	rootCmd.AddCommand(ruleCmd)
}

func runRuleAdd(cmd *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 {
		token = args[0]
	}
	if token == "" && ruleName == "" {
		return fmt.Errorf("either an app token or --name is required")
	}
	if ruleMaxDaily < 0 {
		return fmt.Errorf("--max-daily must not be negative")
	}

	return withRules(func(ctx context.Context, store *rules.Store) error {
		rule, err := store.AddOrUpdateRule(ctx, token, ruleName, ruleBundleID, int64(ruleMaxDaily/time.Second), !ruleDisabled)
		if errors.Is(err, rules.ErrRuleExists) {
			color.New(color.FgYellow).Printf("Rule %s already exists (%s)\n", rule.Key(), rule.ID)
			return nil
		}
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Printf("Added rule %s (%s)\n", rule.Key(), rule.ID)
		return nil
	})
}

func withRules(fn func(ctx context.Context, store *rules.Store) error) error {
	ctx := context.Background()
	a, err := openCommandApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.rules)
}

func printRules(list []storage.AppRule) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	if len(list) == 0 {
		fmt.Println("No rules configured")
		return
	}

	cyan.Printf("%-32s %-20s %-10s %s\n", "KEY", "NAME", "MAX DAILY", "ENABLED")
	for _, r := range list {
		maxDaily := "-"
		if r.MaxDailySeconds > 0 {
			maxDaily = (time.Duration(r.MaxDailySeconds) * time.Second).String()
		}
		fmt.Printf("%-32s %-20s %-10s ", r.Key(), r.DisplayName, maxDaily)
		if r.Enabled {
			green.Println("yes")
		} else {
			gray.Println("no")
		}
	}
}
