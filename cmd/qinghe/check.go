package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/lxj901/qingheplan-sub004/internal/config"
	"github.com/lxj901/qingheplan-sub004/internal/policy"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var checkFacts policy.Facts

var checkCmd = &cobra.Command{
	Use:   "check TOKEN",
	Short: "Evaluate the restriction policy for a set of facts",
	Long: `Evaluate the configured restriction policy against facts given on the
command line, without touching stored state. Useful when writing custom policies.`,
	Example: `  qinghe check com.example.video --pool-unlocked --remaining 600
  qinghe check com.example.video --exhausted --temporarily-unlocked`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkFacts.PoolUnlocked, "pool-unlocked", false, "App is unlocked by the shared budget")
	checkCmd.Flags().BoolVar(&checkFacts.Exhausted, "exhausted", false, "Budget is exhausted for today")
	checkCmd.Flags().BoolVar(&checkFacts.TemporarilyUnlocked, "temporarily-unlocked", false, "App holds an active temporary unlock")
	checkCmd.Flags().BoolVar(&checkFacts.PenaltyCancelled, "penalty-cancelled", false, "Restriction was cancelled with a penalty today")
	checkCmd.Flags().Int64Var(&checkFacts.RemainingSeconds, "remaining", 0, "Seconds the app may still use")
	checkCmd.Flags().Int64Var(&checkFacts.UsedSeconds, "used", 0, "Seconds the app was used today")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	engine, err := policy.NewEngine(cfg.Policy.Dir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Policy Engine: %w", err)
	}

	facts := checkFacts
	facts.AppToken = args[0]

	restrict, err := engine.Decide(context.Background(), facts)

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println(banner)
	cyan.Println("RESTRICTION POLICY CHECK")
	cyan.Println(banner)
	fmt.Println()

	fmt.Printf("App:        %s\n", facts.AppToken)
	fmt.Printf("Policy:     %s\n", engine.Source())
	fmt.Printf("Pool:       unlocked=%t remaining=%ds used=%ds\n", facts.PoolUnlocked, facts.RemainingSeconds, facts.UsedSeconds)
	fmt.Printf("Exhausted:  %t\n", facts.Exhausted)
	fmt.Printf("Temporary:  %t\n", facts.TemporarilyUnlocked)
	fmt.Printf("Penalty:    %t\n", facts.PenaltyCancelled)
	fmt.Println()

	cyan.Print("Decision:   ")
	if restrict {
		red.Println("RESTRICT")
	} else {
		green.Println("ALLOW")
	}
	if err != nil {
		fmt.Printf("Error:      %v\n", err)
		fmt.Println("            → Evaluation failed, the app stays restricted")
	}

	fmt.Println()
	cyan.Println(banner)
	fmt.Println()

	return nil
}
