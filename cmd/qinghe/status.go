package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/lxj901/qingheplan-sub004/internal/budget"
	"github.com/lxj901/qingheplan-sub004/internal/countdown"
	"github.com/spf13/cobra"
)

const banner = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var statusCmd = &cobra.Command{
	Use:   "status [KEY]",
	Short: "Show today's budget and unlock status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openCommandApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var statuses []budget.UnlockStatus
	if len(args) == 1 {
		status, err := a.coordinator.GetUnlockStatus(ctx, args[0])
		if err != nil {
			return fmt.Errorf("no rule for %q", args[0])
		}
		statuses = []budget.UnlockStatus{status}
	} else {
		statuses = a.coordinator.ListUnlockStatuses(ctx)
	}

	state, remaining := a.coordinator.CountdownState(ctx)
	printBudget(a.coordinator.GetBreakdown(ctx), state, remaining, a.coordinator.GetTodaySelfDisciplineMinutes(ctx))
	printStatuses(statuses, a.loc)
	return nil
}

func printBudget(b budget.Breakdown, state countdown.State, remaining, available int64) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println(banner)
	cyan.Printf("BUDGET %s\n", b.Date)
	cyan.Println(banner)
	fmt.Println()

	fmt.Printf("Plan:       %d min\n", b.PlanMinutes)
	fmt.Printf("Sleep:      %d min\n", b.SleepMinutes)
	fmt.Printf("Exercise:   %d min\n", b.ExerciseMinutes)
	fmt.Printf("Earned:     %d min\n", b.TotalMinutes)
	fmt.Printf("Available:  %d min\n", available)
	fmt.Println()

	cyan.Print("Countdown:  ")
	switch state {
	case countdown.StateRunning:
		green.Printf("RUNNING (%s left)\n", formatSeconds(remaining))
	case countdown.StateStopped:
		yellow.Printf("PAUSED (%s left)\n", formatSeconds(remaining))
	case countdown.StateExhausted:
		red.Println("EXHAUSTED")
		fmt.Println("            → No more budget can be earned today")
	default:
		fmt.Println("IDLE")
		fmt.Println("            → Starts once budget is earned and a rule is enabled")
	}
	fmt.Println()
}

func printStatuses(statuses []budget.UnlockStatus, loc *time.Location) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	cyan.Println(banner)
	cyan.Println("APPS")
	cyan.Println(banner)
	fmt.Println()

	if len(statuses) == 0 {
		fmt.Println("No enabled rules")
		fmt.Println()
		return
	}

	for _, s := range statuses {
		name := s.DisplayName
		if name == "" {
			name = s.RuleKey
		}
		fmt.Printf("%s (%s)\n", name, s.RuleKey)

		fmt.Print("  Decision:  ")
		if s.Restricted {
			red.Println("RESTRICTED")
		} else {
			green.Println("ALLOWED")
		}

		fmt.Printf("  Remaining: %s\n", formatSeconds(s.RemainingSeconds))
		fmt.Printf("  Used:      %s\n", formatSeconds(s.UsedSeconds))
		if s.TotalAllottedSeconds > 0 {
			fmt.Printf("  Allotted:  %s\n", formatSeconds(s.TotalAllottedSeconds))
		}
		if s.TemporarilyUnlocked {
			yellow.Printf("  Temporary unlock until %s\n", s.TemporaryUnlockExpiresAt.In(loc).Format("15:04:05"))
		}
		if s.PenaltyCancelled {
			yellow.Println("  Restriction cancelled with penalty today")
		}
		fmt.Println()
	}
}

func formatSeconds(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}
	return (time.Duration(seconds) * time.Second).String()
}
