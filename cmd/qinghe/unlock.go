package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/lxj901/qingheplan-sub004/internal/budget"
	"github.com/spf13/cobra"
)

var unlockFor time.Duration

var unlockCmd = &cobra.Command{
	Use:   "unlock KEY",
	Short: "Temporarily unlock an app without drawing from the budget",
	Long: `Temporarily unlock an app. The grant is independent of the earned budget
and expires on its own; the restriction is reapplied when it does.`,
	Example: `  qinghe unlock com.example.video --for 15m`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openCommandApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		grant, err := a.coordinator.TemporaryUnlock(ctx, args[0], unlockFor)
		if errors.Is(err, budget.ErrNoSuchRule) {
			return fmt.Errorf("no rule for %q", args[0])
		}
		if err != nil {
			return err
		}

		color.New(color.FgGreen, color.Bold).Printf("Unlocked %s until %s\n", args[0], grant.ExpiresAt.In(a.loc).Format("15:04:05"))
		return nil
	},
}

var penaltyCmd = &cobra.Command{
	Use:   "penalty KEY",
	Short: "Lift an app's restriction for today at a budget cost",
	Long: `Lift an app's restriction for the rest of the day. The penalty is deducted
from the shared budget and is refused when less than the penalty remains.

When the remaining budget equals the penalty the deduction exhausts the day,
and the app is restricted again right away along with every other app.`,
	Example: `  qinghe penalty com.example.video`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openCommandApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		red := color.New(color.FgRed, color.Bold)
		err = a.coordinator.CancelRestrictionWithPenalty(ctx, args[0])
		switch {
		case errors.Is(err, budget.ErrInsufficientBudget):
			red.Printf("Not enough budget left: the penalty costs %d minutes\n", a.cfg.Budget.PenaltyMinutes)
			return err
		case errors.Is(err, budget.ErrNoSuchRule):
			return fmt.Errorf("no rule for %q", args[0])
		case err != nil:
			return err
		}

		_, remaining := a.coordinator.CountdownState(ctx)
		if remaining == 0 {
			red.Printf("Penalty paid, but it used up today's budget: %s stays restricted\n", args[0])
			return nil
		}
		color.New(color.FgYellow, color.Bold).Printf("Restriction on %s lifted for today, %s left\n", args[0], formatSeconds(remaining))
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the countdown",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openCommandApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.coordinator.Pause(ctx) {
			fmt.Println("Countdown is not running")
			return nil
		}
		fmt.Println("Countdown paused")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused countdown",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openCommandApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.coordinator.Resume(ctx) {
			fmt.Println("Countdown is not paused")
			return nil
		}
		fmt.Println("Countdown resumed")
		return nil
	},
}

func init() {
	unlockCmd.Flags().DurationVar(&unlockFor, "for", 15*time.Minute, "How long the app stays unlocked")
	rootCmd.AddCommand(unlockCmd, penaltyCmd, pauseCmd, resumeCmd)
}
