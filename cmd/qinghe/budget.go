package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lxj901/qingheplan-sub004/internal/budget"
	"github.com/spf13/cobra"
)

var (
	reportPlan     int64
	reportSleep    int64
	reportExercise int64
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Report earned minutes",
}

var reportCmd = &cobra.Command{
	Use:   "report [SOURCE MINUTES]",
	Short: "Report today's earned minutes",
	Long: `Report today's earned minutes. With flags, all three sources are
replaced at once. With SOURCE MINUTES, only that source (plan, sleep or
exercise) changes. Only growth beyond the day's highest total is credited.`,
	Example: `  qinghe budget report --plan 20 --sleep 15 --exercise 10
  qinghe budget report exercise 25`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("accepts either no arguments or SOURCE MINUTES")
		}
		return nil
	},
	RunE: runReport,
}

func init() {
	reportCmd.Flags().Int64Var(&reportPlan, "plan", 0, "Minutes earned from completed plans")
	reportCmd.Flags().Int64Var(&reportSleep, "sleep", 0, "Minutes earned from sleep")
	reportCmd.Flags().Int64Var(&reportExercise, "exercise", 0, "Minutes earned from exercise")
	budgetCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(budgetCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openCommandApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var b budget.Breakdown
	if len(args) == 2 {
		source, err := budget.ParseSource(args[0])
		if err != nil {
			return err
		}
		minutes, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid minutes %q: %w", args[1], err)
		}
		if b, err = a.coordinator.ReportComponent(ctx, source, minutes); err != nil {
			return err
		}
	} else {
		b = a.coordinator.ReportEarnedBudget(ctx, reportPlan, reportSleep, reportExercise)
	}

	fmt.Printf("Plan:      %d min\n", b.PlanMinutes)
	fmt.Printf("Sleep:     %d min\n", b.SleepMinutes)
	fmt.Printf("Exercise:  %d min\n", b.ExerciseMinutes)
	fmt.Printf("Total:     %d min\n", b.TotalMinutes)
	fmt.Printf("Available: %d min\n", a.coordinator.GetTodaySelfDisciplineMinutes(ctx))
	return nil
}
