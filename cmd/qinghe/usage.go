package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Record app usage",
}

var usageRecordCmd = &cobra.Command{
	Use:     "record KEY SECONDS",
	Short:   "Record foreground usage of an app",
	Example: `  qinghe usage record com.example.video 120`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seconds %q: %w", args[1], err)
		}
		if seconds <= 0 {
			return fmt.Errorf("seconds must be positive")
		}

		ctx := context.Background()
		a, err := openCommandApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		a.coordinator.RecordUsage(ctx, args[0], seconds)
		_, remaining := a.coordinator.CountdownState(ctx)
		fmt.Printf("Recorded %ds for %s, %s left today\n", seconds, args[0], formatSeconds(remaining))
		return nil
	},
}

func init() {
	usageCmd.AddCommand(usageRecordCmd)
	rootCmd.AddCommand(usageCmd)
}
