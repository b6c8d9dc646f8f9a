package cli

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulatePrevious string
	simulateCurrent  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价格变动并走完告警流程",
	RunE: func(cmd *cobra.Command, args []string) error {
		previous, err := decimal.NewFromString(simulatePrevious)
		if err != nil {
			return fmt.Errorf("--previous: %w", err)
		}
		current, err := decimal.NewFromString(simulateCurrent)
		if err != nil {
			return fmt.Errorf("--current: %w", err)
		}
		if !previous.IsPositive() || !current.IsPositive() {
			return errors.New("--previous 与 --current 必须大于 0")
		}

		outcome, err := getApp().SimulateAlert(cmd.Context(), previous, current)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s\n", outcome)
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePrevious, "previous", "", "上一次观测价格")
	simulateCmd.Flags().StringVar(&simulateCurrent, "current", "", "本次价格")
}
