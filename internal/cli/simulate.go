package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"arb-explorer/internal/opportunity"
)

var (
	simulateDirection string
	simulateProfit    float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次套利机会并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateProfit <= 0 {
			return errors.New("--profit 必须大于 0")
		}
		direction, err := opportunity.ParseDirection(simulateDirection)
		if err != nil {
			return err
		}
		return getApp().SimulateAlert(cmd.Context(), direction, simulateProfit)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateDirection, "direction", string(opportunity.BuyLeftSellRight), "交易方向")
	simulateCmd.Flags().Float64Var(&simulateProfit, "profit", 0, "净利润 (USD)")
}
