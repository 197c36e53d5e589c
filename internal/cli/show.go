package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"envwatch/internal/app"
)

var (
	showLimit     int
	showPollutant string
	showStation   string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:     showLimit,
			Pollutant: showPollutant,
			StationID: showStation,
		}

		return getApp().Show(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of analyses to display (max 50)")
	showCmd.Flags().StringVar(&showPollutant, "pollutant", "", "Only show analyses for this pollutant")
	showCmd.Flags().StringVar(&showStation, "station", "", "Only show analyses for this station id")
}
