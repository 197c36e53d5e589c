package cli

import (
	"github.com/spf13/cobra"

	"envwatch/internal/app"
)

var (
	analyzeFile        string
	analyzeWindow      int
	analyzeThreshold   float64
	analyzeMinDuration int
	analyzeSave        bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run anomaly detection on a JSON payload",
	Example: `  envwatch analyze --file payload.json
  cat payload.json | envwatch analyze --file - --threshold 2.5 --save`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.AnalyzeOptions{
			Path:                analyzeFile,
			WindowSize:          analyzeWindow,
			ThresholdMultiplier: analyzeThreshold,
			MinEventDuration:    analyzeMinDuration,
			Save:                analyzeSave,
		}
		return getApp().Analyze(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFile, "file", "f", "", "Payload file (\"-\" reads stdin)")
	analyzeCmd.Flags().IntVar(&analyzeWindow, "window-size", 0, "Override windowSize from the payload")
	analyzeCmd.Flags().Float64Var(&analyzeThreshold, "threshold", 0, "Override thresholdMultiplier from the payload")
	analyzeCmd.Flags().IntVar(&analyzeMinDuration, "min-duration", 0, "Override minEventDuration from the payload")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "Persist the analysis to the database")
}
