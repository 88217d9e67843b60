package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Run one harvest over the configured window and print the summary",
	Run: func(cmd *cobra.Command, _ []string) {
		runHarvest(cmd)
	},
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().Int("window-days", 0, "override harvest.window-days")
	harvestCmd.Flags().Int("max-pages", 0, "override harvest.max-pages")

	viper.BindPFlag("harvest.window-days", harvestCmd.Flags().Lookup("window-days"))
	viper.BindPFlag("harvest.max-pages", harvestCmd.Flags().Lookup("max-pages"))
}

func runHarvest(cmd *cobra.Command) {
	ctx := cmd.Context()

	config, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	// Harvest runs keep a per-day log file next to the console output.
	logger, closeLog, err := newHarvestLogger(config.Harvest.LogDir)
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer closeLog()

	logger.Info("starting the bpmatch harvest", zap.String("version", version))

	comps, err := build(ctx, config, logger, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer comps.Close()

	run, err := comps.orchestrator.Run(ctx)
	if run != nil {
		if printErr := printJSON(cmd.OutOrStdout(), summarize(run)); printErr != nil {
			logger.Warn("printing summary", zap.Error(printErr))
		}
	}
	if err != nil {
		logger.Fatal("harvest failed", zap.Error(err))
	}
}
