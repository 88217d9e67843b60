package cmd

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/bpmatch/internal/service"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match stored projects and technicians",
}

var matchJobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Rank stored technicians for a stored project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		matchJob(cmd, args[0])
	},
}

var matchCandidateCmd = &cobra.Command{
	Use:   "candidate",
	Short: "Extract a candidate from a mail body and rank stored projects for it",
	Run: func(cmd *cobra.Command, _ []string) {
		matchCandidate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.AddCommand(matchJobCmd, matchCandidateCmd)

	matchCandidateCmd.Flags().StringP("file", "f", "", "file with the candidate mail body, - reads stdin")
	matchCandidateCmd.MarkFlagRequired("file")
}

func matchJob(cmd *cobra.Command, id string) {
	ctx := cmd.Context()
	logger := newLogger()

	config, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	comps, err := build(ctx, config, logger, nil)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer comps.Close()

	resp, err := comps.service.MatchJob(ctx, service.MatchRequest{JobID: id})
	if err != nil {
		logger.Fatal("matching job", zap.String("job_id", id), zap.Error(err))
	}

	logger.Info("matched job", zap.String("job_id", id), zap.Int("count", len(resp.Matches)))

	if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
		logger.Fatal("printing matches", zap.Error(err))
	}
}

func matchCandidate(cmd *cobra.Command) {
	ctx := cmd.Context()
	logger := newLogger()

	config, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	path, _ := cmd.Flags().GetString("file")
	body, err := readInput(cmd, path)
	if err != nil {
		logger.Fatal("reading candidate body", zap.String("file", path), zap.Error(err))
	}

	comps, err := build(ctx, config, logger, nil)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer comps.Close()

	resp, err := comps.service.MatchAdHocCandidate(ctx, service.AdHocMatchRequest{Body: body})
	if err != nil {
		logger.Fatal("matching candidate", zap.Error(err))
	}

	if resp.Defaulted {
		logger.Warn("candidate details could not be extracted, defaults were used")
	}

	if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
		logger.Fatal("printing matches", zap.Error(err))
	}
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
