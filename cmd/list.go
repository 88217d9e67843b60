package cmd

import (
	"log"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/bpmatch/internal/service"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List mailbox messages as normalized JSON, newest first",
	Run: func(cmd *cobra.Command, _ []string) {
		list(cmd)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("keyword", "k", "", "search keyword (default is gmail.query)")
	listCmd.Flags().String("date", "", "a single day, YYYY-MM-DD")
	listCmd.Flags().String("start", "", "range start, YYYY-MM-DD")
	listCmd.Flags().String("end", "", "range end, YYYY-MM-DD")
	listCmd.Flags().IntP("page", "p", 1, "page number")
	listCmd.Flags().Int("page-size", 20, "page size, at most 100")
}

func list(cmd *cobra.Command) {
	ctx := cmd.Context()
	logger := newLogger()

	config, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	req := service.ListMessagesRequest{}
	req.Keyword, _ = cmd.Flags().GetString("keyword")
	req.Page, _ = cmd.Flags().GetInt("page")
	req.PageSize, _ = cmd.Flags().GetInt("page-size")

	for flag, target := range map[string]*time.Time{"date": &req.Date, "start": &req.Start, "end": &req.End} {
		raw, _ := cmd.Flags().GetString(flag)
		if *target, err = parseDate(raw); err != nil {
			logger.Fatal("parsing flags", zap.String("flag", flag), zap.Error(err))
		}
	}

	mailbox, err := newMailbox(ctx, config.Gmail, logger)
	if err != nil {
		logger.Fatal("building mailbox", zap.Error(err))
	}

	// Listing only reads the mailbox, so no store or matcher is wired.
	svc := service.New(mailbox, nil, nil, nil, logger.Named("service"))

	resp, err := svc.ListMessages(ctx, req)
	if err != nil {
		logger.Fatal("listing messages", zap.Error(err))
	}

	logger.Info("listed messages",
		zap.Int("count", len(resp.Items)),
		zap.Int("page", resp.Page),
		zap.Bool("has_next", resp.HasNext),
		zap.Int64("estimate", resp.Estimate),
	)

	if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
		logger.Fatal("printing messages", zap.Error(err))
	}
}
