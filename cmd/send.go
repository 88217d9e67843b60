package cmd

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/bpmatch/internal/service"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a mail or a threaded reply and record it in the sent log",
	Run: func(cmd *cobra.Command, _ []string) {
		send(cmd)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringSlice("to", nil, "recipients")
	sendCmd.Flags().StringSlice("cc", nil, "carbon copy recipients")
	sendCmd.Flags().StringP("subject", "s", "", "subject")
	sendCmd.Flags().StringP("body", "b", "", "plain-text body")
	sendCmd.Flags().String("body-file", "", "file with the plain-text body, - reads stdin")
	sendCmd.Flags().StringSliceP("attach", "a", nil, "files to attach")
	sendCmd.Flags().String("thread-id", "", "provider thread id to reply in")
	sendCmd.Flags().String("in-reply-to", "", "Message-ID of the mail being answered")
	sendCmd.Flags().String("references", "", "References header, defaults to --in-reply-to")
	sendCmd.Flags().String("mail-type", "", "free-form type recorded in the sent log")
	sendCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("subject")
}

func send(cmd *cobra.Command) {
	ctx := cmd.Context()
	logger := newLogger()

	config, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	req, err := sendRequestFromFlags(cmd)
	if err != nil {
		logger.Fatal("parsing flags", zap.Error(err))
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Send %q to %s", req.Subject, strings.Join(req.To, ", ")),
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			if errors.Is(err, promptui.ErrAbort) {
				logger.Info("exiting", zap.String("reason", "got no from prompt"))
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}

	comps, err := build(ctx, config, logger, nil)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer comps.Close()

	resp, err := comps.service.SendReply(ctx, req)
	if err != nil {
		logger.Fatal("sending mail", zap.Error(err))
	}

	logger.Info("mail sent",
		zap.String("message_id", resp.MessageID),
		zap.String("thread_id", resp.ThreadID),
	)
}

func sendRequestFromFlags(cmd *cobra.Command) (service.SendRequest, error) {
	flags := cmd.Flags()

	req := service.SendRequest{}
	req.To, _ = flags.GetStringSlice("to")
	req.Cc, _ = flags.GetStringSlice("cc")
	req.Subject, _ = flags.GetString("subject")
	req.Body, _ = flags.GetString("body")
	req.ThreadID, _ = flags.GetString("thread-id")
	req.InReplyTo, _ = flags.GetString("in-reply-to")
	req.References, _ = flags.GetString("references")
	req.MailType, _ = flags.GetString("mail-type")

	if path, _ := flags.GetString("body-file"); path != "" {
		body, err := readInput(cmd, path)
		if err != nil {
			return req, fmt.Errorf("reading body: %w", err)
		}
		req.Body = body
	}

	paths, _ := flags.GetStringSlice("attach")
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return req, fmt.Errorf("reading attachment: %w", err)
		}
		req.Attachments = append(req.Attachments, service.AttachmentInput{
			Filename:    filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Content:     base64.StdEncoding.EncodeToString(data),
		})
	}

	return req, nil
}
