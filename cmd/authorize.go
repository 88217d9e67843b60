package cmd

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/spigell/bpmatch/internal/gmail"
)

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Run the OAuth consent flow and store the mailbox token",
	Run: func(cmd *cobra.Command, _ []string) {
		authorize(cmd)
	},
}

func init() {
	rootCmd.AddCommand(authorizeCmd)
}

func authorize(cmd *cobra.Command) {
	ctx := cmd.Context()
	logger := newLogger()

	config, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	oauthCfg, err := gmail.OAuthConfig(config.Gmail.CredentialsFile)
	if err != nil {
		logger.Fatal("loading oauth client credentials", zap.Error(err),
			zap.String("hint", "download the desktop client credentials and set gmail.credentials-file"),
		)
	}

	state := uuid.NewString()
	consentURL := oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(cmd.OutOrStdout(), "Open the following URL, approve access and paste the code or the whole redirect URL:\n\n%s\n\n", consentURL)

	prompt := promptui.Prompt{
		Label: "Authorization code",
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("code is required")
			}
			return nil
		},
	}

	input, err := prompt.Run()
	if err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}

	code, err := authCode(input, state)
	if err != nil {
		logger.Fatal("reading authorization code", zap.Error(err))
	}

	tok, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		logger.Fatal("exchanging authorization code", zap.Error(err))
	}

	if err := gmail.SaveToken(config.Gmail.TokenFile, tok); err != nil {
		logger.Fatal("saving token", zap.Error(err))
	}

	logger.Info("token saved", zap.String("token_file", config.Gmail.TokenFile))
}

// authCode accepts either a bare code or the redirect URL the browser landed on.
func authCode(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "code=") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}

	q := u.Query()
	if got := q.Get("state"); got != "" && got != state {
		return "", errors.New("state mismatch, restart the authorization")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect url has no code")
	}
	return code, nil
}
