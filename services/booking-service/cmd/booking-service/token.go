package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/zerion/slotbook/services/booking-service/internal/googleauth"
	"github.com/zerion/slotbook/services/booking-service/internal/settings"
	"golang.org/x/oauth2"
)

// newTokenCmd runs the one-off consent flow that writes GOOGLE_TOKEN_FILE.
func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Authorize Google Calendar and Sheets access and store the token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := settings.Load()
			if err != nil {
				return err
			}
			oauthCfg, err := cfg.Google.Secrets().Config()
			if err != nil {
				return err
			}

			state := uuid.NewString()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Open this URL, approve access and paste the code:\n\n%s\n\nCode: ",
				oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

			code, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && code == "" {
				return fmt.Errorf("read code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return errors.New("no authorization code given")
			}

			tok, err := oauthCfg.Exchange(cmd.Context(), code)
			if err != nil {
				return fmt.Errorf("exchange code: %w", err)
			}
			if err := googleauth.SaveToken(cfg.Google.TokenFile, tok); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Fprintf(out, "\nToken saved to %s\n", cfg.Google.TokenFile)
			return nil
		},
	}
}
