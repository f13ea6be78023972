package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/relaykit/gmail-relay/internal/authflow"
	"github.com/relaykit/gmail-relay/internal/config"
	"github.com/relaykit/gmail-relay/internal/credstore"
	"github.com/relaykit/gmail-relay/internal/google"
	"github.com/relaykit/gmail-relay/internal/logging"
)

func newAuthorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize",
		Short: "Authorize the Gmail account from the terminal",
		Long: `Authorize the Gmail account without going through the HTTP flow.

Prints the Google consent URL, then reads the authorization code from
stdin. The obtained credentials are persisted to CREDENTIALS_FILE so
that a subsequent 'serve' can send immediately.

Note: the OAuth client's redirect URL must still be reachable by your
browser; copy the 'code' query parameter from the redirect into the
prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg := config.Load()
			if err := cfg.ValidateOAuth(); err != nil {
				return err
			}

			logger := logging.New(cfg.Debug)
			store := credstore.New(cfg.CredentialsFile)
			manager := google.NewManager(cmd.Context(), cfg, store, logger)

			pending := authflow.NewPendingStore(cfg.StateTTL)
			state, err := pending.Create()
			if err != nil {
				return fmt.Errorf("failed to create state token: %w", err)
			}

			fmt.Println("Visit the following URL to authorize the account:")
			fmt.Println()
			fmt.Println(manager.AuthCodeURL(state))
			fmt.Println()
			fmt.Print("Enter the authorization code: ")

			reader := bufio.NewReader(os.Stdin)
			code, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read authorization code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("no authorization code provided")
			}

			if _, err := manager.Exchange(cmd.Context(), code); err != nil {
				return fmt.Errorf("failed to exchange auth code: %w", err)
			}

			fmt.Printf("Credentials saved to %s\n", store.Path())
			return nil
		},
	}
}
