package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdulachik/threadbot/internal/store"
)

var credsInput store.Credentials

var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Manage saved credential sets",
}

var credsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a credential set and print its id",
	Long: `Save the four Twitter secrets under a generated id. Values not given as
flags are taken from the TWITTER_* variables.`,
	RunE: runCredsSave,
}

var credsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved credential set with secrets masked",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredsShow,
}

var credsVerifyCmd = &cobra.Command{
	Use:   "verify [id]",
	Short: "Check credentials against the Twitter API",
	Long: `Check a saved credential set, or the TWITTER_* variables when no id is
given, by asking Twitter which account they belong to.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCredsVerify,
}

func init() {
	credsSaveCmd.Flags().StringVar(&credsInput.APIKey, "api-key", "", "API key")
	credsSaveCmd.Flags().StringVar(&credsInput.APISecret, "api-secret", "", "API secret")
	credsSaveCmd.Flags().StringVar(&credsInput.AccessToken, "access-token", "", "Access token")
	credsSaveCmd.Flags().StringVar(&credsInput.AccessTokenSecret, "access-token-secret", "", "Access token secret")

	credsCmd.AddCommand(credsSaveCmd, credsShowCmd, credsVerifyCmd)
	rootCmd.AddCommand(credsCmd)
}

func runCredsSave(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	creds := mergeCredentials(credsInput, a.Config.Twitter)
	id, err := a.Workflow.SaveCredentials(ctx, creds)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runCredsShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	creds, err := a.Workflow.LoadCredentials(ctx, args[0])
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "api key:             %s\n", mask(creds.APIKey))
	fmt.Fprintf(out, "api secret:          %s\n", mask(creds.APISecret))
	fmt.Fprintf(out, "access token:        %s\n", mask(creds.AccessToken))
	fmt.Fprintf(out, "access token secret: %s\n", mask(creds.AccessTokenSecret))
	return nil
}

func runCredsVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var id string
	if len(args) == 1 {
		id = args[0]
	}
	creds, err := resolveCredentials(ctx, a, id)
	if err != nil {
		return err
	}

	account, err := a.NewClient(creds).ValidateCredentials(ctx)
	if err != nil {
		return fmt.Errorf("verify credentials: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Credentials belong to @%s (%s, id %s)\n", account.ScreenName, account.Name, account.ID)
	return nil
}

// mergeCredentials fills empty fields of primary from fallback.
func mergeCredentials(primary, fallback store.Credentials) store.Credentials {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return store.Credentials{
		APIKey:            pick(primary.APIKey, fallback.APIKey),
		APISecret:         pick(primary.APISecret, fallback.APISecret),
		AccessToken:       pick(primary.AccessToken, fallback.AccessToken),
		AccessTokenSecret: pick(primary.AccessTokenSecret, fallback.AccessTokenSecret),
	}
}

// mask keeps the last four characters of a secret.
func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
