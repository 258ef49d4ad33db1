// Command intakectl is the operator CLI for the intake service: webhook
// audit and replay, and signature tooling for receiving endpoints.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	intakeconfig "github.com/voicetyped/lexintake/config"
)

var (
	serverURL string
	token     string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "intakectl",
	Short: "Operate the matter intake service",
	Long: `intakectl talks to the intake service admin API and signs or verifies
webhook payloads locally.

Server and token default to INTAKE_SERVER_URL and INTAKE_ADMIN_TOKEN.`,
	SilenceUsage: true,
}

func init() {
	_ = godotenv.Load()
	defaults := intakeconfig.CLIFromEnv()

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaults.ServerURL, "Intake service base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaults.Token, "Bearer token for the admin API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	attemptsCmd.AddCommand(attemptsListCmd)
	attemptsCmd.AddCommand(attemptsGetCmd)
	secretCmd.AddCommand(secretGenerateCmd)

	rootCmd.AddCommand(attemptsCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(secretCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() *adminClient {
	return newAdminClient(serverURL, token, timeout)
}
