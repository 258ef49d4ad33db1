package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/voicetyped/lexintake/pkg/webhook"
)

var (
	signSecret    string
	signPayload   string
	signTimestamp int64
	verifyHeader  string
	verifyMaxAge  time.Duration
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Compute the X-Webhook-Signature header for a payload",
	Long: `Sign prints the signature header a receiver should expect for the given
payload. Use --payload - to read the payload from stdin.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		payload, err := readPayload(cmd.InOrStdin(), signPayload)
		if err != nil {
			return err
		}
		ts := signTimestamp
		if ts == 0 {
			ts = time.Now().Unix()
		}
		fmt.Fprintln(cmd.OutOrStdout(), webhook.Sign(payload, signSecret, ts))
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a received payload against its signature header",
	RunE: func(cmd *cobra.Command, _ []string) error {
		payload, err := readPayload(cmd.InOrStdin(), signPayload)
		if err != nil {
			return err
		}
		if err := webhook.Verify(payload, signSecret, verifyHeader, verifyMaxAge); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "signature valid")
		return nil
	},
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage webhook secrets",
}

var secretGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new webhook secret",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := webhook.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{signCmd, verifyCmd} {
		c.Flags().StringVar(&signSecret, "secret", "", "Team webhook secret (wh_<key>.<data> or plain)")
		c.Flags().StringVar(&signPayload, "payload", "", "Payload text, or - for stdin")
		_ = c.MarkFlagRequired("secret")
		_ = c.MarkFlagRequired("payload")
	}
	signCmd.Flags().Int64Var(&signTimestamp, "timestamp", 0, "Unix timestamp to sign with (default now)")
	verifyCmd.Flags().StringVar(&verifyHeader, "signature", "", "Received X-Webhook-Signature header")
	verifyCmd.Flags().DurationVar(&verifyMaxAge, "tolerance", 5*time.Minute, "Maximum signature age, 0 disables the check")
	_ = verifyCmd.MarkFlagRequired("signature")
}

func readPayload(stdin io.Reader, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read payload from stdin: %w", err)
	}
	return string(b), nil
}
