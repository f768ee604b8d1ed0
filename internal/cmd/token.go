package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Misakaka10086/IoT-Platform/internal/stream"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a token for the live stream",
	Long:  "Issue an HS256 token accepted by /ws?token=. Requires stream.jwt_secret.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		v := stream.NewVerifier(cfg.Stream.JWTSecret)
		if v == nil {
			return errors.New("stream.jwt_secret is not set; the stream accepts anonymous clients")
		}
		token, err := v.Issue(subject, ttl)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}

		out := struct {
			Token     string    `json:"token" yaml:"token"`
			Subject   string    `json:"subject" yaml:"subject"`
			ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
		}{Token: token, Subject: subject, ExpiresAt: time.Now().Add(ttl).UTC()}

		return render(cmd.OutOrStdout(), out, func(w io.Writer) {
			fmt.Fprintln(w, token)
		})
	},
}

func init() {
	tokenCmd.Flags().String("subject", "dashboard", "subscriber name carried in the token")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
