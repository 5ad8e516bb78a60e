package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessellate/canvasd/auth"
	"github.com/tessellate/canvasd/config"
	"github.com/tessellate/canvasd/errors"
)

// TokenCmd mints a signed bearer token, mainly for local testing with
// wscat or browser clients.
var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a signed access token",
	Long: `Mint a bearer token signed with the configured secret.

Example:
  canvasd token --user alice --name "Alice Smith" --ttl 24h`,
	RunE: runToken,
}

var (
	tokenUserID string
	tokenName   string
	tokenEmail  string
	tokenTTL    time.Duration
)

func init() {
	TokenCmd.Flags().StringVar(&tokenUserID, "user", "", "User id (required)")
	TokenCmd.Flags().StringVar(&tokenName, "name", "", "Display name (defaults to user id)")
	TokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email address")
	TokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	TokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (set CANVASD_AUTH_JWT_SECRET)")
	}

	name := tokenName
	if name == "" {
		name = tokenUserID
	}

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	token, err := verifier.Generate(tokenUserID, tokenUserID, tokenEmail, name, tokenTTL)
	if err != nil {
		return errors.Wrap(err, "generate token")
	}

	fmt.Println(token)
	return nil
}
