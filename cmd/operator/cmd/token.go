package cmd

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/withdrawal-settlement/internal/auth"
)

type tokenConfig struct {
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
}

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := env.ParseAs[tokenConfig]()
		if err != nil {
			return err
		}
		subject, err := uuid.Parse(tokenSubject)
		if err != nil {
			return fmt.Errorf("--subject must be a UUID: %w", err)
		}
		tok, err := auth.GenerateToken(subject, auth.Role(tokenRole), cfg.JWTSecret, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "account id for holders, operator id for operators")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleHolder), "holder or operator")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(tokenCmd)
}
