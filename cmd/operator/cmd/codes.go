package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

type codeView struct {
	Code      string    `json:"code"`
	AccountID uuid.UUID `json:"account_id"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toCodeView(c *domain.WithdrawalCode) codeView {
	return codeView{
		Code:      c.Code,
		AccountID: c.AccountID,
		Amount:    domain.FormatAmount(c.Amount),
		Status:    string(c.Status),
		ExpiresAt: c.ExpiresAt.UTC(),
	}
}

var (
	codeAccount string
	codeAmount  string
	codeValue   string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a withdrawal code for an account and amount",
	Long: `Issue a one-time six digit code bound to the account and exact amount.
Any still-active code for the same account and amount is revoked.`,
	Example: "  operator issue --account 3f0c... --amount 250.00 --operator 9b1e...",
	RunE: func(cmd *cobra.Command, args []string) error {
		opID, err := operatorID()
		if err != nil {
			return err
		}
		accountID, err := uuid.Parse(codeAccount)
		if err != nil {
			return fmt.Errorf("--account must be a UUID: %w", err)
		}
		amount, err := decimal.NewFromString(codeAmount)
		if err != nil || !domain.ValidAmount(amount) {
			return fmt.Errorf("--amount must be positive with at most two decimal places")
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			c, err := a.withdrawals.IssueCode(ctx, accountID, amount, opID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), toCodeView(c))
		})
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an active withdrawal code",
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, err := uuid.Parse(codeAccount)
		if err != nil {
			return fmt.Errorf("--account must be a UUID: %w", err)
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			c, err := a.withdrawals.RevokeCode(ctx, accountID, codeValue)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), toCodeView(c))
		})
	},
}

func init() {
	issueCmd.Flags().StringVar(&codeAccount, "account", "", "account id")
	issueCmd.Flags().StringVar(&codeAmount, "amount", "", "exact withdrawal amount, e.g. 250.00")
	_ = issueCmd.MarkFlagRequired("account")
	_ = issueCmd.MarkFlagRequired("amount")

	revokeCmd.Flags().StringVar(&codeAccount, "account", "", "account id")
	revokeCmd.Flags().StringVar(&codeValue, "code", "", "six digit code")
	_ = revokeCmd.MarkFlagRequired("account")
	_ = revokeCmd.MarkFlagRequired("code")

	rootCmd.AddCommand(issueCmd, revokeCmd)
}
