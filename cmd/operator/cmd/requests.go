package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

type requestView struct {
	ID             uuid.UUID          `json:"id"`
	AccountID      uuid.UUID          `json:"account_id"`
	Amount         string             `json:"amount"`
	FeeEstimate    string             `json:"fee_estimate"`
	PaymentChannel string             `json:"payment_channel"`
	Destination    domain.Destination `json:"destination"`
	Status         string             `json:"status"`
	RedeemedCode   *string            `json:"redeemed_code,omitempty"`
	DecidedBy      *uuid.UUID         `json:"decided_by,omitempty"`
	DeclineReason  *string            `json:"decline_reason,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	SettledAt      *time.Time         `json:"settled_at,omitempty"`
	Events         []eventView        `json:"events,omitempty"`
}

type eventView struct {
	EventType string          `json:"event_type"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toRequestView(wr *domain.WithdrawalRequest) requestView {
	return requestView{
		ID:             wr.ID,
		AccountID:      wr.AccountID,
		Amount:         domain.FormatAmount(wr.Amount),
		FeeEstimate:    domain.FormatAmount(wr.FeeEstimate),
		PaymentChannel: string(wr.PaymentChannel),
		Destination:    wr.Destination,
		Status:         string(wr.Status),
		RedeemedCode:   wr.RedeemedCode,
		DecidedBy:      wr.DecidedBy,
		DeclineReason:  wr.DeclineReason,
		CreatedAt:      wr.CreatedAt.UTC(),
		SettledAt:      wr.SettledAt,
	}
}

var (
	listStatus    string
	listLimit     int
	declineReason string
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List withdrawal requests awaiting a decision, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status := domain.RequestStatus(listStatus)
		return withApp(cmd, func(ctx context.Context, a *app) error {
			rs, err := a.withdrawals.ListByStatus(ctx, status, listLimit, 0)
			if err != nil {
				return err
			}
			out := make([]requestView, 0, len(rs))
			for i := range rs {
				out = append(out, toRequestView(&rs[i]))
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "Show a withdrawal request and its event history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		requestID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("request id must be a UUID: %w", err)
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			wr, err := a.withdrawals.GetRequest(ctx, requestID)
			if err != nil {
				return err
			}
			events, err := a.withdrawals.History(ctx, requestID)
			if err != nil {
				return err
			}
			v := toRequestView(wr)
			for _, e := range events {
				v.Events = append(v.Events, eventView{
					EventType: string(e.EventType),
					Actor:     e.Actor,
					Payload:   e.Payload,
					CreatedAt: e.CreatedAt.UTC(),
				})
			}
			return printJSON(cmd.OutOrStdout(), v)
		})
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <request-id>",
	Short: "Confirm a Pending withdrawal request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decide(cmd, args[0], func(ctx context.Context, a *app, requestID, opID uuid.UUID) (*domain.WithdrawalRequest, error) {
			return a.withdrawals.Confirm(ctx, requestID, opID)
		})
	},
}

var declineCmd = &cobra.Command{
	Use:   "decline <request-id>",
	Short: "Decline a Pending withdrawal request and credit the amount back",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decide(cmd, args[0], func(ctx context.Context, a *app, requestID, opID uuid.UUID) (*domain.WithdrawalRequest, error) {
			return a.withdrawals.Decline(ctx, requestID, opID, declineReason)
		})
	},
}

func decide(cmd *cobra.Command, rawID string, fn func(context.Context, *app, uuid.UUID, uuid.UUID) (*domain.WithdrawalRequest, error)) error {
	opID, err := operatorID()
	if err != nil {
		return err
	}
	requestID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("request id must be a UUID: %w", err)
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		wr, err := fn(ctx, a, requestID, opID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), toRequestView(wr))
	})
}

func init() {
	pendingCmd.Flags().StringVar(&listStatus, "status", string(domain.RequestStatusPending), "Pending, Active or Declined")
	pendingCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum rows")
	declineCmd.Flags().StringVar(&declineReason, "reason", "", "reason shown to the holder")

	rootCmd.AddCommand(pendingCmd, statusCmd, confirmCmd, declineCmd)
}
