package fee

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

func newTestService() *RateService {
	return NewRateService(
		decimal.RequireFromString("0.015"),
		decimal.RequireFromString("0.01"),
		decimal.Zero,
	)
}

func TestEstimate(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		name    string
		channel domain.PaymentChannel
		amount  string
		wantFee string
		wantNet string
	}{
		{"chainA", domain.PaymentChannelChainA, "250", "3.75", "246.25"},
		{"chainA rounds half up", domain.PaymentChannelChainA, "333.30", "5.00", "328.30"},
		{"chainB", domain.PaymentChannelChainB, "1234.56", "12.35", "1222.21"},
		{"bank transfer is free", domain.PaymentChannelBankTransfer, "500", "0", "500"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q, err := svc.Estimate(tc.channel, decimal.RequireFromString(tc.amount))
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tc.wantFee).Equal(q.Fee), "fee: got %s", q.Fee)
			assert.True(t, decimal.RequireFromString(tc.wantNet).Equal(q.NetAmount), "net: got %s", q.NetAmount)
		})
	}
}

func TestEstimate_Errors(t *testing.T) {
	svc := newTestService()

	_, err := svc.Estimate(domain.PaymentChannel("paypal"), decimal.NewFromInt(250))
	assert.ErrorIs(t, err, domain.ErrInvalidChannel)

	_, err = svc.Estimate(domain.PaymentChannelChainA, decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Estimate(domain.PaymentChannelChainA, decimal.RequireFromString("10.005"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}
