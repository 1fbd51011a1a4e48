// Package fee computes the display-only payout fee for a withdrawal
// channel. Fees are never debited.
package fee

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

type Quote struct {
	Channel   domain.PaymentChannel
	Amount    decimal.Decimal
	Rate      decimal.Decimal
	Fee       decimal.Decimal
	NetAmount decimal.Decimal
}

type RateService struct {
	rates map[domain.PaymentChannel]decimal.Decimal
}

func NewRateService(chainA, chainB, bankTransfer decimal.Decimal) *RateService {
	return &RateService{
		rates: map[domain.PaymentChannel]decimal.Decimal{
			domain.PaymentChannelChainA:       chainA,
			domain.PaymentChannelChainB:       chainB,
			domain.PaymentChannelBankTransfer: bankTransfer,
		},
	}
}

func (s *RateService) Rate(channel domain.PaymentChannel) (decimal.Decimal, error) {
	rate, ok := s.rates[channel]
	if !ok {
		return decimal.Zero, fmt.Errorf("Rate: %s: %w", channel, domain.ErrInvalidChannel)
	}
	return rate, nil
}

// Estimate returns round(amount * rate(channel), 2).
func (s *RateService) Estimate(channel domain.PaymentChannel, amount decimal.Decimal) (*Quote, error) {
	if !domain.ValidAmount(amount) {
		return nil, fmt.Errorf("Estimate: %w", domain.ErrInvalidAmount)
	}

	rate, err := s.Rate(channel)
	if err != nil {
		return nil, fmt.Errorf("Estimate: %w", err)
	}

	fee := amount.Mul(rate).Round(domain.AmountPlaces)
	return &Quote{
		Channel:   channel,
		Amount:    amount,
		Rate:      rate,
		Fee:       fee,
		NetAmount: amount.Sub(fee),
	}, nil
}
