package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	UserID         string          `json:"user_id"`
	Balance        decimal.Decimal `json:"balance"`
	Bonus          decimal.Decimal `json:"bonus"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	Equity         decimal.Decimal `json:"equity"`
	UsedMargin     decimal.Decimal `json:"used_margin"`
	AvailableFunds decimal.Decimal `json:"available_funds"`
	MarginLevel    decimal.Decimal `json:"margin_level"`
	Exposure       decimal.Decimal `json:"exposure"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func NewAccount(userID string, balance decimal.Decimal) Account {
	acc := Account{
		UserID:    userID,
		Balance:   balance,
		Equity:    balance,
		UpdatedAt: time.Now().UTC(),
	}
	acc.AvailableFunds = balance
	return acc
}
