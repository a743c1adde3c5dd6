package models

import "time"

// CurrencyType distinguishes fiat from crypto currencies
type CurrencyType string

const (
	CurrencyFiat   CurrencyType = "fiat"
	CurrencyCrypto CurrencyType = "crypto"
)

// Currency holds display metadata for a wallet's currency
type Currency struct {
	Code     string       `json:"code"`
	Decimals int          `json:"decimals"`
	Type     CurrencyType `json:"type"`
	Symbol   string       `json:"symbol,omitempty"`
	Name     string       `json:"name,omitempty"`
}

// Wallet is the normalized local representation of a player wallet
type Wallet struct {
	ID            string    `json:"id"`
	Currency      Currency  `json:"currency"`
	Balance       float64   `json:"balance"`
	LockedBalance float64   `json:"locked_balance"`
	IsDefault     bool      `json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
}

// WalletWire is the raw wallet shape from the wallets endpoint
type WalletWire struct {
	ID            FlexID    `json:"id"`
	Currency      Currency  `json:"currency"`
	Balance       FlexFloat `json:"balance"`
	LockedBalance FlexFloat `json:"locked_balance"`
	BonusBalance  FlexFloat `json:"bonus_balance"`
	IsDefault     bool      `json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
}

// Normalize converts a raw wallet into the local representation.
// locked_balance and bonus_balance are the same field under two names.
func (w WalletWire) Normalize() Wallet {
	locked := w.LockedBalance.Float64()
	if locked == 0 {
		locked = w.BonusBalance.Float64()
	}
	return Wallet{
		ID:            w.ID.String(),
		Currency:      w.Currency,
		Balance:       w.Balance.Float64(),
		LockedBalance: locked,
		IsDefault:     w.IsDefault,
		CreatedAt:     w.CreatedAt,
	}
}

// BalancePush is a pushed balance snapshot or delta for a single wallet
type BalancePush struct {
	ID           FlexID    `json:"id"`
	WalletID     FlexID    `json:"wallet_id"`
	Currency     string    `json:"currency"`
	Balance      FlexFloat `json:"balance"`
	BonusBalance FlexFloat `json:"bonus_balance"`
	IsDefault    *bool     `json:"is_default,omitempty"`
}

// Key returns the wallet id carried by the event, under either field name
func (b BalancePush) Key() string {
	if b.ID != "" {
		return b.ID.String()
	}
	return b.WalletID.String()
}

// TotalBalance is the data payload of the total-balance summary endpoint
type TotalBalance struct {
	Total    FlexFloat `json:"total"`
	Currency string    `json:"currency"`
}
