package models

import "time"

// TransactionType is the normalized transaction category
type TransactionType string

const (
	TransactionDeposit  TransactionType = "deposit"
	TransactionWithdraw TransactionType = "withdraw"
	TransactionBet      TransactionType = "bet"
	TransactionWin      TransactionType = "win"
	TransactionBonus    TransactionType = "bonus"
)

// TransactionStatus is the normalized transaction state
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)

// Transaction is the normalized local representation of a wallet transaction
type Transaction struct {
	ID          string            `json:"id"`
	WalletID    string            `json:"wallet_id"`
	Type        TransactionType   `json:"type"`
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Status      TransactionStatus `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Description string            `json:"description"`
	TxHash      string            `json:"tx_hash,omitempty"`
}

// TransactionWire is the raw transaction shape from the transactions endpoint
type TransactionWire struct {
	ID        FlexID    `json:"id"`
	WalletID  FlexID    `json:"wallet_id"`
	Type      string    `json:"type"`
	Amount    FlexFloat `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	TxHash    string    `json:"tx_hash"`
}
