package models

import "time"

// BetEvent is a public bet feed entry pushed over the live channel
type BetEvent struct {
	Player   string    `json:"player"`
	Game     string    `json:"game"`
	Amount   FlexFloat `json:"amount"`
	Currency string    `json:"currency"`
	PlacedAt time.Time `json:"placed_at"`
}

// WinEvent is a public big-win feed entry pushed over the live channel
type WinEvent struct {
	Player     string    `json:"player"`
	Game       string    `json:"game"`
	Amount     FlexFloat `json:"amount"`
	Currency   string    `json:"currency"`
	Multiplier FlexFloat `json:"multiplier"`
	WonAt      time.Time `json:"won_at"`
}

// TransactionPush is a private transaction status update pushed over the
// live channel
type TransactionPush struct {
	ID       FlexID    `json:"id"`
	WalletID FlexID    `json:"wallet_id"`
	Status   string    `json:"status"`
	Amount   FlexFloat `json:"amount"`
	Currency string    `json:"currency"`
}

// FeedEvent is a recorded live feed event persisted by the recorder
type FeedEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind       string    `gorm:"column:kind;size:32;not null;index" json:"kind"`
	Payload    string    `gorm:"column:payload;type:jsonb" json:"payload"`
	ReceivedAt time.Time `gorm:"column:received_at;not null;index" json:"received_at"`
}

func (FeedEvent) TableName() string {
	return "feed_events"
}
