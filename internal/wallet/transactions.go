package wallet

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/betfoundry/playerlink/internal/models"
)

// Transactions fetches a page of wallet transactions, normalized from the
// backend's raw type and status strings
func (m *Manager) Transactions(ctx context.Context, walletID string, limit, offset int) ([]models.Transaction, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var wires []models.TransactionWire
	path := "/api/v1/wallets/" + url.PathEscape(walletID) + "/transactions"
	if err := m.client.Get(ctx, path, query, &wires); err != nil {
		return nil, err
	}

	transactions := make([]models.Transaction, 0, len(wires))
	for _, wire := range wires {
		transactions = append(transactions, normalizeTransaction(wire))
	}
	return transactions, nil
}

func normalizeTransaction(wire models.TransactionWire) models.Transaction {
	txType := normalizeTransactionType(wire.Type, wire.Amount.Float64())
	return models.Transaction{
		ID:          wire.ID.String(),
		WalletID:    wire.WalletID.String(),
		Type:        txType,
		Amount:      wire.Amount.Float64(),
		Currency:    wire.Currency,
		Status:      normalizeTransactionStatus(wire.Status),
		Timestamp:   wire.CreatedAt,
		Description: describeTransaction(txType, wire.Amount.Float64(), wire.Currency),
		TxHash:      wire.TxHash,
	}
}

func normalizeTransactionType(raw string, amount float64) models.TransactionType {
	switch strings.ToLower(raw) {
	case "deposit", "credit", "topup":
		return models.TransactionDeposit
	case "withdraw", "withdrawal", "debit", "payout_request":
		return models.TransactionWithdraw
	case "bet", "wager", "stake":
		return models.TransactionBet
	case "win", "payout":
		return models.TransactionWin
	case "bonus", "bonus_credit", "promo":
		return models.TransactionBonus
	default:
		// Unrecognized backend types fold into credit or debit by sign
		if amount < 0 {
			return models.TransactionWithdraw
		}
		return models.TransactionDeposit
	}
}

func normalizeTransactionStatus(raw string) models.TransactionStatus {
	switch strings.ToLower(raw) {
	case "completed", "complete", "success", "confirmed":
		return models.TransactionCompleted
	case "failed", "error", "rejected", "declined":
		return models.TransactionFailed
	case "cancelled", "canceled":
		return models.TransactionCancelled
	default:
		return models.TransactionPending
	}
}

func describeTransaction(txType models.TransactionType, amount float64, currency string) string {
	label := map[models.TransactionType]string{
		models.TransactionDeposit:  "Deposit",
		models.TransactionWithdraw: "Withdrawal",
		models.TransactionBet:      "Bet",
		models.TransactionWin:      "Win",
		models.TransactionBonus:    "Bonus",
	}[txType]

	return fmt.Sprintf("%s of %.2f %s", label, amount, currency)
}
