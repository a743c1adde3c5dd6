package wallet

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betfoundry/playerlink/internal/models"
)

func TestTransactions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/wallets/1/transactions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		walletsPayload(t, w, `[
			{"id":101,"wallet_id":"1","type":"topup","amount":"50.00","currency":"USD","status":"confirmed","created_at":"2026-08-01T10:00:00Z"},
			{"id":"102","wallet_id":"1","type":"wager","amount":5,"currency":"USD","status":"nonsense"}
		]`)
	})

	manager := newManager(t, &stubPrefs{}, mux)
	transactions, err := manager.Transactions(context.Background(), "1", 10, 20)
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	assert.Equal(t, "101", transactions[0].ID)
	assert.Equal(t, models.TransactionDeposit, transactions[0].Type)
	assert.Equal(t, models.TransactionCompleted, transactions[0].Status)
	assert.Equal(t, "Deposit of 50.00 USD", transactions[0].Description)

	assert.Equal(t, models.TransactionBet, transactions[1].Type)
	assert.Equal(t, models.TransactionPending, transactions[1].Status, "unknown status defaults to pending")
}

func TestNormalizeTransactionType(t *testing.T) {
	cases := []struct {
		raw    string
		amount float64
		want   models.TransactionType
	}{
		{"deposit", 10, models.TransactionDeposit},
		{"CREDIT", 10, models.TransactionDeposit},
		{"withdrawal", -10, models.TransactionWithdraw},
		{"payout_request", -10, models.TransactionWithdraw},
		{"stake", -5, models.TransactionBet},
		{"payout", 25, models.TransactionWin},
		{"bonus_credit", 5, models.TransactionBonus},
		{"mystery", 3, models.TransactionDeposit},
		{"mystery", -3, models.TransactionWithdraw},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeTransactionType(tc.raw, tc.amount), "type %q amount %v", tc.raw, tc.amount)
	}
}
