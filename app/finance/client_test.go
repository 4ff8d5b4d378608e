package finance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTgID int64 = 42

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "secret"})
	require.NoError(t, err)
	return client
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: ""})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestGetUserByTelegramID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/users/by-telegram/42", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(User{TelegramID: testTgID, Language: "en", Onboarded: true})
	})

	user, err := client.GetUserByTelegramID(context.Background(), testTgID)
	require.NoError(t, err)
	assert.Equal(t, testTgID, user.TelegramID)
	assert.True(t, user.Onboarded)
}

func TestAPIErrorCarriesStatusAndMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"user not found"}`))
	})

	_, err := client.GetUserByTelegramID(context.Background(), testTgID)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "user not found", apiErr.Message)
}

func TestAPIErrorFallsBackToStatusText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("not json"))
	})

	_, err := client.GetUserByTelegramID(context.Background(), testTgID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), apiErr.Message)
}

func TestParseTransaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/users/by-telegram/42/transactions/parse", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "coffee 4.50", body["text"])

		_ = json.NewEncoder(w).Encode(Transaction{Amount: 4.5, Currency: "EUR", Category: "Food"})
	})

	tx, err := client.ParseTransaction(context.Background(), testTgID, "coffee 4.50")
	require.NoError(t, err)
	assert.InDelta(t, 4.5, tx.Amount, 1e-9)
	assert.Equal(t, "Food", tx.Category)
}

func TestTransactionsQueryEncoding(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "acc-1", q.Get("account_id"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "5", q.Get("per_page"))
		_ = json.NewEncoder(w).Encode(TransactionPage{Page: 2, Pages: 3, Total: 11})
	})

	page, err := client.Transactions(context.Background(), testTgID, TransactionsQuery{
		AccountID: "acc-1",
		Page:      2,
		PerPage:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, page.Total)
}

func TestDeleteTransaction(t *testing.T) {
	id := uuid.New()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/users/by-telegram/42/transactions/"+id.String(), r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteTransaction(context.Background(), testTgID, id))
}

func TestUpdateUserSendsOnlySetFields(t *testing.T) {
	currency := "EUR"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"currency": "EUR"}, body)
		_ = json.NewEncoder(w).Encode(User{TelegramID: testTgID, Currency: currency})
	})

	user, err := client.UpdateUser(context.Background(), testTgID, nil, &currency, nil)
	require.NoError(t, err)
	assert.Equal(t, currency, user.Currency)
}
