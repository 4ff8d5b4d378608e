package finance

import "github.com/google/uuid"

// User is the backend's view of a bot user.
type User struct {
	ID         uuid.UUID `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Language   string    `json:"language"`
	Currency   string    `json:"currency"`
	Onboarded  bool      `json:"onboarded"`
}

// Account is a money account owned by a user.
type Account struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Currency string    `json:"currency"`
	Balance  float64   `json:"balance"`
}

// Category classifies transactions.
type Category struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	// Kind is "expense" or "income".
	Kind string `json:"kind"`
}

// Transaction is a parsed or persisted financial transaction.
type Transaction struct {
	ID         uuid.UUID `json:"id"`
	AccountID  uuid.UUID `json:"account_id"`
	CategoryID uuid.UUID `json:"category_id"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	// Date is the transaction date in YYYY-MM-DD form.
	Date string  `json:"date"`
	Note *string `json:"note,omitempty"`
	// Category and Account are denormalized display names.
	Category string `json:"category,omitempty"`
	Account  string `json:"account,omitempty"`
}

// TransactionsQuery filters and pages the transaction history.
type TransactionsQuery struct {
	// AccountID narrows history to one account; empty means all accounts.
	AccountID string
	Page      int
	PerPage   int
}

// TransactionPage is one page of history.
type TransactionPage struct {
	Items []Transaction `json:"items"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
	Total int           `json:"total"`
}

// StatsQuery selects a stats period anchored at a date.
type StatsQuery struct {
	// AccountID narrows stats to one account; empty means all accounts.
	AccountID string
	// Period is "week", "month", or "year".
	Period string
	// Anchor is any date inside the period, YYYY-MM-DD; empty means today.
	Anchor string
}

// StatsRow is one category's share of a stats period.
type StatsRow struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// Stats summarizes spending for a period.
type Stats struct {
	Period string     `json:"period"`
	From   string     `json:"from"`
	To     string     `json:"to"`
	Total  float64    `json:"total"`
	Rows   []StatsRow `json:"rows"`
}
