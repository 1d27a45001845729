package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// GenerationType distinguishes image and video generations.
type GenerationType string

const (
	TypeImage GenerationType = "image"
	TypeVideo GenerationType = "video"
)

// Role controls access to the administrative surface.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Settings is the serializable configuration snapshot of one generation.
// No binary payloads; reference images travel as provider upload UUIDs.
type Settings struct {
	Quality          string   `json:"quality,omitempty"`      // image: 1K, 2K, 4K
	AspectRatio      string   `json:"aspect_ratio,omitempty"` // 1:1, 16:9, ...
	SequentialImages int      `json:"sequential_images,omitempty"`
	DurationSeconds  int      `json:"duration_seconds,omitempty"` // video
	Resolution       string   `json:"resolution,omitempty"`       // video: 720p, 1080p
	ReferenceImages  []string `json:"reference_images,omitempty"`
}

// Bucket returns the configuration bucket used to match cost observations.
// Costs are only comparable within the same quality tier, sequential count
// or duration, so the bucket carries those dimensions.
func (s Settings) Bucket(typ GenerationType) string {
	if typ == TypeVideo {
		return fmt.Sprintf("%ds", s.DurationSeconds)
	}
	count := s.SequentialImages
	if count < 1 {
		count = 1
	}
	quality := s.Quality
	if quality == "" {
		quality = "2K"
	}
	return fmt.Sprintf("%s/x%d", quality, count)
}

// GenerationRequest is a unified generation request across providers.
type GenerationRequest struct {
	Model    string         `json:"model"`
	Type     GenerationType `json:"type"`
	Prompt   string         `json:"prompt"`
	Settings Settings       `json:"settings"`
}

// TaskState is the lifecycle state reported by a generation provider.
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskDone    TaskState = "done"
	TaskFailed  TaskState = "failed"
)

// TaskStatus is one poll result for a submitted generation task.
// ActualCostUSD is optional; providers do not always report cost.
type TaskStatus struct {
	State         TaskState
	ResultURL     string
	ActualCostUSD *float64
	Message       string
}

// Account is the per-user credit document.
//
// Invariant: CreditBalance == TotalCreditsEver - TotalSpentCredits,
// reconstructable by replaying the transaction log from zero.
type Account struct {
	ID                string      `json:"id"`
	Email             string      `json:"email"`
	DisplayName       string      `json:"display_name"`
	Role              Role        `json:"role"`
	CreditBalance     int64       `json:"credit_balance"`
	TotalCreditsEver  int64       `json:"total_credits_ever"`
	TotalSpentCredits int64       `json:"total_spent_credits"`
	StoragePlan       StoragePlan `json:"storage_plan"`
	TxSequence        uint64      `json:"tx_sequence"`
	CreatedAt         time.Time   `json:"created_at"`
	LastActivity      time.Time   `json:"last_activity"`
}

// StoragePlan determines how long generation results are retained.
type StoragePlan struct {
	Tier          string `json:"tier"` // free, plus, pro
	RetentionDays int    `json:"retention_days"`
}

// FreePlan is the plan assigned to accounts on first authentication.
func FreePlan() StoragePlan {
	return StoragePlan{Tier: "free", RetentionDays: 7}
}

// TransactionType classifies ledger mutations.
type TransactionType string

const (
	TxTopUp     TransactionType = "topup"
	TxDeduction TransactionType = "deduction"
)

// Transaction is an immutable record of one ledger mutation. Amount is
// signed: positive for top-ups, negative for deductions. Sequence is
// monotonic per account and breaks wall-clock ties deterministically.
type Transaction struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Type         TransactionType `json:"type"`
	Amount       int64           `json:"amount"`
	Description  string          `json:"description"`
	BalanceAfter int64           `json:"balance_after"`
	Sequence     uint64          `json:"sequence"`
	GenerationID string          `json:"generation_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// CostObservation is one observed provider-side cost in base currency.
type CostObservation struct {
	Model     string         `json:"model"`
	Type      GenerationType `json:"type"`
	Bucket    string         `json:"bucket"`
	Cost      float64        `json:"cost"`
	Timestamp time.Time      `json:"timestamp"`
}

// Charge is a customer-facing price in both currencies. BaseAmount is in
// the base currency (USD-equivalent); DisplayAmount is the rounded-up
// display-currency figure the customer actually pays.
type Charge struct {
	BaseAmount    decimal.Decimal `json:"base_amount"`
	DisplayAmount int64           `json:"display_amount"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
}

// GenerationRecord is one generation attempt logged to an account's history.
type GenerationRecord struct {
	ID           string         `json:"id"`
	AccountID    string         `json:"account_id"`
	Type         GenerationType `json:"type"`
	Model        string         `json:"model"`
	Prompt       string         `json:"prompt"`
	Settings     Settings       `json:"settings"`
	ActualCost   float64        `json:"actual_cost"` // base currency
	CostObserved bool           `json:"cost_observed"`
	Charge       Charge         `json:"charge"`
	Credits      int64          `json:"credits"`
	Unpaid       bool           `json:"unpaid"`
	ResultURL    string         `json:"result_url"`
	TaskID       string         `json:"task_id"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
}
