package entity

import "time"

// QuotaState is the per-user ledger row. It never expires.
type QuotaState struct {
	UserID       string    `json:"user_id"`
	Tier         Tier      `json:"tier"`
	MonthlyCount int       `json:"monthly_count"`
	ResetAt      time.Time `json:"reset_at"`
	BasicCredits int       `json:"basic_credits"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewQuotaState is the lazily materialized default for an unseen user.
func NewQuotaState(userID string, now time.Time) QuotaState {
	now = now.UTC()
	return QuotaState{
		UserID:    userID,
		Tier:      TierFree,
		ResetAt:   NextMonthStart(now),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
	Remaining int       `json:"remaining"`
	Tier      Tier      `json:"tier"`
	ResetAt   time.Time `json:"reset_at"`
}

// Usage is the quota read returned to clients.
type Usage struct {
	Tier         Tier      `json:"tier"`
	Used         int       `json:"used"`
	Limit        int       `json:"limit"`
	Remaining    int       `json:"remaining"`
	BasicCredits int       `json:"basic_credits"`
	ResetAt      time.Time `json:"reset_date"`
}

// Generation is one persisted history entry.
type Generation struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	JobID      string    `json:"job_id"`
	Prompt     string    `json:"prompt"`
	Length     Length    `json:"length"`
	VideoURL   string    `json:"video_url"`
	StorageKey string    `json:"storage_key,omitempty"`
	Code       string    `json:"code"`
	CreatedAt  time.Time `json:"created_at"`
}
