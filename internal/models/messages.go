package models

import "time"

// TrialExpiringMessage публикуется планировщиком, когда пробный период скоро закончится.
type TrialExpiringMessage struct {
	AccountID      int64     `json:"account_id"`
	Email          string    `json:"email"`
	TrialExpiresAt time.Time `json:"trial_expires_at"`
}

// AccountUpgradedMessage публикуется после успешного перехода на VIP.
type AccountUpgradedMessage struct {
	AccountID  int64     `json:"account_id"`
	Email      string    `json:"email"`
	EventID    string    `json:"event_id"`
	UpgradedAt time.Time `json:"upgraded_at"`
}
