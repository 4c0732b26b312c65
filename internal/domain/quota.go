package domain

import "time"

// DefaultDailyQuota is the number of generations a user may run per
// calendar day unless configured otherwise.
const DefaultDailyQuota = 10

// QuotaRecord tracks one user's generations for the current day. Created
// lazily on the user's first request, reset at the local day boundary,
// never deleted.
type QuotaRecord struct {
	UserID      string    `json:"user_id"`
	DailyLimit  int       `json:"daily_limit"`
	UsedToday   int       `json:"used_today"`
	LastResetAt time.Time `json:"last_reset_at"`
}

// Remaining reports how many generations the user has left today.
func (q QuotaRecord) Remaining() int {
	if q.UsedToday >= q.DailyLimit {
		return 0
	}
	return q.DailyLimit - q.UsedToday
}
