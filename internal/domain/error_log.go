package domain

import "time"

// ErrorLogStatus represents whether an operator has handled an entry.
type ErrorLogStatus int

const (
	// ErrorLogUnresolved marks an entry that still needs manual follow-up.
	ErrorLogUnresolved ErrorLogStatus = 0

	// ErrorLogResolved marks an entry an operator has handled.
	ErrorLogResolved ErrorLogStatus = 1
)

// String returns the lower-case status name.
func (s ErrorLogStatus) String() string {
	if s == ErrorLogResolved {
		return "resolved"
	}
	return "unresolved"
}

// ErrorLog is an operator-facing event for a failure that was not
// surfaced to the caller, such as an orphaned object after a failed cleanup.
type ErrorLog struct {
	ID        int64          `json:"id"`
	Content   string         `json:"content"`
	Status    ErrorLogStatus `json:"status"`
	CreatorID int64          `json:"creator_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewErrorLog creates an unresolved ErrorLog entry.
func NewErrorLog(id, creatorID int64, content string) *ErrorLog {
	now := time.Now().UTC()
	return &ErrorLog{
		ID:        id,
		Content:   content,
		Status:    ErrorLogUnresolved,
		CreatorID: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
