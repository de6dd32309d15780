package domain

import "time"

type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "SCHEDULED"
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusClosing   SessionStatus = "CLOSING" // claimed by exactly one closer
	SessionStatusClosed    SessionStatus = "CLOSED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

func (s SessionStatus) Terminal() bool {
	return s == SessionStatusClosed || s == SessionStatusCancelled
}

type AttendanceSession struct {
	ID             int32         `json:"id"`
	GangID         int32         `json:"gang_id"`
	Name           string        `json:"name"`
	Status         SessionStatus `json:"status"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	CreatedBy      string        `json:"created_by"`
	ClosingStarted *time.Time    `json:"closing_started,omitempty"`
	ClosedAt       *time.Time    `json:"closed_at,omitempty"`
	CloseFailures  int32         `json:"close_failures"`
	CreatedAt      time.Time     `json:"created_at"`
}

type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLeave   AttendanceStatus = "LEAVE"
)

type AttendanceRecord struct {
	ID                   int32            `json:"id"`
	SessionID            int32            `json:"session_id"`
	GangID               int32            `json:"gang_id"`
	MemberID             int32            `json:"member_id"`
	Status               AttendanceStatus `json:"status"`
	PenaltyAmount        *int64           `json:"penalty_amount,omitempty"`
	PenaltyTransactionID *int32           `json:"penalty_transaction_id,omitempty"`
	RecordedAt           time.Time        `json:"recorded_at"`
}

// CloseSummary reports what a close sweep did.
type CloseSummary struct {
	SessionID int32 `json:"session_id"`
	Present   int   `json:"present"`
	Leave     int   `json:"leave"`
	Absent    int   `json:"absent"`
	Penalized int   `json:"penalized"`
	Failures  int   `json:"failures"`
	NoOp      bool  `json:"no_op"`
}
