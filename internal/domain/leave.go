package domain

import "time"

type LeaveType string

const (
	LeaveTypeFull LeaveType = "FULL"
	LeaveTypeLate LeaveType = "LATE"
)

type LeaveStatus string

const (
	LeaveStatusPending   LeaveStatus = "PENDING"
	LeaveStatusApproved  LeaveStatus = "APPROVED"
	LeaveStatusRejected  LeaveStatus = "REJECTED"
	LeaveStatusCancelled LeaveStatus = "CANCELLED"
)

type LeaveRequest struct {
	ID         int32       `json:"id"`
	GangID     int32       `json:"gang_id"`
	MemberID   int32       `json:"member_id"`
	Type       LeaveType   `json:"type"`
	StartDate  time.Time   `json:"start_date"`
	EndDate    time.Time   `json:"end_date"`
	Reason     string      `json:"reason"`
	Status     LeaveStatus `json:"status"`
	ReviewedBy string      `json:"reviewed_by,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Overlaps reports whether the leave intersects [start, end]. Leave dates are
// whole days, so EndDate covers its entire day.
func (l *LeaveRequest) Overlaps(start, end time.Time) bool {
	return !l.StartDate.After(end) && start.Before(l.EndDate.AddDate(0, 0, 1))
}
