package domain

// ReviewKind names what an approve/reject affordance acts on.
type ReviewKind string

const (
	ReviewTransaction ReviewKind = "tx"
	ReviewLeave       ReviewKind = "leave"
	ReviewMember      ReviewKind = "member"
)

// Review is an optional approve/reject affordance attached to a notice.
type Review struct {
	Kind     ReviewKind
	TargetID int32
}

// Notice is one message for a gang's channel. Delivery is best-effort.
type Notice struct {
	GangID  int32
	Subject string
	Message string
	Review  *Review
}
