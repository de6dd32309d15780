package domain

// TransferSummary reports what completing a server transfer did.
type TransferSummary struct {
	GangID            int32   `json:"gang_id"`
	Departed          int     `json:"departed"`
	Failures          []int32 `json:"failures,omitempty"` // member ids whose departure failed
	TransactionsWiped int64   `json:"transactions_wiped"`
	SessionsWiped     int64   `json:"sessions_wiped"`
	LeavesWiped       int64   `json:"leaves_wiped"`
	NoOp              bool    `json:"no_op"`
}
