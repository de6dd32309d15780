package config

type SecurityLevel int

const (
	SecurityPublic  SecurityLevel = iota // No authentication
	SecurityAccess                       // Access token for a platform account
	SecurityService                      // Service token, acts as the system
)

// RouteSecurityConfig maps named HTTP routes to their required security level
var RouteSecurityConfig = map[string]SecurityLevel{
	"Health": SecurityPublic,

	// Gangs and membership
	"CreateGang":    SecurityAccess,
	"GetGang":       SecurityAccess,
	"ListMembers":   SecurityAccess,
	"RegisterSelf":  SecurityAccess,
	"ReviewMember":  SecurityAccess,
	"SyncRoles":     SecurityAccess,
	"ListAuditLog":  SecurityAccess,
	"MyPermissions": SecurityAccess,

	// Ledger
	"PostTransaction":    SecurityAccess,
	"ListTransactions":   SecurityAccess,
	"SubmitTransaction":  SecurityAccess,
	"ResolveTransaction": SecurityAccess,
	"Reconcile":          SecurityAccess,

	// Attendance
	"CreateSession": SecurityAccess,
	"ListSessions":  SecurityAccess,
	"StartSession":  SecurityAccess,
	"CheckIn":       SecurityAccess,
	"CloseSession":  SecurityAccess,
	"CancelSession": SecurityAccess,
	"ListRecords":   SecurityAccess,

	// Leave
	"RequestLeave": SecurityAccess,
	"ListLeaves":   SecurityAccess,
	"ResolveLeave": SecurityAccess,
	"CancelLeave":  SecurityAccess,

	// Server transfer
	"StartTransfer":    SecurityAccess,
	"ConfirmTransfer":  SecurityAccess,
	"LeaveTransfer":    SecurityAccess,
	"CompleteTransfer": SecurityAccess,
	"CancelTransfer":   SecurityAccess,

	// Operations
	"RunJob": SecurityService,
}

// GetSecurityLevel returns the security level for a named route
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := RouteSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown routes
	return SecurityService
}
