// Package audit records security-relevant events: authentication,
// credential rotation, authorization denials, and cross-tenant escape-hatch
// use.
package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeAuthLogout      EventType = "auth.logout"
	EventTypeAuthLogoutAll   EventType = "auth.logout_everywhere"
	EventTypeAuthRefresh     EventType = "auth.refresh"
	EventTypeAuthRefreshFail EventType = "auth.refresh_failed"
	// EventTypeAuthTokenReuse marks a rotated refresh token presented again.
	// Callers see the generic invalid-token error; monitoring sees this.
	EventTypeAuthTokenReuse EventType = "auth.token_reuse"

	EventTypeAuthzDenied           EventType = "authz.access_denied"
	EventTypeAuthzPermissionGrant  EventType = "authz.permission_grant"
	EventTypeAuthzPermissionRevoke EventType = "authz.permission_revoke"
	EventTypeAuthzRoleChange       EventType = "authz.role_change"

	// EventTypeScopeUnscoped records use of the unscoped query escape hatch
	EventTypeScopeUnscoped EventType = "scope.unscoped_access"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	UserID    *int64 `json:"user_id,omitempty"`
	CompanyID *int64 `json:"company_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	Message string `json:"message,omitempty"`
	// TokenPrefix identifies a refresh token in logs without exposing it
	TokenPrefix string `json:"token_prefix,omitempty"`
}

// Logger records audit events. Implementations must never fail the request
// path; recording errors are logged and swallowed.
type Logger interface {
	Record(event Event)
}

// NopLogger discards events; used in tests
type NopLogger struct{}

// Record implements Logger
func (NopLogger) Record(Event) {}
