package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/caravelhq/storefront/pkg/observability"
	"github.com/caravelhq/storefront/pkg/scope"
)

// EntityName is the scope-registry name for audit events. Audit rows are
// tenant-scoped (a company sees only its own trail) but never soft-deleted;
// they age out through retention instead.
const EntityName = "audit_events"

// RegisterScope registers the audit entity with the scope registry
func RegisterScope(reg *scope.Registry) {
	reg.MustRegister(scope.Entity{
		Name:         EntityName,
		TenantColumn: "company_id",
	})
}

// DBLogger persists audit events to postgres. Writes happen synchronously;
// the volume here is a handful of events per request at most.
type DBLogger struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewDBLogger creates a database-backed audit logger
func NewDBLogger(db *sql.DB, logger *observability.Logger) *DBLogger {
	return &DBLogger{db: db, logger: logger}
}

// Record implements Logger. Failures are logged, never propagated: an audit
// write must not fail the request it describes.
func (l *DBLogger) Record(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	_, err := l.db.Exec(`
		INSERT INTO audit_events (timestamp, event_type, status, user_id, company_id, request_id, ip_address, message, token_prefix)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, event.Timestamp, event.EventType, event.Status, event.UserID, event.CompanyID,
		event.RequestID, event.IPAddress, event.Message, event.TokenPrefix)
	if err != nil {
		l.logger.WithError(err).WithField("event_type", string(event.EventType)).Error("failed to record audit event")
	}
}

// Store reads the audit trail for the admin API
type Store struct {
	db    *sql.DB
	scope *scope.Registry
}

// NewStore creates an audit read store
func NewStore(db *sql.DB, reg *scope.Registry) *Store {
	return &Store{db: db, scope: reg}
}

// List returns events visible in the caller's tenant scope, newest first
func (s *Store) List(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	clause, args, err := s.scope.Clause(ctx, EntityName, "a", 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT a.id, a.timestamp, a.event_type, a.status, a.user_id, a.company_id,
		       a.request_id, a.ip_address, a.message, a.token_prefix
		FROM audit_events a
		WHERE %s
		ORDER BY a.timestamp DESC
		LIMIT %d
	`, clause, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var userID, companyID sql.NullInt64
		err := rows.Scan(
			&e.ID, &e.Timestamp, &e.EventType, &e.Status, &userID, &companyID,
			&e.RequestID, &e.IPAddress, &e.Message, &e.TokenPrefix,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if userID.Valid {
			id := userID.Int64
			e.UserID = &id
		}
		if companyID.Valid {
			id := companyID.Int64
			e.CompanyID = &id
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// PurgeOlderThan deletes events past the retention window
func (s *Store) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM audit_events WHERE timestamp < $1
	`, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check purge result: %w", err)
	}
	return n, nil
}
