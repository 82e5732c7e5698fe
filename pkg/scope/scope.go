// Package scope implements the standing predicate applied to every query
// against tenant-scoped and soft-deletable entities.
//
// Entities register once at process startup. Stores then obtain their WHERE
// clause from the registry instead of writing tenant filters by hand, so a
// query author cannot forget the filter. The tenant half of the predicate is
// late-bound: it reads the resolved tenant from the request context at query
// time, never from process state.
package scope

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/caravelhq/storefront/pkg/contextkeys"
)

var (
	// ErrNoTenantScope is returned when a tenant-scoped entity is queried
	// without any tenant resolution in the context. Queries fail closed:
	// code running outside a request (background jobs) must bind a tenant
	// explicitly or run unscoped through the audited escape hatch.
	ErrNoTenantScope = errors.New("no tenant scope bound to context")

	// ErrEntityNotRegistered is returned for queries against entity types
	// the registry has never seen
	ErrEntityNotRegistered = errors.New("entity not registered with scope registry")
)

// TenantScope is the per-request tenant binding produced by the resolver.
// CompanyID is nil only when Unscoped is true.
type TenantScope struct {
	CompanyID *int64
	Unscoped  bool
}

// WithTenant binds a company to the context
func WithTenant(ctx context.Context, companyID int64) context.Context {
	return contextkeys.WithTenantScope(ctx, TenantScope{CompanyID: &companyID})
}

// WithUnscoped binds an unscoped (all tenants) scope to the context.
// Callers must gate this behind the platform admin permission and record the
// use in the audit trail; it is the only way to read across tenants.
func WithUnscoped(ctx context.Context) context.Context {
	return contextkeys.WithTenantScope(ctx, TenantScope{Unscoped: true})
}

// FromContext returns the tenant scope bound to the context, if any
func FromContext(ctx context.Context) (TenantScope, bool) {
	ts, ok := ctx.Value(contextkeys.TenantScopeKey).(TenantScope)
	return ts, ok
}

// Entity describes how the standing predicate applies to one entity type.
// An empty TenantColumn means the entity is not tenant-scoped; an empty
// SoftDeleteColumn means it is not soft-deletable.
type Entity struct {
	Name             string
	TenantColumn     string
	SoftDeleteColumn string
}

// Registry holds all registered entities. It is populated at startup and
// read-only afterwards, so concurrent queries need no locking.
type Registry struct {
	entities map[string]Entity
	sealed   bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]Entity)}
}

// Register adds an entity. Duplicate names and registration after Seal are
// programming errors surfaced immediately.
func (r *Registry) Register(e Entity) error {
	if r.sealed {
		return fmt.Errorf("registry sealed, cannot register %q", e.Name)
	}
	if e.Name == "" {
		return errors.New("entity name required")
	}
	if e.TenantColumn == "" && e.SoftDeleteColumn == "" {
		return fmt.Errorf("entity %q has neither tenant nor soft-delete column", e.Name)
	}
	if _, dup := r.entities[e.Name]; dup {
		return fmt.Errorf("entity %q already registered", e.Name)
	}
	r.entities[e.Name] = e
	return nil
}

// MustRegister panics on registration failure; used in startup wiring
func (r *Registry) MustRegister(e Entity) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Seal freezes the registry; called once startup registration is complete
func (r *Registry) Seal() {
	r.sealed = true
}

// Clause builds the standing WHERE fragment for an entity. alias prefixes the
// column names ("p" yields "p.is_deleted = FALSE..."), argOffset is the
// placeholder number the fragment may start with ($N). The returned args must
// be appended to the query's argument list in order.
//
// The tenant predicate is evaluated here, per call, from the context:
//   - bound tenant: company_id = $N
//   - unscoped (platform admin / audited exemption): no tenant predicate
//   - no scope in context: ErrNoTenantScope (fail closed)
//
// The soft-delete predicate applies in every case, including unscoped reads.
func (r *Registry) Clause(ctx context.Context, entity, alias string, argOffset int) (string, []interface{}, error) {
	e, ok := r.entities[entity]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrEntityNotRegistered, entity)
	}

	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}

	var conds []string
	var args []interface{}

	if e.SoftDeleteColumn != "" {
		conds = append(conds, fmt.Sprintf("%s%s = FALSE", prefix, e.SoftDeleteColumn))
	}

	if e.TenantColumn != "" {
		ts, ok := FromContext(ctx)
		if !ok {
			return "", nil, fmt.Errorf("%w: entity %s", ErrNoTenantScope, entity)
		}
		if !ts.Unscoped {
			if ts.CompanyID == nil {
				return "", nil, fmt.Errorf("%w: entity %s", ErrNoTenantScope, entity)
			}
			conds = append(conds, fmt.Sprintf("%s%s = $%d", prefix, e.TenantColumn, argOffset))
			args = append(args, *ts.CompanyID)
		}
	}

	if len(conds) == 0 {
		// Soft-delete-free entity read unscoped; nothing to constrain.
		return "TRUE", nil, nil
	}

	return strings.Join(conds, " AND "), args, nil
}

// TenantID returns the bound company for write paths that must stamp rows.
// Unscoped contexts cannot create tenant-owned rows through this helper.
func TenantID(ctx context.Context) (int64, error) {
	ts, ok := FromContext(ctx)
	if !ok || ts.CompanyID == nil {
		return 0, ErrNoTenantScope
	}
	return *ts.CompanyID, nil
}
