package permissions

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Role is a role name assigned to a membership
type Role string

const (
	RoleCompanyOwner Role = "CompanyOwner"
	RoleEmployee     Role = "Employee"
	RoleCustomer     Role = "Customer"
)

// RoleMap maps each role to its baseline permission set.
// Loaded once at startup and treated as immutable configuration;
// on reload a fresh map is built and swapped atomically.
type RoleMap map[Role][]Permission

// DefaultRoleMap returns the built-in role baselines
func DefaultRoleMap() RoleMap {
	return RoleMap{
		RoleCompanyOwner: {
			PermProductRead, PermProductCreate, PermProductUpdate, PermProductDelete,
			PermCategoryRead, PermCategoryCreate, PermCategoryUpdate, PermCategoryDelete,
			PermOrderRead, PermOrderUpdate, PermOrderDelete,
			PermReviewManage,
			PermMemberInvite, PermMemberRemove, PermMemberUpdateRole, PermPermissionGrant,
			PermCompanyUpdate, PermAuditRead,
		},
		RoleEmployee: {
			PermProductRead, PermProductUpdate,
			PermCategoryRead,
			PermOrderRead, PermOrderUpdate,
		},
		RoleCustomer: {
			PermProductRead,
			PermCategoryRead,
			PermOrderPlace,
		},
	}
}

// Registry holds the active role→permission snapshot.
// Readers always see a complete map; reloads swap the pointer atomically.
type Registry struct {
	snapshot atomic.Pointer[RoleMap]
}

// NewRegistry creates a registry seeded with the given map
func NewRegistry(rm RoleMap) *Registry {
	r := &Registry{}
	r.snapshot.Store(&rm)
	return r
}

// Snapshot returns the current role map. The returned map must not be mutated.
func (r *Registry) Snapshot() RoleMap {
	return *r.snapshot.Load()
}

// Replace swaps in a new role map
func (r *Registry) Replace(rm RoleMap) {
	r.snapshot.Store(&rm)
}

// Known reports whether a role exists in the current snapshot
func (r *Registry) Known(role Role) bool {
	_, ok := r.Snapshot()[role]
	return ok
}

// BaselineFor returns the baseline permissions of a role, nil for unknown roles
func (r *Registry) BaselineFor(role Role) []Permission {
	return r.Snapshot()[role]
}

// roleFile is the YAML shape of a role override file
type roleFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadRoleFile reads a YAML role override file and merges it over the defaults.
// Roles named in the file replace the default baseline wholesale.
func LoadRoleFile(path string) (RoleMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role file: %w", err)
	}

	var rf roleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse role file: %w", err)
	}

	rm := DefaultRoleMap()
	for name, codes := range rf.Roles {
		perms := make([]Permission, 0, len(codes))
		for _, c := range codes {
			perms = append(perms, Permission(c))
		}
		rm[Role(name)] = perms
	}

	return rm, nil
}

// Verify reports every permission code referenced by the role map that is not
// in the catalog. Unknown codes never fail resolution at runtime; this check
// exists so deployments can catch them offline.
func (rm RoleMap) Verify() []Permission {
	var unknown []Permission
	seen := make(map[Permission]struct{})
	for _, perms := range rm {
		for _, p := range perms {
			if IsKnown(p) {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			unknown = append(unknown, p)
		}
	}
	return unknown
}

// Watch reloads the role file whenever it changes, swapping the registry
// snapshot atomically. Returns a stop function. Errors during reload keep the
// previous snapshot and are reported through onError.
func (r *Registry) Watch(path string, onError func(error)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch role file: %w", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				rm, err := LoadRoleFile(path)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				r.Replace(rm)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
