// Package tenant defines the company (tenant) entity and the pure resolver
// that binds an authenticated caller to a single company for the request.
package tenant

import "errors"

var (
	// ErrAmbiguous means the caller belongs to several companies and made no
	// selection. Callers must disambiguate with the tenant header; this is a
	// caller-facing error, never silently defaulted.
	ErrAmbiguous = errors.New("tenant ambiguous: multiple memberships, no selection")

	// ErrMismatch means the requested tenant does not match any of the
	// caller's memberships
	ErrMismatch = errors.New("tenant mismatch: caller is not a member of the requested company")
)

// Header is the optional tenant-selector header
const Header = "X-Company-ID"

// Resolve decides the company a request is scoped to. Pure function, never
// hits the store; all inputs come from the verified token claims and
// already-loaded memberships.
//
// Precedence:
//  1. explicit header naming a company the caller belongs to
//  2. the company embedded in the access token
//  3. the caller's only membership
//
// A platform admin (admin flag, typically zero memberships) resolves to nil,
// meaning unscoped, unless a header pins a specific company. More than one
// membership with no selection fails with ErrAmbiguous.
func Resolve(tokenCompany, headerCompany *int64, memberCompanies []int64, platformAdmin bool) (*int64, error) {
	isMember := func(id int64) bool {
		for _, c := range memberCompanies {
			if c == id {
				return true
			}
		}
		return false
	}

	if headerCompany != nil {
		if platformAdmin || isMember(*headerCompany) {
			id := *headerCompany
			return &id, nil
		}
		return nil, ErrMismatch
	}

	if tokenCompany != nil {
		if platformAdmin || isMember(*tokenCompany) {
			id := *tokenCompany
			return &id, nil
		}
		return nil, ErrMismatch
	}

	if platformAdmin {
		return nil, nil
	}

	switch len(memberCompanies) {
	case 0:
		return nil, ErrMismatch
	case 1:
		id := memberCompanies[0]
		return &id, nil
	default:
		return nil, ErrAmbiguous
	}
}
