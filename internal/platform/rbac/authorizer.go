// Package rbac authorizes role-gated actions. A principal passes a check when
// it holds at least one of the required roles; absence of a role lookup
// capability denies unconditionally.
package rbac

import "context"

// RoleGetter resolves a subject's role-name set. Loaded on demand per
// authorization check, never cached by the authorizer.
type RoleGetter interface {
	GetRoles(ctx context.Context, subjectID string) ([]string, error)
}

// Authorizer checks required-role membership against a role lookup.
type Authorizer struct {
	roles RoleGetter
}

// NewAuthorizer returns an authorizer over the given role lookup. roles may
// be nil; every non-empty check then denies (fail-closed).
func NewAuthorizer(roles RoleGetter) *Authorizer {
	return &Authorizer{roles: roles}
}

// Authorize reports whether subjectID may perform an action requiring one of
// required. An empty required set always passes. Roles are OR-combined: any
// intersection grants. A lookup failure denies and surfaces the error for
// logging; callers must not distinguish the denial from a missing role.
func (a *Authorizer) Authorize(ctx context.Context, subjectID string, required []string) (bool, error) {
	if len(required) == 0 {
		return true, nil
	}
	if a.roles == nil || subjectID == "" {
		return false, nil
	}
	held, err := a.roles.GetRoles(ctx, subjectID)
	if err != nil {
		return false, err
	}
	for _, have := range held {
		for _, want := range required {
			if have == want {
				return true, nil
			}
		}
	}
	return false, nil
}
