package permission

import (
	"fmt"

	"skymarket/internal/domain"
)

type Policy struct {
	name     string
	rules    map[Action][]Permission
	fallback []Permission
}

// NewPolicy builds a policy from an action table. Actions missing from the
// table fall back to fallback, or to AllowAny when fallback is empty.
func NewPolicy(name string, rules map[Action][]Permission, fallback ...Permission) *Policy {
	if len(fallback) == 0 {
		fallback = []Permission{AllowAny}
	}
	return &Policy{name: name, rules: rules, fallback: fallback}
}

func (p *Policy) Name() string { return p.name }

// Required returns the ordered permission units for action.
func (p *Policy) Required(action Action) []Permission {
	if perms, ok := p.rules[action]; ok {
		return perms
	}
	return p.fallback
}

// Authorize evaluates every unit required by action. The first unit that
// denies yields ErrUnauthorized for anonymous callers and ErrForbidden otherwise.
func (p *Policy) Authorize(action Action, caller domain.Caller, res Resource) error {
	for _, perm := range p.Required(action) {
		if perm.Allow(caller, res) {
			continue
		}

		cause := domain.ErrForbidden
		if !caller.IsAuthenticated() {
			cause = domain.ErrUnauthorized
		}
		return &DeniedError{Action: action, Permission: perm.Name(), cause: cause}
	}
	return nil
}

var staffOnly = Any(IsAdmin, IsExecutor)

// AdPolicy is the default ad policy.
func AdPolicy() *Policy {
	managed := []Permission{IsAuthenticated, staffOnly}
	return NewPolicy("default", map[Action][]Permission{
		ActionList:          {IsOwner},
		ActionRetrieve:      {IsAuthenticated},
		ActionCreate:        managed,
		ActionUpdate:        managed,
		ActionPartialUpdate: managed,
		ActionDestroy:       managed,
		ActionMe:            managed,
		ActionUploadImage:   managed,
	})
}

// AuthenticatedAdPolicy lets any signed-in user list, read, create and see
// their own ads, and keeps every other action for admins.
func AuthenticatedAdPolicy() *Policy {
	return NewPolicy("authenticated", map[Action][]Permission{
		ActionList:     {IsAuthenticated},
		ActionRetrieve: {IsAuthenticated},
		ActionCreate:   {IsAuthenticated},
		ActionMe:       {IsAuthenticated},
	}, IsAdmin)
}

func CommentPolicy() *Policy {
	managed := []Permission{IsAuthenticated, staffOnly}
	return NewPolicy("comments", map[Action][]Permission{
		ActionRetrieve:      {IsAuthenticated},
		ActionCreate:        managed,
		ActionUpdate:        managed,
		ActionPartialUpdate: managed,
		ActionDestroy:       managed,
	})
}

// AdPolicyByName resolves the ad policy selected in configuration.
func AdPolicyByName(name string) (*Policy, error) {
	switch name {
	case "", "default":
		return AdPolicy(), nil
	case "authenticated":
		return AuthenticatedAdPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown ad policy %q", name)
	}
}
