// Package permission decides whether a caller may run an action on a resource.
//
// A Policy is a static table from action to an ordered list of permission units.
// Every unit in the list must allow the request; units can be combined with Any
// and All to express OR and AND groups.
package permission

import (
	"fmt"
	"strings"

	"skymarket/internal/domain"
)

type Action string

const (
	ActionList          Action = "list"
	ActionRetrieve      Action = "retrieve"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionPartialUpdate Action = "partial_update"
	ActionDestroy       Action = "destroy"
	ActionMe            Action = "me"
	ActionUploadImage   Action = "upload_image"
)

// Resource is the target of an object-level check.
type Resource interface {
	OwnerID() int64
}

// Permission is a named predicate over the caller and an optional target.
// res is nil when the check runs before a single object is known.
type Permission interface {
	Name() string
	Allow(caller domain.Caller, res Resource) bool
}

type unit struct {
	name string
	fn   func(caller domain.Caller, res Resource) bool
}

func (u unit) Name() string { return u.name }

func (u unit) Allow(caller domain.Caller, res Resource) bool { return u.fn(caller, res) }

// New builds a permission unit from a predicate.
func New(name string, fn func(caller domain.Caller, res Resource) bool) Permission {
	return unit{name: name, fn: fn}
}

var (
	AllowAny = New("AllowAny", func(domain.Caller, Resource) bool { return true })

	IsAuthenticated = New("IsAuthenticated", func(caller domain.Caller, _ Resource) bool {
		return caller.IsAuthenticated()
	})

	// IsOwner compares the caller with the target's author. Without a target an
	// anonymous caller owns nothing and any authenticated caller passes.
	IsOwner = New("IsOwner", func(caller domain.Caller, res Resource) bool {
		if !caller.IsAuthenticated() {
			return false
		}
		if res == nil {
			return true
		}
		return res.OwnerID() == caller.ID
	})

	IsAdmin = New("IsAdmin", func(caller domain.Caller, _ Resource) bool {
		return caller.IsAdmin()
	})

	IsExecutor = New("IsExecutor", func(caller domain.Caller, _ Resource) bool {
		return caller.IsExecutor()
	})
)

// Any allows the request when at least one of perms allows it.
func Any(perms ...Permission) Permission {
	return unit{
		name: joinNames(perms, "|"),
		fn: func(caller domain.Caller, res Resource) bool {
			for _, p := range perms {
				if p.Allow(caller, res) {
					return true
				}
			}
			return false
		},
	}
}

// All allows the request only when every one of perms allows it.
func All(perms ...Permission) Permission {
	return unit{
		name: joinNames(perms, "&"),
		fn: func(caller domain.Caller, res Resource) bool {
			for _, p := range perms {
				if !p.Allow(caller, res) {
					return false
				}
			}
			return true
		},
	}
}

func joinNames(perms []Permission, sep string) string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name()
	}
	return "(" + strings.Join(names, sep) + ")"
}

// DeniedError reports which unit rejected a request. It matches
// domain.ErrUnauthorized or domain.ErrForbidden through errors.Is.
type DeniedError struct {
	Action     Action
	Permission string
	cause      error
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s denied by %s: %v", e.Action, e.Permission, e.cause)
}

func (e *DeniedError) Unwrap() error { return e.cause }
