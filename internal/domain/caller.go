package domain

type Role string

const (
	RoleUser     Role = "user"
	RoleAdmin    Role = "admin"
	RoleExecutor Role = "executor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleExecutor:
		return true
	}
	return false
}

// Caller is the identity a request is made on behalf of.
// The zero value is the anonymous caller.
type Caller struct {
	ID   int64
	Role Role
}

var Anonymous = Caller{}

func (c Caller) IsAuthenticated() bool { return c.ID > 0 }

func (c Caller) IsAdmin() bool { return c.IsAuthenticated() && c.Role == RoleAdmin }

func (c Caller) IsExecutor() bool { return c.IsAuthenticated() && c.Role == RoleExecutor }
