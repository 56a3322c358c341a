package memory

import "context"

// Directory is a static role-code to user mapping standing in for the
// external user service. It is read-only after construction.
type Directory struct {
	users map[string][]string
}

// NewDirectory returns a directory seeded with role code -> user IDs.
func NewDirectory(users map[string][]string) *Directory {
	d := &Directory{users: make(map[string][]string, len(users))}
	for role, ids := range users {
		d.users[role] = append([]string(nil), ids...)
	}
	return d
}

// GetUsersByRoleCode returns users in insertion order.
func (d *Directory) GetUsersByRoleCode(_ context.Context, roleCode string) ([]string, error) {
	return append([]string(nil), d.users[roleCode]...), nil
}
