package roles

import (
	"context"
	"sort"
	"sync"
)

// StaticDirectory keeps role assignments in process memory. It backs the
// in-memory store and tests; production uses the Postgres directory.
type StaticDirectory struct {
	mu    sync.RWMutex
	roles map[string]Role
}

// NewStaticDirectory builds a directory from user id -> role name pairs.
func NewStaticDirectory(seed map[string]string) (*StaticDirectory, error) {
	d := &StaticDirectory{roles: make(map[string]Role, len(seed))}
	for user, name := range seed {
		r, err := Parse(name)
		if err != nil {
			return nil, err
		}
		d.roles[user] = r
	}
	return d, nil
}

func (d *StaticDirectory) RoleOf(_ context.Context, userID string) (Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if r, ok := d.roles[userID]; ok {
		return r, nil
	}
	return Default, nil
}

func (d *StaticDirectory) SetRole(_ context.Context, userID string, r Role) error {
	if _, err := Parse(string(r)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles[userID] = r
	return nil
}

func (d *StaticDirectory) UsersWith(_ context.Context, c Capability) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for u, r := range d.roles {
		if r.Can(c) {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out, nil
}
