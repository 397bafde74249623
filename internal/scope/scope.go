// Package scope loads the static tenant/session context blob the export
// service requires on every call. The file is read once per process and
// treated as immutable afterwards, so concurrent exports share it without
// locking.
package scope

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Context is the parsed blob plus its serialized form, which is forwarded
// verbatim in request headers.
type Context struct {
	values     map[string]any
	serialized string
}

// String returns the canonical serialized form for the context header.
func (c *Context) String() string { return c.serialized }

// DatabaseID returns the tenant database id, tolerating the upstream's
// alternate key spellings.
func (c *Context) DatabaseID() string {
	return c.lookup("DatabaseId", "database_id", "databaseId")
}

// BranchID returns the branch id under any of its spellings.
func (c *Context) BranchID() string {
	return c.lookup("BranchId", "branch_id", "branchId")
}

// UserID returns the user id under any of its spellings.
func (c *Context) UserID() string {
	return c.lookup("UserId", "user_id", "userId")
}

func (c *Context) lookup(keys ...string) string {
	for _, key := range keys {
		v, ok := c.values[key]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			if s != "" {
				return s
			}
			continue
		}
		return fmt.Sprint(v)
	}
	return ""
}

// Loader reads a context file exactly once and caches the result. The zero
// value is not usable; construct with NewLoader so the path is fixed before
// the first Load.
type Loader struct {
	path string
	once sync.Once
	ctx  *Context
	err  error
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load parses the context file on first call and returns the cached result
// afterwards, including a cached error.
func (l *Loader) Load() (*Context, error) {
	l.once.Do(func() {
		raw, err := os.ReadFile(l.path)
		if err != nil {
			l.err = fmt.Errorf("read context file %s: %w", l.path, err)
			return
		}

		var values map[string]any
		if err := json.Unmarshal(raw, &values); err != nil {
			l.err = fmt.Errorf("context file %s is not valid JSON: %w", l.path, err)
			return
		}

		serialized, err := json.Marshal(values)
		if err != nil {
			l.err = fmt.Errorf("serialize context: %w", err)
			return
		}

		l.ctx = &Context{values: values, serialized: string(serialized)}
	})
	return l.ctx, l.err
}
