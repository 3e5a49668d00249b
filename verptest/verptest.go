// Package verptest provides in-memory data layer doubles for testing
// modules against a real engine.
//
//	reg := verptest.NewRegistry()
//	dir := verptest.NewDirectory(verptest.User{Login: "admin", Password: "admin", UID: 2})
//	app, err := verp.New(
//	    verp.WithModules(myModule),
//	    verp.WithRegistry(reg),
//	    verp.WithDirectory(dir),
//	    verp.WithDefaultTenant("acme"),
//	)
package verptest

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	verp "github.com/tonyluong2025/verp-sub017"
)

// ErrCursorEnded is returned when a cursor is committed or rolled back twice.
var ErrCursorEnded = errors.New("verptest: cursor already ended")

// PublicUID is the uid of the public user.
const PublicUID int64 = 4

// Cursor counts how it was ended.
type Cursor struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
	closes    int
	ReadOnly  bool
}

// Commit implements verp.Cursor.
func (c *Cursor) Commit(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commits+c.rollbacks > 0 {
		return ErrCursorEnded
	}
	c.commits++
	return nil
}

// Rollback implements verp.Cursor.
func (c *Cursor) Rollback(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commits+c.rollbacks > 0 {
		return ErrCursorEnded
	}
	c.rollbacks++
	return nil
}

// Close implements verp.Cursor.
func (c *Cursor) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

// Committed reports whether the cursor was committed.
func (c *Cursor) Committed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits == 1
}

// RolledBack reports whether the cursor was rolled back.
func (c *Cursor) RolledBack() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbacks == 1
}

// Registry hands out counting cursors over an in-memory record set.
type Registry struct {
	mu      sync.Mutex
	records map[string]map[int64]string
	cursors []*Cursor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]map[int64]string)}
}

// Add stores a record of model.
func (r *Registry) Add(model string, id int64, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records[model] == nil {
		r.records[model] = make(map[int64]string)
	}
	r.records[model][id] = name
}

// Begin implements verp.Registry.
func (r *Registry) Begin(_ context.Context, _ string, readonly bool) (verp.Cursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cr := &Cursor{ReadOnly: readonly}
	r.cursors = append(r.cursors, cr)
	return cr, nil
}

// Env implements verp.Registry.
func (r *Registry) Env(cr verp.Cursor, tenant string, uid int64, ctx map[string]any) verp.Env {
	return &env{registry: r, cursor: cr, tenant: tenant, uid: uid, context: ctx}
}

// Cursors returns the cursors opened so far.
func (r *Registry) Cursors() []*Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.cursors)
}

type env struct {
	registry *Registry
	cursor   verp.Cursor
	context  map[string]any
	tenant   string
	uid      int64
}

func (e *env) Tenant() string          { return e.tenant }
func (e *env) UID() int64              { return e.uid }
func (e *env) Context() map[string]any { return maps.Clone(e.context) }
func (e *env) Cursor() verp.Cursor     { return e.cursor }

func (e *env) Browse(model string, ids ...int64) verp.Records {
	return &records{env: e, model: model, ids: ids}
}

type records struct {
	env   *env
	model string
	ids   []int64
}

func (r *records) Model() string { return r.model }
func (r *records) IDs() []int64  { return slices.Clone(r.ids) }

func (r *records) Exists(context.Context) (verp.Records, error) {
	reg := r.env.registry
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var ids []int64
	for _, id := range r.ids {
		if _, ok := reg.records[r.model][id]; ok {
			ids = append(ids, id)
		}
	}
	return &records{env: r.env, model: r.model, ids: ids}, nil
}

func (r *records) DisplayName(context.Context) (string, error) {
	if len(r.ids) == 0 {
		return "", nil
	}
	reg := r.env.registry
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.records[r.model][r.ids[0]], nil
}

func (r *records) WithEnv(e verp.Env) verp.Records {
	if other, ok := e.(*env); ok {
		return &records{env: other, model: r.model, ids: r.ids}
	}
	return r
}

// User is an account known to a Directory.
type User struct {
	Login    string
	Password string
	Token    string
	UID      int64
}

// Directory authenticates against a fixed user table.
type Directory struct {
	mu    sync.Mutex
	users map[string]*User
}

// NewDirectory creates a Directory with users. A user without a token gets
// "tok-" followed by its login.
func NewDirectory(users ...User) *Directory {
	d := &Directory{users: make(map[string]*User, len(users))}
	for _, u := range users {
		if u.Token == "" {
			u.Token = "tok-" + u.Login
		}
		d.users[u.Login] = &u
	}
	return d
}

// SessionToken implements verp.Directory.
func (d *Directory) SessionToken(_ context.Context, _ verp.Env, uid int64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.UID == uid {
			return u.Token, nil
		}
	}
	return "", nil
}

// PublicUser implements verp.Directory.
func (d *Directory) PublicUser(context.Context, verp.Env) (int64, error) {
	return PublicUID, nil
}

// Authenticate implements verp.Directory.
func (d *Directory) Authenticate(_ context.Context, _ verp.Env, login, password string) (int64, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[login]
	if !ok || u.Password != password {
		return 0, "", verp.ErrForbidden("Wrong login/password")
	}
	return u.UID, u.Token, nil
}

// Revoke changes the token of login, invalidating its sessions.
func (d *Directory) Revoke(login string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[login]; ok {
		u.Token += "-revoked"
	}
}
