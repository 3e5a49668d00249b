package internal_test

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonyluong2025/verp-sub017/internal"
	"github.com/tonyluong2025/verp-sub017/pkg/session/filestore"
)

var errCursorEnded = errors.New("cursor already ended")

type fakeCursor struct {
	mu        sync.Mutex
	commitErr error
	commits   int
	rollbacks int
	closes    int
	readonly  bool
}

func (c *fakeCursor) Commit(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commits+c.rollbacks > 0 {
		return errCursorEnded
	}
	if c.commitErr != nil {
		return c.commitErr
	}
	c.commits++
	return nil
}

func (c *fakeCursor) Rollback(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commits+c.rollbacks > 0 {
		return errCursorEnded
	}
	c.rollbacks++
	return nil
}

func (c *fakeCursor) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeCursor) counts() (commits, rollbacks, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits, c.rollbacks, c.closes
}

// fakeRegistry hands out counting cursors over an in-memory record set.
type fakeRegistry struct {
	mu       sync.Mutex
	records  map[string]map[int64]string // model -> id -> display name
	cursors  []*fakeCursor
	beginErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{records: make(map[string]map[int64]string)}
}

func (r *fakeRegistry) add(model string, id int64, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records[model] == nil {
		r.records[model] = make(map[int64]string)
	}
	r.records[model][id] = name
}

func (r *fakeRegistry) Begin(_ context.Context, _ string, readonly bool) (internal.Cursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beginErr != nil {
		return nil, r.beginErr
	}
	cr := &fakeCursor{readonly: readonly}
	r.cursors = append(r.cursors, cr)
	return cr, nil
}

func (r *fakeRegistry) Env(cr internal.Cursor, tenant string, uid int64, ctx map[string]any) internal.Env {
	return &fakeEnv{registry: r, cursor: cr, tenant: tenant, uid: uid, context: ctx}
}

func (r *fakeRegistry) cursor(i int) *fakeCursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursors[i]
}

func (r *fakeRegistry) cursorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cursors)
}

type fakeEnv struct {
	registry *fakeRegistry
	cursor   internal.Cursor
	context  map[string]any
	tenant   string
	uid      int64
}

func (e *fakeEnv) Tenant() string             { return e.tenant }
func (e *fakeEnv) UID() int64                 { return e.uid }
func (e *fakeEnv) Context() map[string]any    { return maps.Clone(e.context) }
func (e *fakeEnv) Cursor() internal.Cursor    { return e.cursor }
func (e *fakeEnv) Browse(model string, ids ...int64) internal.Records {
	return &fakeRecords{env: e, model: model, ids: ids}
}

type fakeRecords struct {
	env   *fakeEnv
	model string
	ids   []int64
}

func (r *fakeRecords) Model() string  { return r.model }
func (r *fakeRecords) IDs() []int64   { return slices.Clone(r.ids) }
func (r *fakeRecords) Env() *fakeEnv  { return r.env }

func (r *fakeRecords) Exists(context.Context) (internal.Records, error) {
	reg := r.env.registry
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var ids []int64
	for _, id := range r.ids {
		if _, ok := reg.records[r.model][id]; ok {
			ids = append(ids, id)
		}
	}
	return &fakeRecords{env: r.env, model: r.model, ids: ids}, nil
}

func (r *fakeRecords) DisplayName(context.Context) (string, error) {
	if len(r.ids) == 0 {
		return "", nil
	}
	reg := r.env.registry
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.records[r.model][r.ids[0]], nil
}

func (r *fakeRecords) WithEnv(env internal.Env) internal.Records {
	fe, ok := env.(*fakeEnv)
	if !ok {
		return r
	}
	return &fakeRecords{env: fe, model: r.model, ids: r.ids}
}

type fakeUser struct {
	password string
	token    string
	uid      int64
}

// fakeDirectory authenticates against a fixed user table.
type fakeDirectory struct {
	mu     sync.Mutex
	users  map[string]*fakeUser
	public int64
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		public: 4,
		users: map[string]*fakeUser{
			"admin": {uid: 2, password: "admin", token: "tok-admin"},
		},
	}
}

func (d *fakeDirectory) SessionToken(_ context.Context, _ internal.Env, uid int64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.uid == uid {
			return u.token, nil
		}
	}
	return "", nil
}

func (d *fakeDirectory) PublicUser(context.Context, internal.Env) (int64, error) {
	return d.public, nil
}

func (d *fakeDirectory) Authenticate(_ context.Context, _ internal.Env, login, password string) (int64, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[login]
	if !ok || u.password != password {
		return 0, "", internal.ErrForbidden("Wrong login/password")
	}
	return u.uid, u.token, nil
}

func (d *fakeDirectory) setToken(login, token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[login].token = token
}

// testModule declares routes through a function.
type testModule struct {
	routes func(r internal.Registrar)
	name   string
}

func (m testModule) Name() string                 { return m.name }
func (m testModule) Routes(r internal.Registrar) { m.routes(r) }

type testEngine struct {
	app       *internal.App
	registry  *fakeRegistry
	directory *fakeDirectory
}

func newTestEngine(t *testing.T, routes func(r internal.Registrar), opts ...internal.Option) *testEngine {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	e := &testEngine{registry: newFakeRegistry(), directory: newFakeDirectory()}
	base := []internal.Option{
		internal.WithModules(testModule{name: "test", routes: routes}),
		internal.WithRegistry(e.registry),
		internal.WithDirectory(e.directory),
		internal.WithDefaultTenant("acme"),
		internal.WithSession(store),
		internal.WithCSRF("test-secret", 0),
	}
	app, err := internal.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	e.app = app
	return e
}

// do serves req and returns the recorded response.
func (e *testEngine) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.app.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEngine) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return e.do(req)
}

func (e *testEngine) postForm(path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return e.do(req)
}

func (e *testEngine) postJSON(path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return e.do(req)
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
