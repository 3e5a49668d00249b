package internal

import (
	"context"
)

// Cursor is a transactional handle. It must end with exactly one Commit or
// Rollback; Close releases it and rolls back if neither happened.
type Cursor interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

// Env is the data session bound to a cursor, a user and a context map.
// The engine opens and closes it but never interprets its contents.
type Env interface {
	Tenant() string
	UID() int64
	Context() map[string]any
	Cursor() Cursor

	// Browse returns a lazy record set of model.
	Browse(model string, ids ...int64) Records
}

// Records is a lazy reference to records of one model.
type Records interface {
	Model() string
	IDs() []int64

	// Exists filters out ids that are not stored.
	Exists(ctx context.Context) (Records, error)

	// DisplayName returns the name of the first record.
	DisplayName(ctx context.Context) (string, error)

	// WithEnv rebinds the records to env.
	WithEnv(env Env) Records
}

// Registry opens cursors and environments for tenants.
type Registry interface {
	Begin(ctx context.Context, tenant string, readonly bool) (Cursor, error)
	Env(cr Cursor, tenant string, uid int64, context map[string]any) Env
}

// Directory answers identity questions for a tenant.
type Directory interface {
	// SessionToken returns the current security token of uid. A token that
	// no longer matches the one stored in a session revokes that session.
	SessionToken(ctx context.Context, env Env, uid int64) (string, error)

	// PublicUser returns the well-known anonymous identity.
	PublicUser(ctx context.Context, env Env) (int64, error)

	// Authenticate checks credentials and returns the user id and token.
	Authenticate(ctx context.Context, env Env, login, password string) (uid int64, token string, err error)
}

// ModuleSource lists the modules installed on a tenant in load order.
type ModuleSource interface {
	ActiveModules(ctx context.Context, tenant string) ([]string, error)
}

// Renderer renders a named template. Rendering happens inside the request
// transaction so failures reach the error translator.
type Renderer interface {
	Render(ctx context.Context, env Env, template string, values map[string]any) ([]byte, error)
}

// TenantLister enumerates the tenant databases served by the process.
type TenantLister interface {
	Databases(ctx context.Context) ([]string, error)
}

// StaticModules is a ModuleSource where every tenant runs the same modules.
type StaticModules []string

func (s StaticModules) ActiveModules(context.Context, string) ([]string, error) {
	return s, nil
}
