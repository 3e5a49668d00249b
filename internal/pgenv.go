package internal

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/tonyluong2025/verp-sub017/pkg/db"
)

// PublicLogin is the login of the anonymous user of public routes.
const PublicLogin = "__public__"

// ErrForeignCursor is returned when a PostgreSQL environment is bound to a
// cursor it did not open.
var ErrForeignCursor = errors.New("cursor was not opened by the postgres registry")

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRegistry serves tenants from PostgreSQL databases of the same name. It
// implements Registry, TenantLister and ModuleSource.
type PGRegistry struct {
	pools *db.Pools
}

// NewPGRegistry creates a registry over pools.
func NewPGRegistry(pools *db.Pools) *PGRegistry {
	return &PGRegistry{pools: pools}
}

// Begin opens a repeatable-read transaction on tenant.
func (r *PGRegistry) Begin(ctx context.Context, tenant string, readonly bool) (Cursor, error) {
	pool, err := r.pools.Get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	cr, err := db.Begin(ctx, pool, readonly)
	if err != nil {
		return nil, err
	}
	return cr, nil
}

// Env binds an environment to a cursor opened by Begin.
func (r *PGRegistry) Env(cr Cursor, tenant string, uid int64, context map[string]any) Env {
	return &pgEnv{cursor: cr, tenant: tenant, uid: uid, context: maps.Clone(context)}
}

// Databases lists the tenant databases on the server.
func (r *PGRegistry) Databases(ctx context.Context) ([]string, error) {
	return r.pools.Databases(ctx)
}

// ActiveModules lists the installed modules of tenant in load order.
func (r *PGRegistry) ActiveModules(ctx context.Context, tenant string) ([]string, error) {
	pool, err := r.pools.Get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx,
		`SELECT name FROM verp_module WHERE state = 'installed' ORDER BY sequence, name`)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

type pgEnv struct {
	cursor  Cursor
	context map[string]any
	tenant  string
	uid     int64
}

func (e *pgEnv) Tenant() string          { return e.tenant }
func (e *pgEnv) UID() int64              { return e.uid }
func (e *pgEnv) Context() map[string]any { return maps.Clone(e.context) }
func (e *pgEnv) Cursor() Cursor          { return e.cursor }

func (e *pgEnv) Browse(model string, ids ...int64) Records {
	return &pgRecords{env: e, model: model, ids: ids}
}

func (e *pgEnv) querier() (querier, error) {
	q, ok := e.cursor.(querier)
	if !ok {
		return nil, ErrForeignCursor
	}
	return q, nil
}

// pgRecords maps model "res.partner" to table res_partner.
type pgRecords struct {
	env   *pgEnv
	model string
	ids   []int64
}

func (r *pgRecords) Model() string { return r.model }

func (r *pgRecords) IDs() []int64 { return append([]int64(nil), r.ids...) }

func (r *pgRecords) table() string {
	return pgx.Identifier{strings.ReplaceAll(r.model, ".", "_")}.Sanitize()
}

func (r *pgRecords) Exists(ctx context.Context) (Records, error) {
	if len(r.ids) == 0 {
		return r, nil
	}
	q, err := r.env.querier()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT id FROM `+r.table()+` WHERE id = ANY($1)`, r.ids)
	if err != nil {
		return nil, fmt.Errorf("exists %s: %w", r.model, err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("exists %s: %w", r.model, err)
	}
	ids := make([]int64, 0, len(found))
	for _, id := range r.ids {
		for _, f := range found {
			if f == id {
				ids = append(ids, id)
				break
			}
		}
	}
	return &pgRecords{env: r.env, model: r.model, ids: ids}, nil
}

func (r *pgRecords) DisplayName(ctx context.Context) (string, error) {
	if len(r.ids) == 0 {
		return "", nil
	}
	q, err := r.env.querier()
	if err != nil {
		return "", err
	}
	var name string
	err = q.QueryRow(ctx, `SELECT name FROM `+r.table()+` WHERE id = $1`, r.ids[0]).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("display name of %s(%d): %w", r.model, r.ids[0], err)
	}
	return name, nil
}

func (r *pgRecords) WithEnv(env Env) Records {
	pe, ok := env.(*pgEnv)
	if !ok {
		return r
	}
	return &pgRecords{env: pe, model: r.model, ids: r.ids}
}

// PGDirectory authenticates users stored in verp_users. Passwords are
// bcrypt hashes checked with pgcrypto; session tokens are an HMAC of the
// hash so a password change revokes every session of the user.
type PGDirectory struct {
	secret string
}

// NewPGDirectory creates a directory. secret keys the session tokens.
func NewPGDirectory(secret string) *PGDirectory {
	return &PGDirectory{secret: secret}
}

func envQuerier(env Env) (querier, error) {
	if env == nil {
		return nil, ErrNoEnv
	}
	q, ok := env.Cursor().(querier)
	if !ok {
		return nil, ErrForeignCursor
	}
	return q, nil
}

func (d *PGDirectory) SessionToken(ctx context.Context, env Env, uid int64) (string, error) {
	q, err := envQuerier(env)
	if err != nil {
		return "", err
	}
	var token string
	err = q.QueryRow(ctx,
		`SELECT encode(hmac(password, $2, 'sha256'), 'hex') FROM verp_users WHERE id = $1 AND active`,
		uid, d.secret).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return token, err
}

func (d *PGDirectory) PublicUser(ctx context.Context, env Env) (int64, error) {
	q, err := envQuerier(env)
	if err != nil {
		return 0, err
	}
	var uid int64
	err = q.QueryRow(ctx, `SELECT id FROM verp_users WHERE login = $1`, PublicLogin).Scan(&uid)
	if err != nil {
		return 0, fmt.Errorf("public user: %w", err)
	}
	return uid, nil
}

func (d *PGDirectory) Authenticate(ctx context.Context, env Env, login, password string) (int64, string, error) {
	if login == "" || login == PublicLogin {
		return 0, "", ErrForbidden("Wrong login/password")
	}
	q, err := envQuerier(env)
	if err != nil {
		return 0, "", err
	}
	var (
		uid   int64
		token string
	)
	err = q.QueryRow(ctx,
		`SELECT id, encode(hmac(password, $3, 'sha256'), 'hex')
		   FROM verp_users
		  WHERE login = $1 AND active AND password = crypt($2, password)`,
		login, password, d.secret).Scan(&uid, &token)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", ErrForbidden("Wrong login/password")
	}
	if err != nil {
		return 0, "", fmt.Errorf("authenticate %s: %w", login, err)
	}
	return uid, token, nil
}
