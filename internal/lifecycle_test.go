package internal_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyluong2025/verp-sub017/internal"
	"github.com/tonyluong2025/verp-sub017/pkg/i18n"
)

func touchEnv(c internal.Context) error {
	_, err := c.Env()
	return err
}

func TestLifecycle_SuccessCommits(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "ok", func(c internal.Context) (any, error) {
			if err := touchEnv(c); err != nil {
				return nil, err
			}
			return "ok", nil
		}, internal.Routes("/ok"), internal.Auth(internal.AuthPublic))
	})

	rec := e.get("/ok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	require.Equal(t, 1, e.registry.cursorCount())
	commits, rollbacks, closes := e.registry.cursor(0).counts()
	assert.Equal(t, 1, commits)
	assert.Equal(t, 0, rollbacks)
	assert.Equal(t, 1, closes)
}

func TestLifecycle_AccessDeniedRollsBack(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "denied", func(c internal.Context) (any, error) {
			if err := touchEnv(c); err != nil {
				return nil, err
			}
			return nil, internal.ErrForbidden("You are not allowed to do that")
		}, internal.Routes("/denied"), internal.Auth(internal.AuthPublic))
	})

	rec := e.get("/denied")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "You are not allowed to do that")

	commits, rollbacks, closes := e.registry.cursor(0).counts()
	assert.Equal(t, 0, commits)
	assert.Equal(t, 1, rollbacks)
	assert.Equal(t, 1, closes)
}

func TestLifecycle_ReadOnlyRollsBack(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "report", func(c internal.Context) (any, error) {
			return "report", touchEnv(c)
		}, internal.Routes("/report"), internal.Auth(internal.AuthPublic), internal.ReadOnly(true))
	})

	rec := e.get("/report")
	assert.Equal(t, http.StatusOK, rec.Code)

	cr := e.registry.cursor(0)
	assert.True(t, cr.readonly)
	commits, rollbacks, _ := cr.counts()
	assert.Equal(t, 0, commits)
	assert.Equal(t, 1, rollbacks)
}

func TestLifecycle_ModelConverter(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Docs", "show", func(c internal.Context) (any, error) {
			rec, ok := c.Arg("d").(internal.Records)
			if !ok {
				return nil, errors.New("no record")
			}
			name, err := rec.DisplayName(c)
			if err != nil {
				return nil, err
			}
			return map[string]any{"ids": rec.IDs(), "name": name}, nil
		}, internal.Routes(`/x/<model("doc"):d>`), internal.Auth(internal.AuthPublic))
	})
	e.registry.add("doc", 42, "Report")

	rec := e.get("/x/42-report")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Name string  `json:"name"`
		IDs  []int64 `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []int64{42}, body.IDs)
	assert.Equal(t, "Report", body.Name)

	rec = e.get("/x/abc")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLifecycle_UnknownPathRendersErrorPage(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {})

	rec := e.get("/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "404")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestLifecycle_CSRF(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Form", "token", func(c internal.Context) (any, error) {
			return c.CSRFToken(), nil
		}, internal.Routes("/form"), internal.Auth(internal.AuthPublic), internal.Methods(http.MethodGet))
		r.Route("test.Form", "submit", func(c internal.Context) (any, error) {
			if _, ok := c.Params()[internal.CSRFField]; ok {
				return nil, errors.New("csrf token leaked into params")
			}
			return "saved " + c.Param("name").(string), touchEnv(c)
		}, internal.Routes("/form/submit"), internal.Auth(internal.AuthPublic), internal.Methods(http.MethodPost))
		r.Route("test.Form", "private", handlerReturning("private"),
			internal.Routes("/form/private"), internal.Auth(internal.AuthUser), internal.Methods(http.MethodPost))
	})

	rec := e.get("/form")
	require.Equal(t, http.StatusOK, rec.Code)
	token := rec.Body.String()
	sid := findCookie(rec, "session_id")
	require.NotNil(t, sid)

	t.Run("missing token", func(t *testing.T) {
		rec := e.postForm("/form/submit", "name=a", sid)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid CSRF token")
	})

	t.Run("forged token", func(t *testing.T) {
		forged := strings.Replace(token, token[:1], "f", 1)
		if forged == token {
			forged = "0" + token[1:]
		}
		rec := e.postForm("/form/submit", "name=a&csrf_token="+url.QueryEscape(forged), sid)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		rec := e.postForm("/form/submit", "name=a&csrf_token="+url.QueryEscape(token), sid)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "saved a", rec.Body.String())
	})

	t.Run("header token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/form/submit", strings.NewReader("name=b"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set(internal.CSRFHeader, token)
		req.AddCookie(sid)
		rec := e.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("token of another session", func(t *testing.T) {
		rec := e.postForm("/form/submit", "name=a&csrf_token="+url.QueryEscape(token))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("user route without session", func(t *testing.T) {
		rec := e.postForm("/form/private", "name=a")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
	})
}

func TestLifecycle_RetriesSerializationFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "flaky", func(c internal.Context) (any, error) {
			if err := touchEnv(c); err != nil {
				return nil, err
			}
			if calls.Add(1) < 3 {
				return nil, &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
			}
			return "done", nil
		}, internal.Routes("/flaky"), internal.Auth(internal.AuthPublic))
	}, internal.WithRetry(5, time.Millisecond))

	rec := e.get("/flaky")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", rec.Body.String())
	assert.Equal(t, int32(3), calls.Load())

	require.Equal(t, 3, e.registry.cursorCount())
	for i := range 2 {
		commits, rollbacks, closes := e.registry.cursor(i).counts()
		assert.Equal(t, 0, commits, "attempt %d", i)
		assert.Equal(t, 1, rollbacks, "attempt %d", i)
		assert.Equal(t, 1, closes, "attempt %d", i)
	}
	commits, _, _ := e.registry.cursor(2).counts()
	assert.Equal(t, 1, commits)
}

func TestLifecycle_RetryGivesUp(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "busy", func(c internal.Context) (any, error) {
			calls.Add(1)
			return nil, errors.New("busy")
		}, internal.Routes("/busy"), internal.Auth(internal.AuthNone))
	},
		internal.WithRetry(3, time.Millisecond),
		internal.WithRetryIf(func(err error) bool { return err.Error() == "busy" }),
	)

	rec := e.get("/busy")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLifecycle_BusinessErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "invalid", func(c internal.Context) (any, error) {
			calls.Add(1)
			return nil, internal.ErrBadRequest("Amount must be positive")
		}, internal.Routes("/invalid"), internal.Auth(internal.AuthPublic))
	}, internal.WithRetry(5, time.Millisecond))

	rec := e.get("/invalid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLifecycle_SessionExpired(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "private", func(c internal.Context) (any, error) {
			return "secret", nil
		}, internal.Routes("/private"), internal.Auth(internal.AuthUser))
		r.Route("test.Main", "rpc", func(c internal.Context) (any, error) {
			return "secret", nil
		}, internal.Routes("/rpc/private"), internal.Auth(internal.AuthUser), internal.Type(internal.TypeJSON))
	})

	t.Run("http redirects to login", func(t *testing.T) {
		rec := e.get("/private?x=1")
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/web/login?redirect="+url.QueryEscape("/private?x=1"), rec.Header().Get("Location"))
	})

	t.Run("htmx gets a client redirect", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("HX-Request", "true")
		rec := e.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "/web/login?redirect=%2Fprivate", rec.Header().Get("HX-Redirect"))
		assert.Empty(t, rec.Header().Get("Location"))
	})

	t.Run("json gets code 100", func(t *testing.T) {
		rec := e.postJSON("/rpc/private", `{"jsonrpc":"2.0","method":"call","id":7,"params":{}}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			ID    int `json:"id"`
			Error struct {
				Data struct {
					Name string `json:"name"`
				} `json:"data"`
				Message string `json:"message"`
				Code    int    `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 7, body.ID)
		assert.Equal(t, 100, body.Error.Code)
		assert.Equal(t, "Verp Session Expired", body.Error.Message)
		assert.Equal(t, "verp.http.SessionExpiredException", body.Error.Data.Name)
	})
}

func TestLifecycle_LoginAndTokenRevocation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Auth", "login", func(c internal.Context) (any, error) {
			login, _ := c.Param("login").(string)
			password, _ := c.Param("password").(string)
			if err := c.Login(login, password); err != nil {
				return nil, err
			}
			return "welcome", nil
		}, internal.Routes("/login"), internal.Auth(internal.AuthNone), internal.CheckCSRF(false), internal.Methods(http.MethodPost))
		r.Route("test.Auth", "me", func(c internal.Context) (any, error) {
			return map[string]any{"uid": c.UID()}, nil
		}, internal.Routes("/me"), internal.Auth(internal.AuthUser))
	})

	rec := e.postForm("/login", "login=admin&password=wrong")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.postForm("/login", "login=admin&password=admin")
	require.Equal(t, http.StatusOK, rec.Code)
	sid := findCookie(rec, "session_id")
	require.NotNil(t, sid)

	rec = e.get("/me", sid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"uid":2}`, rec.Body.String())

	// A password change rotates the token and revokes the session.
	e.directory.setToken("admin", "tok-changed")
	rec = e.get("/me", sid)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	e.directory.setToken("admin", "tok-admin")
	rec = e.get("/me", sid)
	assert.Equal(t, http.StatusSeeOther, rec.Code, "revoked session must stay logged out")
}

func TestLifecycle_PublicUser(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "whoami", func(c internal.Context) (any, error) {
			env, err := c.Env()
			if err != nil {
				return nil, err
			}
			return map[string]any{"uid": c.UID(), "env_uid": env.UID(), "tenant": env.Tenant()}, nil
		}, internal.Routes("/whoami"), internal.Auth(internal.AuthPublic))
	})

	rec := e.get("/whoami")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"uid":4,"env_uid":4,"tenant":"acme"}`, rec.Body.String())
}

func TestLifecycle_JSONRPC(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.RPC", "echo", func(c internal.Context) (any, error) {
			return c.Param("msg"), nil
		}, internal.Routes("/rpc/echo"), internal.Auth(internal.AuthPublic), internal.Type(internal.TypeJSON))
		r.Route("test.RPC", "nothing", func(c internal.Context) (any, error) {
			return nil, nil
		}, internal.Routes("/rpc/nothing"), internal.Auth(internal.AuthPublic), internal.Type(internal.TypeJSON))
		r.Route("test.RPC", "fail", func(c internal.Context) (any, error) {
			return nil, internal.ErrBadRequest("bad input", internal.WithArguments("bad input"))
		}, internal.Routes("/rpc/fail"), internal.Auth(internal.AuthPublic), internal.Type(internal.TypeJSON))
	})

	rec := e.postJSON("/rpc/echo", `{"jsonrpc":"2.0","method":"call","id":1,"params":{"msg":"hi"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"hi"}`, rec.Body.String())

	rec = e.postJSON("/rpc/nothing", `{"jsonrpc":"2.0","method":"call","id":"a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"a","result":null}`, rec.Body.String())

	rec = e.postJSON("/rpc/fail", `{"jsonrpc":"2.0","method":"call","id":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Error struct {
			Data struct {
				Arguments []any          `json:"arguments"`
				Context   map[string]any `json:"context"`
				Message   string         `json:"message"`
			} `json:"data"`
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 200, body.Error.Code)
	assert.Equal(t, "bad input", body.Error.Data.Message)
	assert.Equal(t, []any{"bad input"}, body.Error.Data.Arguments)
	assert.NotNil(t, body.Error.Data.Context)

	rec = e.postJSON("/rpc/echo", `{"jsonrpc":"2.0","params":[1,2]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestLifecycle_ETag(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Assets", "file", func(c internal.Context) (any, error) {
			return internal.File("text/css", []byte("body{}")), nil
		}, internal.Routes("/asset.css"), internal.Auth(internal.AuthNone))
	})

	rec := e.get("/asset.css")
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/asset.css", nil)
	req.Header.Set("If-None-Match", etag)
	rec = e.do(req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	req = httptest.NewRequest(http.MethodHead, "/asset.css", nil)
	rec = e.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "6", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.Bytes())
}

func TestLifecycle_CORS(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.API", "data", func(c internal.Context) (any, error) {
			calls.Add(1)
			return map[string]any{"ok": true}, nil
		}, internal.Routes("/api/data"), internal.Auth(internal.AuthNone),
			internal.CORS("*"), internal.Methods(http.MethodGet, http.MethodOptions))
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/data", nil)
	req.Header.Set("Origin", "https://other.test")
	rec := e.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, int32(0), calls.Load())

	rec = e.get("/api/data")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestLifecycle_PanicBecomesServerError(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "boom", func(c internal.Context) (any, error) {
			if err := touchEnv(c); err != nil {
				return nil, err
			}
			panic("boom")
		}, internal.Routes("/boom"), internal.Auth(internal.AuthPublic))
	})

	rec := e.get("/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "goroutine", "stack must not leak outside dev mode")

	commits, rollbacks, closes := e.registry.cursor(0).counts()
	assert.Equal(t, 0, commits)
	assert.Equal(t, 1, rollbacks)
	assert.Equal(t, 1, closes)
}

func TestLifecycle_CommitFailure(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "write", func(c internal.Context) (any, error) {
			env, err := c.Env()
			if err != nil {
				return nil, err
			}
			env.Cursor().(*fakeCursor).commitErr = errors.New("disk full")
			return "written", nil
		}, internal.Routes("/write"), internal.Auth(internal.AuthPublic))
	})

	rec := e.get("/write")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "written")
}

func TestLifecycle_NoDatabase(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "version", func(c internal.Context) (any, error) {
			return map[string]any{"tenant": c.Tenant()}, nil
		}, internal.Routes("/version"), internal.Auth(internal.AuthNone))
		r.Route("test.Main", "private", func(c internal.Context) (any, error) {
			return "secret", nil
		}, internal.Routes("/private"), internal.Auth(internal.AuthUser))
	}, internal.WithDefaultTenant(""))

	rec := e.get("/version")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tenant":""}`, rec.Body.String())

	rec = e.get("/private")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, e.registry.cursorCount())
}

func TestLifecycle_HandlerHeadersAndCookies(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "headers", func(c internal.Context) (any, error) {
			c.SetHeader("X-Custom", "yes")
			c.SetCookie("pref", "dark", 3600)
			return "ok", nil
		}, internal.Routes("/headers"), internal.Auth(internal.AuthNone))
	})

	rec := e.get("/headers")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-Custom"))
	c := findCookie(rec, "pref")
	require.NotNil(t, c)
	assert.Equal(t, "dark", c.Value)
}

func TestLifecycle_SaveSessionDisabled(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "stateless", func(c internal.Context) (any, error) {
			c.Session().SetContext("seen", true)
			return "ok", nil
		}, internal.Routes("/stateless"), internal.Auth(internal.AuthNone), internal.SaveSession(false))
	})

	rec := e.get("/stateless")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, findCookie(rec, "session_id"))
}

func websiteEngine(t *testing.T, opts ...internal.Option) *testEngine {
	t.Helper()
	sites, err := internal.NewSites(&internal.Site{
		Name:        "shop",
		Tenant:      "acme",
		DefaultLang: "en_US",
		Languages: []i18n.Lang{
			{Code: "en_US", URLCode: "en", Name: "English"},
			{Code: "fr_FR", URLCode: "fr", Name: "Français"},
		},
		Rewrites: []internal.Rewrite{{From: "/old-page", To: "/page"}},
	})
	require.NoError(t, err)

	routes := func(r internal.Registrar) {
		r.Route("test.Website", "page", func(c internal.Context) (any, error) {
			return "lang=" + c.Lang().Code, nil
		}, internal.Routes("/page"), internal.Auth(internal.AuthPublic), internal.Website(true))
		r.Route("test.Website", "submit", func(c internal.Context) (any, error) {
			return "posted lang=" + c.Lang().Code, nil
		}, internal.Routes("/page/submit"), internal.Auth(internal.AuthPublic), internal.Website(true),
			internal.CheckCSRF(false), internal.Methods(http.MethodPost))
		r.Route("test.Website", "feed", func(c internal.Context) (any, error) {
			return "feed", nil
		}, internal.Routes("/feed"), internal.Auth(internal.AuthPublic), internal.Website(true), internal.Multilang(false))
	}
	return newTestEngine(t, routes, append([]internal.Option{
		internal.WithSites(sites),
		internal.WithFallbacks(internal.RewriteFallback{}),
	}, opts...)...)
}

func TestLifecycle_Canonical(t *testing.T) {
	t.Parallel()

	e := websiteEngine(t)

	t.Run("default language is served unprefixed", func(t *testing.T) {
		rec := e.get("/page")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "lang=en_US", rec.Body.String())
	})

	t.Run("prefix selects the language", func(t *testing.T) {
		rec := e.get("/fr/page")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "lang=fr_FR", rec.Body.String())
		c := findCookie(rec, internal.LangCookie)
		require.NotNil(t, c)
		assert.Equal(t, "fr_FR", c.Value)
	})

	t.Run("default prefix is redirected away", func(t *testing.T) {
		rec := e.get("/en/page?q=1")
		assert.Equal(t, http.StatusMovedPermanently, rec.Code)
		assert.Equal(t, "/page?q=1", rec.Header().Get("Location"))
	})

	t.Run("preferred language redirects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/page", nil)
		req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9")
		rec := e.do(req)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/fr/page", rec.Header().Get("Location"))
	})

	t.Run("bots are not redirected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/page", nil)
		req.Header.Set("Accept-Language", "fr-FR")
		req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1)")
		rec := e.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("language homepage trailing slash", func(t *testing.T) {
		rec := e.get("/fr/")
		assert.Equal(t, http.StatusMovedPermanently, rec.Code)
		assert.Equal(t, "/fr", rec.Header().Get("Location"))
	})

	t.Run("post is rerouted", func(t *testing.T) {
		rec := e.postForm("/fr/page/submit", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "posted lang=fr_FR", rec.Body.String())
	})

	t.Run("monolingual route drops the prefix", func(t *testing.T) {
		rec := e.get("/fr/feed")
		assert.Equal(t, http.StatusMovedPermanently, rec.Code)
		assert.Equal(t, "/feed", rec.Header().Get("Location"))
	})

	t.Run("rewrite fallback", func(t *testing.T) {
		rec := e.get("/old-page")
		assert.Equal(t, http.StatusMovedPermanently, rec.Code)
		assert.Equal(t, "/page", rec.Header().Get("Location"))
	})

	t.Run("unknown page", func(t *testing.T) {
		rec := e.get("/missing")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestLifecycle_Metrics(t *testing.T) {
	t.Parallel()

	m := internal.NewMetrics()
	e := newTestEngine(t, func(r internal.Registrar) {
		r.Route("test.Main", "ok", func(c internal.Context) (any, error) {
			return "ok", nil
		}, internal.Routes("/ok"), internal.Auth(internal.AuthNone))
	}, internal.WithMetrics(m))

	e.get("/ok")
	e.get("/ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "verp_http_requests_total")
	assert.Contains(t, rec.Body.String(), "verp_routing_table_builds_total")
}
