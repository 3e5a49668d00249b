package internal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	err  error
	seen []string
}

func (r *stubRenderer) Render(_ context.Context, _ Env, template string, _ map[string]any) ([]byte, error) {
	r.seen = append(r.seen, template)
	if r.err != nil {
		return nil, r.err
	}
	return []byte("<p>" + template + "</p>"), nil
}

func TestResponse_ResolveTemplate(t *testing.T) {
	t.Parallel()

	r := &stubRenderer{}
	resp := Render("shop.product", map[string]any{"id": 1})
	require.True(t, resp.IsDeferred())
	require.NoError(t, resp.resolve(context.Background(), r, nil))

	assert.False(t, resp.IsDeferred())
	assert.Equal(t, "<p>shop.product</p>", string(resp.Body))
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, []string{"shop.product"}, r.seen)
}

func TestResponse_ResolveFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	resp := Render("broken", nil)
	err := resp.resolve(context.Background(), &stubRenderer{err: boom}, nil)
	require.ErrorIs(t, err, boom)

	comp := templ.ComponentFunc(func(context.Context, io.Writer) error { return boom })
	err = RenderComponent(http.StatusOK, comp).resolve(context.Background(), nil, nil)
	require.ErrorIs(t, err, boom)
}

func TestResponse_ResolveComponent(t *testing.T) {
	t.Parallel()

	comp := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<h1>hi</h1>")
		return err
	})
	resp := RenderComponent(http.StatusAccepted, comp)
	require.NoError(t, resp.resolve(context.Background(), nil, nil))
	assert.Equal(t, "<h1>hi</h1>", string(resp.Body))
	assert.Equal(t, http.StatusAccepted, resp.Status)
}

func TestResponse_NotModified(t *testing.T) {
	t.Parallel()

	resp := File("image/png", []byte("png-bytes"))
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/img", nil)
	assert.False(t, resp.notModified(req))

	req.Header.Set("If-None-Match", `"other", `+etag)
	assert.True(t, resp.notModified(req))

	req.Header.Set("If-None-Match", "W/"+etag)
	assert.True(t, resp.notModified(req))

	post := httptest.NewRequest(http.MethodPost, "/img", nil)
	post.Header.Set("If-None-Match", etag)
	assert.False(t, resp.notModified(post))
}

func TestCapture(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})
	resp := Capture(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, resp.Status)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "short and stout", string(resp.Body))
}
