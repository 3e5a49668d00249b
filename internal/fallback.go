package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tonyluong2025/verp-sub017/pkg/storage"
)

// FallbackOutcome is the result kind of a fallback resolution.
type FallbackOutcome int

const (
	// FallbackNotFound means the fallback has nothing for the path.
	FallbackNotFound FallbackOutcome = iota
	// FallbackFound means the fallback produced the response.
	FallbackFound
	// FallbackCandidate means the content lives at another URL.
	FallbackCandidate
)

// FallbackResult is an explicit resolution: exactly one of Response (for
// FallbackFound) and Location (for FallbackCandidate) is meaningful.
type FallbackResult struct {
	Response *Response
	Location string
	Code     int
	Outcome  FallbackOutcome
}

// FallbackQuery describes the unrouted request.
type FallbackQuery struct {
	Request *http.Request
	Site    *Site
	Tenant  string
	Path    string
}

// Fallback serves content for paths no route matched. Fallbacks run in
// order inside the not-found translation; the first non-NotFound result
// wins.
type Fallback interface {
	Resolve(ctx context.Context, q FallbackQuery) (FallbackResult, error)
}

// FallbackFunc adapts a function to Fallback.
type FallbackFunc func(ctx context.Context, q FallbackQuery) (FallbackResult, error)

func (f FallbackFunc) Resolve(ctx context.Context, q FallbackQuery) (FallbackResult, error) {
	return f(ctx, q)
}

// RewriteFallback redirects paths listed in the site rewrites.
type RewriteFallback struct{}

func (RewriteFallback) Resolve(_ context.Context, q FallbackQuery) (FallbackResult, error) {
	if q.Site == nil {
		return FallbackResult{}, nil
	}
	rw, ok := q.Site.rewrite(q.Path)
	if !ok {
		return FallbackResult{}, nil
	}
	return FallbackResult{Outcome: FallbackCandidate, Location: rw.To, Code: rw.Code}, nil
}

// AssetStore reads tenant assets. *storage.S3 implements it.
type AssetStore interface {
	Open(ctx context.Context, key, ifNoneMatch string) (*storage.Object, error)
}

// Default asset settings.
const (
	DefaultAssetMaxSize      = 32 << 20
	DefaultAssetCacheControl = "public, max-age=604800"
)

// AssetFallback serves files uploaded for a tenant from object storage,
// honouring If-None-Match.
type AssetFallback struct {
	Store        AssetStore
	CacheControl string
	MaxSize      int64
}

// NewAssetFallback creates an AssetFallback with default limits.
func NewAssetFallback(store AssetStore) *AssetFallback {
	return &AssetFallback{Store: store, MaxSize: DefaultAssetMaxSize, CacheControl: DefaultAssetCacheControl}
}

func (f *AssetFallback) Resolve(ctx context.Context, q FallbackQuery) (FallbackResult, error) {
	method := q.Request.Method
	if f.Store == nil || q.Tenant == "" || (method != http.MethodGet && method != http.MethodHead) {
		return FallbackResult{}, nil
	}
	key, err := storage.Key(q.Tenant, q.Path)
	if err != nil {
		return FallbackResult{}, nil
	}

	inm := q.Request.Header.Get("If-None-Match")
	obj, err := f.Store.Open(ctx, key, inm)
	switch {
	case errors.Is(err, storage.ErrNotModified):
		resp := NewResponse(http.StatusNotModified, "", nil)
		resp.Header.Set("ETag", inm)
		resp.Header.Set("Cache-Control", f.CacheControl)
		return FallbackResult{Outcome: FallbackFound, Response: resp}, nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrAccessDenied):
		return FallbackResult{}, nil
	case err != nil:
		return FallbackResult{}, fmt.Errorf("asset %s: %w", key, err)
	}
	defer obj.Body.Close()

	if obj.Size > f.maxSize() {
		return FallbackResult{}, nil
	}
	body, err := io.ReadAll(io.LimitReader(obj.Body, f.maxSize()+1))
	if err != nil {
		return FallbackResult{}, fmt.Errorf("asset %s: %w", key, errors.Join(storage.ErrReadFailed, err))
	}
	if int64(len(body)) > f.maxSize() {
		return FallbackResult{}, nil
	}

	ct := obj.ContentType
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	resp := NewResponse(http.StatusOK, ct, body)
	if obj.ETag != "" {
		resp.Header.Set("ETag", obj.ETag)
	}
	if !obj.LastModified.IsZero() {
		resp.Header.Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	resp.Header.Set("Cache-Control", f.CacheControl)
	return FallbackResult{Outcome: FallbackFound, Response: resp}, nil
}

func (f *AssetFallback) maxSize() int64 {
	if f.MaxSize <= 0 {
		return DefaultAssetMaxSize
	}
	return f.MaxSize
}
