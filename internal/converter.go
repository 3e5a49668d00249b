package internal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/tonyluong2025/verp-sub017/pkg/slug"
)

// ErrConverterMismatch marks a path segment a converter cannot parse. The
// route does not match; it is never reported as a failure.
var ErrConverterMismatch = errors.New("converter: segment does not match")

// FormatOptions controls how a value is written back into a URL.
type FormatOptions struct {
	// Slug prefixes record ids with their slugified display name.
	Slug bool
}

// Converter is a typed codec between a URL path segment and a value.
type Converter interface {
	// Regexp matches one raw segment; it must not be anchored.
	Regexp() string
	Parse(ctx context.Context, env Env, raw string) (any, error)
	Format(ctx context.Context, v any, opts FormatOptions) (string, error)
}

// ConverterFactory builds a converter from the arguments written in a route
// pattern, e.g. `model("doc")` yields ["doc"].
type ConverterFactory func(args []string) (Converter, error)

// ConverterRegistry holds the converters available to route patterns.
type ConverterRegistry struct {
	factories map[string]ConverterFactory
	mu        sync.RWMutex
}

// NewConverterRegistry returns a registry with the built-in converters:
// int, signed, string, path, model and models.
func NewConverterRegistry() *ConverterRegistry {
	r := &ConverterRegistry{factories: make(map[string]ConverterFactory)}
	r.Register("int", newIntConverter(false))
	r.Register("signed", newIntConverter(true))
	r.Register("string", newStringConverter)
	r.Register("default", newStringConverter)
	r.Register("path", func([]string) (Converter, error) { return pathConverter{}, nil })
	r.Register("model", newModelConverter)
	r.Register("models", newModelsConverter)
	return r
}

// Register adds or replaces a converter factory.
func (r *ConverterRegistry) Register(name string, f ConverterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build instantiates the named converter.
func (r *ConverterRegistry) Build(name string, args []string) (Converter, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConverter, name)
	}
	return f(args)
}

// Names returns the registered converter names, sorted.
func (r *ConverterRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// parseConverterArgs splits `"doc", min=1` into ["doc", "min=1"].
func parseConverterArgs(s string) []string {
	var (
		args  []string
		cur   strings.Builder
		quote rune
	)
	flush := func() {
		if a := strings.TrimSpace(cur.String()); a != "" {
			args = append(args, a)
		}
		cur.Reset()
	}
	for _, ch := range s {
		switch {
		case quote != 0 && ch == quote:
			quote = 0
		case quote == 0 && (ch == '"' || ch == '\''):
			quote = ch
		case quote == 0 && ch == ',':
			flush()
		default:
			cur.WriteRune(ch)
		}
	}
	flush()
	return args
}

// kwargs separates keyword arguments from positional ones.
func kwargs(args []string) (positional []string, kw map[string]string) {
	kw = make(map[string]string)
	for _, a := range args {
		if k, v, ok := strings.Cut(a, "="); ok {
			kw[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"'`)
			continue
		}
		positional = append(positional, a)
	}
	return positional, kw
}

func mismatch(raw string, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrConverterMismatch, raw, reason)
}

type intConverter struct {
	min, max *int64
	signed   bool
}

func newIntConverter(signed bool) ConverterFactory {
	return func(args []string) (Converter, error) {
		c := intConverter{signed: signed}
		_, kw := kwargs(args)
		for key, dst := range map[string]**int64{"min": &c.min, "max": &c.max} {
			if v, ok := kw[key]; ok {
				n, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: int %s=%q", ErrBadPattern, key, v)
				}
				*dst = &n
			}
		}
		return c, nil
	}
}

func (c intConverter) Regexp() string {
	if c.signed {
		return `-?[0-9]+`
	}
	return `[0-9]+`
}

func (c intConverter) Parse(_ context.Context, _ Env, raw string) (any, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || (!c.signed && n < 0) {
		return nil, mismatch(raw, "not an integer")
	}
	if (c.min != nil && n < *c.min) || (c.max != nil && n > *c.max) {
		return nil, mismatch(raw, "out of range")
	}
	return n, nil
}

func (c intConverter) Format(_ context.Context, v any, _ FormatOptions) (string, error) {
	n, ok := toInt64(v)
	if !ok {
		return "", fmt.Errorf("int converter: cannot format %T", v)
	}
	return strconv.FormatInt(n, 10), nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

type stringConverter struct {
	re string
}

func newStringConverter(args []string) (Converter, error) {
	_, kw := kwargs(args)
	if l, ok := kw["length"]; ok {
		if _, err := strconv.Atoi(l); err != nil {
			return nil, fmt.Errorf("%w: string length=%q", ErrBadPattern, l)
		}
		return stringConverter{re: `[^/]{` + l + `}`}, nil
	}
	lo, hi := kw["minlength"], kw["maxlength"]
	if lo == "" && hi == "" {
		return stringConverter{re: `[^/]+`}, nil
	}
	if lo == "" {
		lo = "1"
	}
	for _, v := range []string{lo, hi} {
		if _, err := strconv.Atoi(v); v != "" && err != nil {
			return nil, fmt.Errorf("%w: string length bound %q", ErrBadPattern, v)
		}
	}
	return stringConverter{re: `[^/]{` + lo + `,` + hi + `}`}, nil
}

func (c stringConverter) Regexp() string { return c.re }

func (stringConverter) Parse(_ context.Context, _ Env, raw string) (any, error) {
	return raw, nil
}

func (stringConverter) Format(_ context.Context, v any, _ FormatOptions) (string, error) {
	return fmt.Sprint(v), nil
}

// pathConverter matches the rest of the URL, slashes included. It is only
// valid as the last placeholder of a pattern.
type pathConverter struct{}

func (pathConverter) Regexp() string { return `.*` }

func (pathConverter) Parse(_ context.Context, _ Env, raw string) (any, error) {
	return raw, nil
}

func (pathConverter) Format(_ context.Context, v any, _ FormatOptions) (string, error) {
	return fmt.Sprint(v), nil
}

// modelPattern matches "slug-id" with a trailing, possibly negative, id,
// and "id-slug" as written by Format.
const modelPattern = `(?:(?:\w{1,2}|\w[A-Za-z0-9_-]+?\w)-)?-?\d+|-?\d+-[A-Za-z0-9_-]*[A-Za-z_][A-Za-z0-9_-]*`

var (
	slugIDRe = regexp.MustCompile(`^(?:(\w{1,2}|\w[A-Za-z0-9_-]+?\w)-)?(-?\d+)$`)
	idSlugRe = regexp.MustCompile(`^(-?\d+)-[A-Za-z0-9_-]*[A-Za-z_][A-Za-z0-9_-]*$`)
)

// recordID extracts the id of a record reference.
func recordID(raw string) (string, bool) {
	if m := slugIDRe.FindStringSubmatch(raw); m != nil {
		return m[2], true
	}
	if m := idSlugRe.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	return "", false
}

type modelConverter struct {
	model string
}

func newModelConverter(args []string) (Converter, error) {
	pos, _ := kwargs(args)
	if len(pos) != 1 || pos[0] == "" {
		return nil, fmt.Errorf("%w: model converter needs a model name", ErrBadPattern)
	}
	return modelConverter{model: pos[0]}, nil
}

func (modelConverter) Regexp() string { return `(?:` + modelPattern + `)` }

func (c modelConverter) Parse(ctx context.Context, env Env, raw string) (any, error) {
	token, ok := recordID(raw)
	if !ok {
		return nil, mismatch(raw, "not a record reference")
	}
	id, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return nil, mismatch(raw, "id out of range")
	}
	if env == nil {
		return nil, ErrNoEnv
	}
	rec := env.Browse(c.model, id)
	if id < 0 {
		// "name--5" is ambiguous: retry as 5 when -5 does not exist.
		existing, err := rec.Exists(ctx)
		if err != nil {
			return nil, err
		}
		if len(existing.IDs()) == 0 {
			rec = env.Browse(c.model, -id)
		}
	}
	return rec, nil
}

func (c modelConverter) Format(ctx context.Context, v any, opts FormatOptions) (string, error) {
	var id int64
	switch rec := v.(type) {
	case Records:
		ids := rec.IDs()
		if len(ids) != 1 {
			return "", fmt.Errorf("model converter: expected one %s record, got %d", c.model, len(ids))
		}
		id = ids[0]
		if opts.Slug {
			name, err := rec.DisplayName(ctx)
			if err != nil {
				return "", err
			}
			if s := slug.Make(name); s != "" {
				return strconv.FormatInt(id, 10) + "-" + s, nil
			}
		}
	default:
		n, ok := toInt64(v)
		if !ok {
			return "", fmt.Errorf("model converter: cannot format %T", v)
		}
		id = n
	}
	return strconv.FormatInt(id, 10), nil
}

type modelsConverter struct {
	model string
}

func newModelsConverter(args []string) (Converter, error) {
	pos, _ := kwargs(args)
	if len(pos) != 1 || pos[0] == "" {
		return nil, fmt.Errorf("%w: models converter needs a model name", ErrBadPattern)
	}
	return modelsConverter{model: pos[0]}, nil
}

func (modelsConverter) Regexp() string { return `[0-9]+(?:,[0-9]+)*` }

func (c modelsConverter) Parse(_ context.Context, env Env, raw string) (any, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id < 0 {
			return nil, mismatch(raw, "not a list of ids")
		}
		ids = append(ids, id)
	}
	if env == nil {
		return nil, ErrNoEnv
	}
	return env.Browse(c.model, ids...), nil
}

func (c modelsConverter) Format(_ context.Context, v any, _ FormatOptions) (string, error) {
	var ids []int64
	switch rec := v.(type) {
	case Records:
		ids = rec.IDs()
	case []int64:
		ids = rec
	default:
		return "", fmt.Errorf("models converter: cannot format %T", v)
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ","), nil
}
