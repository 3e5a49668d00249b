// Package slug turns display names into ASCII path segments.
//
//	slug.Make("Café & Restaurant") // "cafe-restaurant"
//	slug.Make("Über Größe", slug.MaxLength(8)) // "uber"
//
// Diacritics are removed through Unicode decomposition; letters without a
// decomposition (ß, ł, ø, æ, ...) are transliterated from a small table.
// Anything else that is not an ASCII letter or digit becomes a separator.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Option configures Make.
type Option func(*options)

type options struct {
	maxLength int
	separator string
}

// MaxLength caps the slug length. Truncation never leaves a trailing
// separator. Zero disables the cap.
func MaxLength(n int) Option {
	return func(o *options) { o.maxLength = n }
}

// Separator sets the word separator. Default: "-".
func Separator(sep string) Option {
	return func(o *options) { o.separator = sep }
}

var transliterate = strings.NewReplacer(
	"ß", "ss", "ẞ", "SS",
	"ł", "l", "Ł", "L",
	"ø", "o", "Ø", "O",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"đ", "d", "Đ", "D",
	"þ", "th", "Þ", "TH",
)

// Make returns the lowercase slug of s.
func Make(s string, opts ...Option) string {
	o := options{separator: "-"}
	for _, opt := range opts {
		opt(&o)
	}

	s = transliterate.Replace(s)
	// Transformers keep state, so a chain is built per call.
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}

	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
			r = unicode.ToLower(r)
		default:
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteString(o.separator)
			pending = false
		}
		b.WriteRune(r)
	}

	out := b.String()
	if o.maxLength > 0 && len(out) > o.maxLength {
		out = strings.TrimRight(out[:o.maxLength], o.separator)
	}
	return out
}
