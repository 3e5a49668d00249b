// Package i18n models the languages a site is published in and negotiates
// the preferred one from cookies and Accept-Language headers.
//
// A language has a locale code ("fr_FR") and a shorter URL code ("fr")
// used as the path prefix. Either spelling, in any case, resolves to the
// same language; only the URL code is canonical in paths.
package i18n

import (
	"errors"
	"strings"

	"golang.org/x/text/language"
)

var (
	ErrEmptyLanguage   = errors.New("i18n: language code cannot be empty")
	ErrUnknownDefault  = errors.New("i18n: default language is not in the set")
	ErrDuplicateURLKey = errors.New("i18n: duplicate url code")
)

// Lang is one installed language.
type Lang struct {
	Code    string `yaml:"code" json:"code"`         // fr_FR
	URLCode string `yaml:"url_code" json:"url_code"` // fr
	Name    string `yaml:"name" json:"name"`
}

// Normalize returns c with Code in ll_CC form and URLCode defaulted to Code.
func (l Lang) Normalize() Lang {
	l.Code = NormalizeCode(l.Code)
	if l.URLCode == "" {
		l.URLCode = l.Code
	}
	return l
}

// NormalizeCode converts "fr-fr", "FR_fr" and similar spellings to "fr_FR".
func NormalizeCode(code string) string {
	code = strings.ReplaceAll(strings.TrimSpace(code), "-", "_")
	base, region, ok := strings.Cut(code, "_")
	if !ok {
		return strings.ToLower(base)
	}
	return strings.ToLower(base) + "_" + strings.ToUpper(region)
}

// Set is an immutable collection of languages with a default.
type Set struct {
	langs   []Lang
	def     Lang
	byKey   map[string]int // lowercased Code and URLCode
	matcher language.Matcher
	order   []int // matcher index -> langs index
}

// NewSet builds a Set. defaultCode may be either a Code or a URLCode.
func NewSet(defaultCode string, langs ...Lang) (*Set, error) {
	s := &Set{byKey: make(map[string]int, len(langs)*2)}
	tags := make([]language.Tag, 0, len(langs))

	for _, l := range langs {
		if strings.TrimSpace(l.Code) == "" {
			return nil, ErrEmptyLanguage
		}
		l = l.Normalize()
		url := strings.ToLower(l.URLCode)
		if i, ok := s.byKey[url]; ok && s.langs[i].Code != l.Code {
			return nil, errors.Join(ErrDuplicateURLKey, errors.New(l.URLCode))
		}
		idx := len(s.langs)
		s.langs = append(s.langs, l)
		s.byKey[strings.ToLower(l.Code)] = idx
		s.byKey[url] = idx
		tags = append(tags, language.Make(strings.ReplaceAll(l.Code, "_", "-")))
	}

	def, ok := s.Lookup(defaultCode)
	if !ok {
		return nil, ErrUnknownDefault
	}
	s.def = def

	// The default language goes first so it wins when nothing matches.
	defIdx := s.byKey[strings.ToLower(def.Code)]
	ordered := []language.Tag{tags[defIdx]}
	s.order = []int{defIdx}
	for i, tag := range tags {
		if i != defIdx {
			ordered = append(ordered, tag)
			s.order = append(s.order, i)
		}
	}
	s.matcher = language.NewMatcher(ordered)
	return s, nil
}

// Default returns the default language.
func (s *Set) Default() Lang {
	return s.def
}

// All returns the languages in declaration order.
func (s *Set) All() []Lang {
	return append([]Lang(nil), s.langs...)
}

// Lookup finds a language by Code or URLCode, ignoring case and the
// "-"/"_" separator.
func (s *Set) Lookup(code string) (Lang, bool) {
	if code == "" {
		return Lang{}, false
	}
	if i, ok := s.byKey[strings.ToLower(code)]; ok {
		return s.langs[i], true
	}
	if i, ok := s.byKey[strings.ToLower(NormalizeCode(code))]; ok {
		return s.langs[i], true
	}
	return Lang{}, false
}

// IsDefault reports whether l is the default language.
func (s *Set) IsDefault(l Lang) bool {
	return l.Code == s.def.Code
}
