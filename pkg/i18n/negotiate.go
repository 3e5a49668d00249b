package i18n

import "golang.org/x/text/language"

// maxAcceptLanguageLength bounds the header parsed per request.
const maxAcceptLanguageLength = 4096

// Negotiate returns the best language of the set for an Accept-Language
// header. ok is false when nothing in the header matched and the default
// was returned.
func (s *Set) Negotiate(header string) (Lang, bool) {
	if len(header) > maxAcceptLanguageLength {
		header = header[:maxAcceptLanguageLength]
	}
	prefs, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(prefs) == 0 {
		return s.def, false
	}
	_, idx, conf := s.matcher.Match(prefs...)
	if conf == language.No || idx < 0 || idx >= len(s.order) {
		return s.def, false
	}
	return s.langs[s.order[idx]], true
}

// Preferred resolves the visitor's language: an explicit cookie value when
// it names an installed language, else Accept-Language, else the default.
func (s *Set) Preferred(cookie, acceptLanguage string) Lang {
	if l, ok := s.Lookup(cookie); ok {
		return l
	}
	l, _ := s.Negotiate(acceptLanguage)
	return l
}
