// Package sanitizer cleans untrusted strings before they are embedded in
// HTML pages, using bluemonday policies.
package sanitizer

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strict *bluemonday.Policy
	basic  *bluemonday.Policy
	once   sync.Once
)

func policies() {
	once.Do(func() {
		strict = bluemonday.StrictPolicy()

		basic = bluemonday.NewPolicy()
		basic.AllowStandardURLs()
		basic.AllowElements("p", "br", "strong", "b", "em", "i", "code", "pre", "ul", "ol", "li")
		basic.AllowAttrs("href").OnElements("a")
		basic.RequireNoFollowOnLinks(true)
	})
}

// Text strips every tag, keeping only the text content. Use it for error
// messages and other plain strings shown to users.
func Text(s string) string {
	policies()
	return strict.Sanitize(s)
}

// HTML keeps basic formatting (paragraphs, emphasis, lists, code, links)
// and drops everything executable.
func HTML(s string) string {
	policies()
	return basic.Sanitize(s)
}
