// Package company derives display names and optional background text
// from company profile URLs.
package company

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var slugRe = regexp.MustCompile(`linkedin\.com/company/([^/?#]+)/?`)

// ExtractName pulls the company slug out of a LinkedIn company URL and
// normalizes it into a display name ("acme-robotics" -> "Acme Robotics").
// Returns false for anything that doesn't look like a company URL;
// malformed input is a normal outcome here, not an error.
func ExtractName(ref string) (string, bool) {
	m := slugRe.FindStringSubmatch(ref)
	if m == nil {
		return "", false
	}
	slug := m[1]
	if decoded, err := url.PathUnescape(slug); err == nil {
		slug = decoded
	}
	// cases.Caser carries state, so build one per call.
	name := cases.Title(language.English).String(strings.ReplaceAll(slug, "-", " "))
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	return name, true
}
