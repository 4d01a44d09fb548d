package sources

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TitleFromURL derives a readable title from the last path segment of a URL,
// e.g. ".../hdfc-equity-fund-direct-growth" becomes "Hdfc Equity Fund Direct Growth".
func TitleFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return strings.TrimPrefix(u.Hostname(), "www.")
	}

	last = strings.TrimSuffix(last, ".html")
	last = strings.NewReplacer("-", " ", "_", " ").Replace(last)
	return cases.Title(language.English).String(last)
}
