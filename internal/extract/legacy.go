package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Legacy markup carries no semantic classes. Fields live in loose
// markup between a recognizable heading and the next breaking element:
// a classed heading or the signature section.

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// isBreaking reports whether a sibling ends the legacy field walk.
func isBreaking(s *goquery.Selection) bool {
	switch goquery.NodeName(s) {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		if class, ok := s.Attr("class"); ok && strings.TrimSpace(class) != "" {
			return true
		}
	}
	return s.Is(signatureSection)
}

// walkUntilBreak collapses every sibling after the heading into a flat
// string, replacing all intervening markup with the delimiter. Inline
// breaks such as <br> become field boundaries this way.
func walkUntilBreak(heading *goquery.Selection, delim string) string {
	var parts []string
	for s := heading.Next(); s.Length() > 0; s = s.Next() {
		if isBreaking(s) {
			break
		}
		raw, err := goquery.OuterHtml(s)
		if err != nil {
			continue
		}
		parts = append(parts, html.UnescapeString(tagPattern.ReplaceAllString(raw, delim)))
	}
	return strings.Join(parts, delim)
}

// collectUntilBreak gathers the serialized HTML of every sibling after
// the heading, stopping at the first breaking element.
func collectUntilBreak(heading *goquery.Selection) string {
	var parts []string
	for s := heading.Next(); s.Length() > 0; s = s.Next() {
		if isBreaking(s) {
			break
		}
		if raw, err := goquery.OuterHtml(s); err == nil {
			parts = append(parts, raw)
		}
	}
	return strings.Join(parts, "")
}

// splitFields breaks a collapsed legacy block into trimmed, non-empty
// fields.
func splitFields(s, delim string) []string {
	var fields []string
	for _, f := range strings.Split(s, delim) {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// normalizePhone strips non-digit characters from both ends of a phone
// field, keeping internal spacing. Short numbers missing an area code
// get the Helsinki "09" prefix. An empty result means the field held no
// phone at all.
func normalizePhone(raw string) string {
	isDigit := func(r rune) bool { return r >= '0' && r <= '9' }
	cleaned := strings.TrimFunc(raw, func(r rune) bool { return !isDigit(r) })
	if cleaned == "" {
		return ""
	}
	digits := 0
	spaced := false
	for _, r := range cleaned {
		switch {
		case isDigit(r):
			digits++
		case r == ' ':
			spaced = true
		}
	}
	if !spaced && digits < 6 {
		return "09 " + cleaned
	}
	return cleaned
}
