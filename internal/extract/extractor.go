package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Extractor reads structured data out of decision HTML. The remote
// system has produced two generations of markup: the current schema
// wraps content sections in div.SisaltoSektio with semantic class
// markers, the legacy schema carries the same markers unwrapped or,
// at its oldest, nothing but a heading element. Every method tries the
// current schema first and falls back to the legacy one; extraction
// never fails, it only degrades to absent or partial results.
type Extractor struct {
	doc *goquery.Document
}

// MoreInfoDetails is the contact block of a decision.
type MoreInfoDetails struct {
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Signer is one signature on a decision.
type Signer struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

// SisaltoSection is one content section: its heading and the HTML that
// remains once the heading is removed.
type SisaltoSection struct {
	Heading string `json:"heading"`
	HTML    string `json:"html"`
}

// PresenterInfo identifies the official who presented the decision.
type PresenterInfo struct {
	Title string `json:"title,omitempty"`
	Name  string `json:"name,omitempty"`
}

const (
	sectionWrapper   = "div.SisaltoSektio"
	sectionHeading   = "h3.SisaltoOtsikko"
	mainWrapper      = "div.PaatoksenSisalto"
	signatureSection = "div.AllekirjoitusSektio"
)

// Signer roles and their class markers. The remote markup names roles
// in Finnish; the keys here follow it.
var signerRoles = []struct {
	role       string
	nameClass  string
	titleClass string
}{
	{"puheenjohtaja", ".PuheenjohtajaNimi", ".PuheenjohtajaTitteli"},
	{"sihteeri", ".SihteeriNimi", ".SihteeriTitteli"},
}

// New builds an extractor over the given HTML. A nil or empty input
// yields an extractor over an empty document: every method returns an
// absent result.
func New(html *string) *Extractor {
	raw := ""
	if html != nil {
		raw = *html
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		// The net/html parser is lenient; reader errors cannot
		// happen with a string reader, but degrade anyway.
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	return &Extractor{doc: doc}
}

// MainContent returns the decision body HTML: the single current-schema
// wrapper when present, otherwise every legacy content section
// concatenated in document order. Absent when neither matches.
func (e *Extractor) MainContent() *string {
	for _, s := range []func() *string{e.mainContentCurrent, e.mainContentLegacy} {
		if out := s(); out != nil {
			return out
		}
	}
	return nil
}

func (e *Extractor) mainContentCurrent() *string {
	sel := e.doc.Find(mainWrapper).First()
	if sel.Length() == 0 {
		return nil
	}
	out, err := goquery.OuterHtml(sel)
	if err != nil || strings.TrimSpace(out) == "" {
		return nil
	}
	return &out
}

func (e *Extractor) mainContentLegacy() *string {
	var parts []string
	e.doc.Find(sectionWrapper).Each(func(_ int, s *goquery.Selection) {
		if out, err := goquery.OuterHtml(s); err == nil {
			parts = append(parts, out)
		}
	})
	if len(parts) == 0 {
		return nil
	}
	out := strings.Join(parts, "")
	return &out
}

// Signatures maps signer roles to signers. Roles without a name marker
// are absent from the map; when no role matches at all the result is
// nil.
func (e *Extractor) Signatures() map[string]Signer {
	for _, scope := range []*goquery.Selection{e.doc.Find(signatureSection), e.doc.Selection} {
		if scope.Length() == 0 {
			continue
		}
		found := map[string]Signer{}
		for _, r := range signerRoles {
			name := scope.Find(r.nameClass).First()
			if name.Length() == 0 {
				continue
			}
			text := strings.TrimSpace(name.Text())
			if text == "" {
				continue
			}
			signer := Signer{Name: text}
			if title := scope.Find(r.titleClass).First(); title.Length() > 0 {
				signer.Title = capitalize(strings.TrimSpace(title.Text()))
			}
			found[r.role] = signer
		}
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

// Sections returns every content section with its heading split out,
// in document order.
func (e *Extractor) Sections() []SisaltoSection {
	var sections []SisaltoSection
	e.doc.Find(sectionWrapper).Each(func(_ int, s *goquery.Selection) {
		clone := s.Clone()
		heading := clone.Find(sectionHeading).First()
		if heading.Length() == 0 {
			heading = clone.Find("h3").First()
		}
		title := strings.TrimSpace(heading.Text())
		heading.Remove()
		body, err := clone.Html()
		if err != nil {
			return
		}
		sections = append(sections, SisaltoSection{Heading: title, HTML: strings.TrimSpace(body)})
	})
	return sections
}

// MoreInfo extracts the contact block. The current schema marks all
// four fields independently; the legacy schema is a heading followed
// by loose markup that is collapsed and split positionally.
func (e *Extractor) MoreInfo() *MoreInfoDetails {
	for _, s := range []func() *MoreInfoDetails{e.moreInfoCurrent, e.moreInfoLegacy} {
		if d := s(); d != nil {
			return d
		}
	}
	return nil
}

func (e *Extractor) moreInfoCurrent() *MoreInfoDetails {
	d := MoreInfoDetails{
		Name:  text(e.doc.Find(".LisatietojaNimi").First()),
		Title: capitalize(text(e.doc.Find(".LisatietojaTitteli").First())),
		Phone: normalizePhone(text(e.doc.Find(".LisatietojaPuhelin").First())),
		Email: text(e.doc.Find(".LisatietojaEmail").First()),
	}
	if d == (MoreInfoDetails{}) {
		return nil
	}
	return &d
}

func (e *Extractor) moreInfoLegacy() *MoreInfoDetails {
	heading := e.findHeading("Lisätiedot")
	if heading == nil {
		return nil
	}
	fields := splitFields(walkUntilBreak(heading, "\n"), "\n")
	if len(fields) == 0 {
		return nil
	}
	d := MoreInfoDetails{Name: fields[0]}
	if len(fields) > 1 {
		d.Title = capitalize(fields[1])
	}
	if len(fields) > 2 {
		d.Phone = normalizePhone(fields[2])
	}
	if len(fields) > 3 {
		d.Email = fields[3]
	}
	return &d
}

// PresenterInfo extracts who presented the decision. The legacy form
// is a single line "title, name" under a heading.
func (e *Extractor) PresenterInfo() *PresenterInfo {
	for _, s := range []func() *PresenterInfo{e.presenterCurrent, e.presenterLegacy} {
		if p := s(); p != nil {
			return p
		}
	}
	return nil
}

func (e *Extractor) presenterCurrent() *PresenterInfo {
	p := PresenterInfo{
		Title: capitalize(text(e.doc.Find(".EsittelijaTitteli").First())),
		Name:  text(e.doc.Find(".EsittelijaNimi").First()),
	}
	if p == (PresenterInfo{}) {
		return nil
	}
	return &p
}

func (e *Extractor) presenterLegacy() *PresenterInfo {
	heading := e.findHeading("Esittelijä")
	if heading == nil {
		return nil
	}
	fields := splitFields(walkUntilBreak(heading, ","), ",")
	if len(fields) == 0 {
		return nil
	}
	p := PresenterInfo{Title: capitalize(fields[0])}
	if len(fields) > 1 {
		p.Name = fields[1]
	}
	return &p
}

// ModificationInfo extracts the modification notice block.
func (e *Extractor) ModificationInfo() *string {
	return e.noticeBlock(".MuutostiedotSektio", "Muutostiedot")
}

// AppealInfo extracts the appeal instructions block.
func (e *Extractor) AppealInfo() *string {
	return e.noticeBlock(".MuutoksenhakuSektio", "Muutoksenhaku")
}

func (e *Extractor) noticeBlock(currentSelector, legacyHeading string) *string {
	if sel := e.doc.Find(currentSelector).First(); sel.Length() > 0 {
		if body, err := sel.Html(); err == nil && strings.TrimSpace(body) != "" {
			out := strings.TrimSpace(body)
			return &out
		}
	}
	heading := e.findHeading(legacyHeading)
	if heading == nil {
		return nil
	}
	out := collectUntilBreak(heading)
	if strings.TrimSpace(out) == "" {
		return nil
	}
	out = strings.TrimSpace(out)
	return &out
}

// findHeading locates the first h1-h6 whose text starts with the given
// label, case-insensitively.
func (e *Extractor) findHeading(label string) *goquery.Selection {
	var found *goquery.Selection
	lower := strings.ToLower(label)
	e.doc.Find("h1,h2,h3,h4,h5,h6").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s.Text())), lower) {
			found = s
			return false
		}
		return true
	})
	return found
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

// capitalize upper-cases the first letter, leaving the rest untouched.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
