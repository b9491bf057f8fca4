package sanitize

import (
	"regexp"
	"strconv"
	"strings"
)

const videPlaceholder = "[Vide]"

var (
	pageSplitRe = regexp.MustCompile(`(?i)---\s*Page\s+(\d+)\s*---`)
	ligneRe     = regexp.MustCompile(`(?im)^[\s•\-*]*Ligne\s+(\d+)\s*:`)
	rolePartRe  = regexp.MustCompile(`\d+(?:ere|ième)\s+partie`)

	circonscriptionRe = fieldRe(`Circonscription\s+fonci[eè]re`)
	cadastreRe        = fieldRe(`Cadastre`)
	lotRe             = fieldRe(`Lot`)
)

// fieldRe builds a tolerant "Label: value" matcher: case-insensitive,
// forgiving of a leading bullet/decoration before the label, stopping at
// the end of the line.
func fieldRe(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[\s•\-*]*` + label + `\s*:\s*(.*)$`)
}

// inscriptionFields names the five single-value fields extracted per
// inscription, in the labels they appear under in the transcript;
// Qualité and Nom des parties are read separately by parseInscription.
var inscriptionFields = []struct {
	label string
	set   func(*Inscription, *string)
}{
	{`Date de pr[eé]sentation d'inscription`, func(i *Inscription, v *string) { i.ActePublicationDate = v }},
	{`Num[eé]ro`, func(i *Inscription, v *string) { i.ActePublicationNumber = v }},
	{`Nature de l'acte`, func(i *Inscription, v *string) { i.ActeNature = v }},
	{`Remarques`, func(i *Inscription, v *string) { i.Remarques = v }},
	{`Radiations`, func(i *Inscription, v *string) { i.RadiationNumber = v }},
}

// Sanitize turns a boosted transcript into a SanitizedDocument. It never
// returns an error; a malformed or empty input yields a minimal
// single-page document with no inscriptions, and warn (if non-nil) is
// invoked with an excerpt for audit logging.
func Sanitize(boostedText string, warn func(excerpt string)) (doc *SanitizedDocument) {
	defer func() {
		if r := recover(); r != nil {
			doc = &SanitizedDocument{Pages: []Page{{PageNumber: 1, Inscriptions: []Inscription{}}}}
			if warn != nil {
				warn(excerpt(boostedText))
			}
		}
	}()

	sections := splitPages(boostedText)
	doc = &SanitizedDocument{Pages: make([]Page, 0, len(sections))}

	for _, sec := range sections {
		page := Page{PageNumber: sec.number, Inscriptions: []Inscription{}}
		page.Metadata = extractMetadata(sec.text)
		page.Inscriptions = extractInscriptions(sec.text)
		doc.Pages = append(doc.Pages, page)
	}

	if len(doc.Pages) == 0 {
		doc.Pages = append(doc.Pages, Page{PageNumber: 1, Inscriptions: []Inscription{}})
		if warn != nil {
			warn(excerpt(boostedText))
		}
	}

	return doc
}

type pageSection struct {
	number int
	text   string
}

// splitPages splits on the literal `--- Page N ---` marker. Text with no
// marker at all is treated as a single page 1, per §4.8.
func splitPages(text string) []pageSection {
	matches := pageSplitRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []pageSection{{number: 1, text: trimmed}}
	}

	var sections []pageSection
	for i, m := range matches {
		numStart, numEnd := m[2], m[3]
		n, err := strconv.Atoi(text[numStart:numEnd])
		if err != nil {
			continue
		}
		contentStart := m[1]
		contentEnd := len(text)
		if i+1 < len(matches) {
			contentEnd = matches[i+1][0]
		}
		sections = append(sections, pageSection{number: n, text: strings.TrimSpace(text[contentStart:contentEnd])})
	}
	return sections
}

func extractMetadata(pageText string) PageMetadata {
	return PageMetadata{
		Circonscription: firstMatch(circonscriptionRe, pageText),
		Cadastre:        firstMatch(cadastreRe, pageText),
		LotNumber:       firstMatch(lotRe, pageText),
	}
}

// extractInscriptions finds every `Ligne <k>:` section and parses its
// fields, in source order.
func extractInscriptions(pageText string) []Inscription {
	matches := ligneRe.FindAllStringIndex(pageText, -1)
	if len(matches) == 0 {
		return []Inscription{}
	}

	out := make([]Inscription, 0, len(matches))
	for i, m := range matches {
		start := m[1]
		end := len(pageText)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		out = append(out, parseInscription(pageText[start:end]))
	}
	return out
}

func parseInscription(block string) Inscription {
	var insc Inscription
	for _, f := range inscriptionFields {
		f.set(&insc, extractField(block, f.label))
	}

	qualite := extractField(block, `Qualit[eé]`)
	parties := extractField(block, `Nom des parties`)
	insc.Parties = parseParties(qualite, parties)

	return insc
}

// extractField implements §4.8's field-extraction precedence: prefer
// `Option 1: <value> (Confiance: NN%)`, regardless of the stated
// confidence number, falling back to the plain `Field: <value>` form.
// `[Vide]` and blank values normalize to nil.
func extractField(block, label string) *string {
	optionRe := regexp.MustCompile(`(?im)^[\s•\-*]*` + label + `\s*:?\s*Option\s*1\s*:\s*([^)]*?)\s*\(Confiance\s*:\s*\d+%\)`)
	if v := firstMatch(optionRe, block); v != nil {
		return v
	}

	plainRe := fieldRe(label)
	return firstMatch(plainRe, block)
}

func firstMatch(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return normalizeStr(m[1])
}

// normalizeStr trims whitespace and maps empty/[Vide] values to nil, per
// §4.8's normalization rule.
func normalizeStr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, videPlaceholder) {
		return nil
	}
	return &s
}

// parseParties implements §4.8's party-parsing heuristic: when Qualité
// names two or more role indicators, split Nom des parties on uppercase
// surname boundaries and pair positionally; otherwise keep Qualité and
// Nom des parties as one compound entry, never splitting on a single
// role (e.g. "Créancier Débiteur" stays intact).
func parseParties(qualite, parties *string) []Party {
	qualiteStr := derefOr(qualite, "")
	partiesStr := derefOr(parties, "")

	roles := rolePartRe.FindAllString(qualiteStr, -1)
	if len(roles) < 2 || partiesStr == "" {
		if qualiteStr == "" && partiesStr == "" {
			return []Party{}
		}
		return []Party{{Name: partiesStr, Role: qualiteStr}}
	}

	names := splitOnSurnameBoundary(partiesStr, len(roles))
	out := make([]Party, 0, len(roles))
	for i, role := range roles {
		name := ""
		if i < len(names) {
			name = strings.TrimSpace(names[i])
		}
		out = append(out, Party{Name: name, Role: strings.TrimSpace(role)})
	}
	return out
}

var surnameBoundaryRe = regexp.MustCompile(`,\s*([A-ZÀÂÄÉÈÊËÎÏÔÖÙÛÜÇ][A-ZÀÂÄÉÈÊËÎÏÔÖÙÛÜÇ\-']{1,})`)

// splitOnSurnameBoundary splits a "Nom des parties" string into `want`
// segments at points preceding an all-uppercase, comma-preceded surname
// token — the heuristic named in §4.8. If fewer boundaries are found
// than wanted, the remainder is returned as a single trailing segment.
func splitOnSurnameBoundary(text string, want int) []string {
	if want <= 1 {
		return []string{text}
	}

	boundaries := surnameBoundaryRe.FindAllStringIndex(text, -1)
	if len(boundaries) == 0 {
		return []string{text}
	}

	var segments []string
	prev := 0
	for _, b := range boundaries {
		if len(segments) >= want-1 {
			break
		}
		if b[0] == 0 {
			continue
		}
		segments = append(segments, text[prev:b[0]])
		prev = b[0]
	}
	segments = append(segments, text[prev:])
	return segments
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func excerpt(text string) string {
	const maxLen = 500
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen]
}
