// Package sanitize implements the pure, deterministic transform from a
// boosted OCR transcript into a SanitizedDocument: the only JSON shape
// the index pipeline persists to file_content. It never calls an
// external service and never panics on malformed input — a malformed
// transcript degrades to a minimal valid document plus a warning.
package sanitize

// SanitizedDocument is the bit-exact JSON shape downstream consumers
// parse out of an index job's file_content.
type SanitizedDocument struct {
	Pages []Page `json:"pages"`
}

// Page is one `--- Page N ---` section of the transcript.
type Page struct {
	PageNumber   int          `json:"pageNumber"`
	Metadata     PageMetadata `json:"metadata"`
	Inscriptions []Inscription `json:"inscriptions"`
}

// PageMetadata holds the land-registry identifiers printed at the top of
// a page's transcript.
type PageMetadata struct {
	Circonscription *string `json:"circonscription"`
	Cadastre        *string `json:"cadastre"`
	LotNumber       *string `json:"lot_number"`
}

// Inscription is one `Ligne <k>:` section within a page.
type Inscription struct {
	ActePublicationDate   *string `json:"acte_publication_date"`
	ActePublicationNumber *string `json:"acte_publication_number"`
	ActeNature            *string `json:"acte_nature"`
	Parties               []Party `json:"parties"`
	Remarques              *string `json:"remarques"`
	RadiationNumber        *string `json:"radiation_number"`
}

// Party is one named participant in an inscription, with their role.
type Party struct {
	Name string `json:"name"`
	Role string `json:"role"`
}
