package sanitize

import "testing"

func TestSanitizeNoPageMarkerYieldsSinglePage(t *testing.T) {
	doc := Sanitize("Circonscription foncière: Quebec\nCadastre: Cadastre du Quebec\nLot: 123", nil)
	if len(doc.Pages) != 1 || doc.Pages[0].PageNumber != 1 {
		t.Fatalf("expected single page 1, got %+v", doc.Pages)
	}
	meta := doc.Pages[0].Metadata
	if meta.Circonscription == nil || *meta.Circonscription != "Quebec" {
		t.Errorf("circonscription = %v, want Quebec", meta.Circonscription)
	}
	if meta.Cadastre == nil || *meta.Cadastre != "Cadastre du Quebec" {
		t.Errorf("cadastre = %v, want 'Cadastre du Quebec'", meta.Cadastre)
	}
	if meta.LotNumber == nil || *meta.LotNumber != "123" {
		t.Errorf("lot_number = %v, want 123", meta.LotNumber)
	}
}

func TestSanitizeSplitsOnPageMarkers(t *testing.T) {
	text := "--- Page 1 ---\nLot: 1\n--- Page 2 ---\nLot: 2"
	doc := Sanitize(text, nil)
	if len(doc.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(doc.Pages))
	}
	if doc.Pages[0].PageNumber != 1 || doc.Pages[1].PageNumber != 2 {
		t.Errorf("unexpected page numbers: %d, %d", doc.Pages[0].PageNumber, doc.Pages[1].PageNumber)
	}
	if *doc.Pages[0].Metadata.LotNumber != "1" || *doc.Pages[1].Metadata.LotNumber != "2" {
		t.Errorf("page lot numbers not isolated per section")
	}
}

func TestExtractFieldPrefersOption1OverPlainField(t *testing.T) {
	block := "Ligne 1:\nNuméro: Option 1: 12345 (Confiance: 80%)\n"
	insc := extractInscriptions(block)
	if len(insc) != 1 {
		t.Fatalf("expected 1 inscription, got %d", len(insc))
	}
	if insc[0].ActePublicationNumber == nil || *insc[0].ActePublicationNumber != "12345" {
		t.Errorf("acte_publication_number = %v, want 12345", insc[0].ActePublicationNumber)
	}
}

func TestExtractFieldStopsAtFirstOptionWhenBothOnOneLine(t *testing.T) {
	block := "Ligne 1:\nNuméro: Option 1: 12345 (Confiance: 80%) / Option 2: 67890 (Confiance: 20%)\n"
	insc := extractInscriptions(block)
	if len(insc) != 1 {
		t.Fatalf("expected 1 inscription, got %d", len(insc))
	}
	if insc[0].ActePublicationNumber == nil || *insc[0].ActePublicationNumber != "12345" {
		t.Errorf("acte_publication_number = %v, want 12345", insc[0].ActePublicationNumber)
	}
}

func TestExtractFieldFallsBackToPlainForm(t *testing.T) {
	block := "Ligne 1:\nNuméro: 67890\n"
	insc := extractInscriptions(block)
	if insc[0].ActePublicationNumber == nil || *insc[0].ActePublicationNumber != "67890" {
		t.Errorf("acte_publication_number = %v, want 67890", insc[0].ActePublicationNumber)
	}
}

func TestExtractFieldVidePlaceholderBecomesNil(t *testing.T) {
	block := "Ligne 1:\nRemarques: [Vide]\n"
	insc := extractInscriptions(block)
	if insc[0].Remarques != nil {
		t.Errorf("remarques = %v, want nil for [Vide]", insc[0].Remarques)
	}
}

func TestParsePartiesSplitsMultipleRoleIndicators(t *testing.T) {
	qualite := "1ere partie / 2ième partie"
	parties := "Jean Tremblay, TREMBLAY, 123 Rue Principale / Marie Gagnon, GAGNON, 456 Rue Secondaire"
	out := parseParties(&qualite, &parties)
	if len(out) != 2 {
		t.Fatalf("expected 2 parties, got %d: %+v", len(out), out)
	}
}

func TestParsePartiesKeepsCompoundRoleIntact(t *testing.T) {
	qualite := "Créancier Débiteur"
	parties := "Banque Nationale"
	out := parseParties(&qualite, &parties)
	if len(out) != 1 {
		t.Fatalf("expected 1 compound party, got %d", len(out))
	}
	if out[0].Role != "Créancier Débiteur" {
		t.Errorf("role = %q, want compound role preserved verbatim", out[0].Role)
	}
}

func TestSanitizeEmptyInputNeverPanics(t *testing.T) {
	warned := false
	doc := Sanitize("", func(string) { warned = true })
	if len(doc.Pages) != 1 {
		t.Fatalf("expected minimal single page for empty input, got %d pages", len(doc.Pages))
	}
	if !warned {
		t.Error("expected warn callback invoked for empty input")
	}
}
