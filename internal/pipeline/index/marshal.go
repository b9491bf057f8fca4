package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/quebec-foncier/ocrworkerd/internal/sanitize"
)

// documentSchemaRaw is the canonical shape of a SanitizedDocument, used
// to catch a sanitizer regression before a malformed file_content ever
// reaches the queue.
const documentSchemaRaw = `{
	"type": "object",
	"required": ["pages"],
	"properties": {
		"pages": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["pageNumber", "metadata", "inscriptions"],
				"properties": {
					"pageNumber": {"type": "integer", "minimum": 1},
					"metadata": {"type": "object"},
					"inscriptions": {"type": "array"}
				}
			}
		}
	}
}`

var (
	documentSchema     *jsonschema.Schema
	documentSchemaOnce sync.Once
	documentSchemaErr  error
)

func compiledDocumentSchema() (*jsonschema.Schema, error) {
	documentSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("document.json", bytes.NewReader([]byte(documentSchemaRaw))); err != nil {
			documentSchemaErr = fmt.Errorf("load document schema: %w", err)
			return
		}
		documentSchema, documentSchemaErr = compiler.Compile("document.json")
	})
	return documentSchema, documentSchemaErr
}

// marshalDocument renders a SanitizedDocument to the bit-exact JSON
// shape downstream consumers parse out of file_content, validating it
// against documentSchemaRaw first so a sanitizer regression fails the
// job instead of silently corrupting a queue row.
func marshalDocument(doc *sanitize.SanitizedDocument) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal sanitized document: %w", err)
	}

	schema, err := compiledDocumentSchema()
	if err != nil {
		return "", fmt.Errorf("compile document schema: %w", err)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode sanitized document for validation: %w", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return "", fmt.Errorf("sanitized document does not match schema: %w", err)
	}

	return string(data), nil
}
