package xmlextract

import (
	"io"

	"github.com/lestrrat-go/libxml2"
	"github.com/lestrrat-go/libxml2/xsd"

	"github.com/nishad/eudravigilance/internal/icsrerrors"
)

// Schema wraps a compiled XSD. Validation is independent of Extract: the
// two are never composed into a single pass over the same stream.
type Schema struct {
	doc *xsd.Schema
}

// LoadSchema compiles the XSD at path once. The result is safe to reuse
// across many Validate calls and across worker goroutines.
func LoadSchema(path string) (*Schema, error) {
	s, err := xsd.ParseFromFile(path)
	if err != nil {
		return nil, icsrerrors.Wrap("xmlextract.LoadSchema", icsrerrors.KindConfigInvalid, err)
	}
	return &Schema{doc: s}, nil
}

// Close releases the underlying libxml2 schema document.
func (s *Schema) Close() error {
	return s.doc.Free()
}

// Validate parses r into an in-memory document (libxml2.ParseReader has
// no streaming/chunked entry point) and checks it against the compiled
// schema, returning ok plus any validation messages. A well-formedness
// failure is reported as an error rather than a message, since no
// document was available to validate. Validation is an optional,
// separate pass from Extract, which is the one that holds the
// memory-bound streaming invariant.
func (s *Schema) Validate(r io.Reader) (bool, []string, error) {
	doc, err := libxml2.ParseReader(r)
	if err != nil {
		return false, nil, icsrerrors.Wrap("xmlextract.Validate", icsrerrors.KindXMLNotWellFormed, err)
	}
	defer doc.Free()

	if err := s.doc.Validate(doc); err != nil {
		if verr, ok := err.(xsd.SchemaValidationError); ok {
			msgs := make([]string, 0, len(verr.Errors()))
			for _, e := range verr.Errors() {
				msgs = append(msgs, e.Error())
			}
			return false, msgs, nil
		}
		return false, []string{err.Error()}, nil
	}
	return true, nil, nil
}
