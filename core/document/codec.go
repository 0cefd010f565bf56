package document

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
)

// Decode parses the persisted wire format.
// Any parse failure matches core.ErrMalformedDocument.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrapf(core.ErrMalformedDocument, "decoding: %v", err)
	}
	if err := dec.Decode(new(json.RawMessage)); err != io.EOF {
		return nil, errors.Wrap(core.ErrMalformedDocument, "trailing data after document")
	}
	doc.normalize()
	return &doc, nil
}

// Encode writes doc in the persisted wire format.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(doc), "encoding document")
}
