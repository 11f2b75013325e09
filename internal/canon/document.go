package canon

import (
	"bytes"
	"fmt"
)

const (
	pdfMediaType     = "application/pdf"
	pdfExtension     = "pdf"
	pdfTrailerWindow = 1024
)

// DocumentCanonicalizer accepts PDF documents. PDFs are stored byte-for-byte; the canonical
// form is the validated input.
type DocumentCanonicalizer struct{}

// Canonicalize implements Canonicalizer.
func (DocumentCanonicalizer) Canonicalize(data []byte, declaredType string) (Result, error) {
	mediaType, ok := parseMediaType(declaredType)
	if !ok || mediaType != pdfMediaType {
		return Result{}, unsupported(declaredType)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return Result{}, fmt.Errorf("%w: missing PDF header", ErrMalformedContent)
	}
	tail := data
	if len(tail) > pdfTrailerWindow {
		tail = tail[len(tail)-pdfTrailerWindow:]
	}
	if !bytes.Contains(tail, []byte("%%EOF")) {
		return Result{}, fmt.Errorf("%w: missing PDF trailer", ErrMalformedContent)
	}
	return Result{Data: data, ContentType: pdfMediaType, Extension: pdfExtension}, nil
}
