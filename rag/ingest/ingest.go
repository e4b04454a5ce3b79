// Package ingest loads source documents for indexing.
//
// Three loaders are provided:
//   - DriveLoader reads every file in a Google Drive folder, exporting
//     Google-native documents as plain text and extracting text from
//     PDFs.
//   - FetchPage downloads a web page and keeps its paragraph text.
//   - ExtractPDFText pulls plain text out of a PDF byte stream.
//
// All loaders produce Document values. A Document with empty Content is
// not an error; callers decide whether to skip it.
package ingest

import (
	"strings"
	"time"
)

// Document is a single source document ready for chunking.
type Document struct {
	// ID uniquely identifies the document. Drive documents use the
	// Drive file ID, web documents use the URL.
	ID string

	// Name is the human-readable title, shown as the source label in
	// answers.
	Name string

	// Source describes where the document came from, e.g. "drive" or
	// the page URL.
	Source string

	// MIMEType is the original content type when known.
	MIMEType string

	// Content is the extracted plain text.
	Content string

	// Retrieved is when the document was loaded.
	Retrieved time.Time
}

// Empty reports whether the document has no usable text.
func (d Document) Empty() bool {
	return strings.TrimSpace(d.Content) == ""
}
