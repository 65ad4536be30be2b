package core

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// NewTextReader decodes r to UTF-8 text. A leading byte order mark is
// honored and removed, so files saved as UTF-16 by Windows editors load
// like any other; invalid UTF-8 bytes become U+FFFD.
func NewTextReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}
