// internal/learning/key.go
package learning

import (
	"strconv"
	"unicode/utf16"
)

// DefaultPage is the page component of keys recorded without a page.
const DefaultPage = "unknown"

// Key derives the record key of selector on page.
func Key(selector, page string) string {
	if page == "" {
		page = DefaultPage
	}
	return page + "_" + HashSelector(selector)
}

// HashSelector is a 32-bit polynomial (x31) hash over UTF-16 code units, rendered as the
// base-36 magnitude. Keys match those produced by browser-side tooling for the same text.
func HashSelector(selector string) string {
	var h int32
	for _, unit := range utf16.Encode([]rune(selector)) {
		h = (h << 5) - h + int32(unit)
	}
	mag := int64(h)
	if mag < 0 {
		mag = -mag
	}
	return strconv.FormatInt(mag, 36)
}
