package mask

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Record is one source row: column name -> value.
type Record map[string]any

const ContentField = "content"

const MaskChar rune = '*'

var (
	ErrMissingContent   = errors.New("record has no content field")
	ErrContentNotString = errors.New("record content is not a string")
)

// Mask returns a copy of r with content replaced by one MaskChar per character
// of the original value. Every other field is carried over as-is and r itself
// is never modified, so Mask can run on any number of records concurrently.
func Mask(r Record) (Record, error) {
	v, ok := r[ContentField]
	if !ok {
		return nil, ErrMissingContent
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrContentNotString, v)
	}

	out := make(Record, len(r))
	for k, val := range r {
		out[k] = val
	}
	// characters, not bytes: "héllo" masks to five stars
	out[ContentField] = strings.Repeat(string(MaskChar), utf8.RuneCountInString(s))
	return out, nil
}

// MaskAll masks every record in order. It stops at the first bad record.
func MaskAll(records []Record) ([]Record, error) {
	out := make([]Record, 0, len(records))
	for i, r := range records {
		m, err := Mask(r)
		if err != nil {
			return nil, fmt.Errorf("mask record %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}
