package canid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CanonicalID is the canonical decimal-string form of a CAN identifier.
// It is the only key used for catalog lookups and frame identity; it is
// produced exclusively by Normalize.
type CanonicalID string

var ErrInvalidIdentifier = errors.New("canid: invalid identifier")

// Normalize canonicalizes a raw identifier into its decimal-string form.
// The raw text may carry an optional 0x/0X prefix and surrounding
// whitespace. sourceIsHex selects the parse base; it is supplied by the
// call site because all-digit hex identifiers cannot be told apart from
// decimal ones by inspection.
func Normalize(raw string, sourceIsHex bool) (CanonicalID, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if s == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}

	base := 10
	if sourceIsHex {
		base = 16
	}

	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}

	return CanonicalID(strconv.FormatUint(v, 10)), nil
}

// DisplayHex renders a canonical id as upper-case hex for human-facing
// output. Presentation only, never a lookup key.
func DisplayHex(id CanonicalID) string {
	v, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil {
		return string(id)
	}
	return strings.ToUpper(strconv.FormatUint(v, 16))
}

// Value returns the numeric identifier behind a canonical id.
func Value(id CanonicalID) uint64 {
	v, _ := strconv.ParseUint(string(id), 10, 64)
	return v
}
