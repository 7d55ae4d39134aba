// backend/src/parsers/jpcsv/decode.go
package jpcsv

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// EncodingAuto picks UTF-8 for valid UTF-8 input and Shift_JIS otherwise.
const EncodingAuto = "auto"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ResolveEncoding maps an encoding label (WHATWG names such as "shift_jis",
// "euc-jp", "utf-8") to a decoder. An empty label or "auto" returns nil.
func ResolveEncoding(label string) (encoding.Encoding, error) {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" || label == EncodingAuto {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	return enc, nil
}

// Decode converts raw export bytes to text. Undecodable byte sequences are
// dropped instead of failing.
func Decode(raw []byte, enc encoding.Encoding) string {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if enc == nil {
		if utf8.Valid(raw) {
			return string(raw)
		}
		enc = japanese.ShiftJIS
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		// Decoders substitute invalid input, so this only happens on internal
		// transformer failures. Fall back to a lossy UTF-8 read.
		return strings.ToValidUTF8(string(raw), "")
	}
	return strings.ReplaceAll(string(decoded), string(utf8.RuneError), "")
}
