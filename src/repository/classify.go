package repository

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"emperror.dev/errors"
	"github.com/Jeffail/gabs/v2"
)

// Classify turns the raw output of a restic process into a value or an error.
//
// A nonzero exit yields a KindToolReported error carrying stderr verbatim.
// On success with expectJSON set, stdout must be valid UTF-8 and hold exactly
// one JSON document, which is returned decoded. On success without expectJSON
// the result is (nil, nil). Classify has no side effects.
func Classify(res *Result, expectJSON bool) (interface{}, error) {
	if res == nil {
		return nil, errors.New("repository: nil invocation result")
	}
	if !res.Succeeded {
		return nil, newError(KindToolReported, "Restic error: "+lossyString(res.Stderr))
	}
	if !expectJSON {
		return nil, nil
	}

	if i := invalidUTF8Index(res.Stdout); i >= 0 {
		return nil, newError(KindDecoding, "Invalid UTF-8 sequence: invalid utf-8 sequence from index "+strconv.Itoa(i))
	}

	v, err := parseJSON(res.Stdout)
	if err != nil {
		return nil, wrapError(KindDecoding, err, "Failed to parse JSON")
	}
	return v, nil
}

// parseJSON decodes a single JSON document, keeping numbers exact so that
// large byte counts survive the round trip back to the caller.
func parseJSON(b []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	parsed, err := gabs.ParseJSONDecoder(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON document")
	}
	return parsed.Data(), nil
}

// invalidUTF8Index returns the offset of the first invalid byte, or -1.
func invalidUTF8Index(b []byte) int {
	if utf8.Valid(b) {
		return -1
	}
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}

// lossyString decodes b as UTF-8, replacing each maximal invalid subsequence
// with U+FFFD.
func lossyString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b) + 2)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			sb.WriteRune(utf8.RuneError)
			b = b[invalidSequenceLen(b):]
			continue
		}
		sb.Write(b[:size])
		b = b[size:]
	}
	return sb.String()
}

// invalidSequenceLen returns the length of the truncated sequence at the
// start of b: the lead byte plus any continuation bytes that were still
// acceptable for it.
func invalidSequenceLen(b []byte) int {
	need, lo, hi := 0, byte(0x80), byte(0xBF)
	switch lead := b[0]; {
	case lead >= 0xC2 && lead <= 0xDF:
		need = 1
	case lead == 0xE0:
		need, lo = 2, 0xA0
	case lead == 0xED:
		need, hi = 2, 0x9F
	case lead >= 0xE1 && lead <= 0xEF:
		need = 2
	case lead == 0xF0:
		need, lo = 3, 0x90
	case lead == 0xF4:
		need, hi = 3, 0x8F
	case lead >= 0xF1 && lead <= 0xF3:
		need = 3
	default:
		return 1
	}

	n := 1
	for ; n <= need && n < len(b); n++ {
		if b[n] < lo || b[n] > hi {
			break
		}
		lo, hi = 0x80, 0xBF
	}
	return n
}
