package encoding

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	xencoding "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

// ErrorHandler decides what an undecodable byte at src[offset] becomes. The
// decoder always resumes one byte later.
type ErrorHandler interface {
	HandleInvalid(src []byte, offset int) (string, error)
}

// StrictHandler fails the decode.
type StrictHandler struct{}

func (StrictHandler) HandleInvalid(src []byte, offset int) (string, error) {
	return "", apperrors.Newf(apperrors.ErrDecode, "", "invalid byte 0x%02x at offset %d", src[offset], offset)
}

// ReplaceHandler substitutes U+FFFD.
type ReplaceHandler struct{}

func (ReplaceHandler) HandleInvalid([]byte, int) (string, error) {
	return string(utf8.RuneError), nil
}

// MixedHandler treats text as UTF-8 interleaved with Windows-1252. Bytes in
// Spurious are artifacts of an earlier mis-encoding and are dropped;
// any other invalid byte is decoded with Fallback.
type MixedHandler struct {
	Spurious map[byte]struct{}
	Fallback *charmap.Charmap
}

// DefaultSpurious are control bytes left behind by earlier mis-encodings.
var DefaultSpurious = map[byte]struct{}{
	0x81: {},
	0x8d: {},
	0x90: {},
	0x9d: {},
	0x91: {},
}

func NewMixedHandler() MixedHandler {
	return MixedHandler{Spurious: DefaultSpurious, Fallback: charmap.Windows1252}
}

func (h MixedHandler) HandleInvalid(src []byte, offset int) (string, error) {
	b := src[offset]
	if _, ok := h.Spurious[b]; ok {
		return "", nil
	}
	return string(h.Fallback.DecodeByte(b)), nil
}

// HandlerFor returns the default strategy for a policy.
func HandlerFor(policy index.ErrorPolicy) ErrorHandler {
	switch policy {
	case index.Replace:
		return ReplaceHandler{}
	case index.Mixed:
		return NewMixedHandler()
	default:
		return StrictHandler{}
	}
}

// Decode converts data to a string under info. A nil handler selects
// HandlerFor(info.ErrorPolicy).
func Decode(data []byte, info index.EncodingInfo, handler ErrorHandler) (string, error) {
	if handler == nil {
		handler = HandlerFor(info.ErrorPolicy)
	}
	switch name := CanonicalName(info.Name); name {
	case UTF8WithBOM:
		return decodeUTF8(bytes.TrimPrefix(data, []byte{0xef, 0xbb, 0xbf}), handler)
	case UTF8, "":
		return decodeUTF8(data, handler)
	case ASCII:
		return decodeASCII(data, handler)
	default:
		enc, err := lookup(name)
		if err != nil {
			return "", err
		}
		return decodeWith(enc, data, info.ErrorPolicy)
	}
}

func decodeUTF8(data []byte, handler ErrorHandler) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	var sb strings.Builder
	sb.Grow(len(data))
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			repl, err := handler.HandleInvalid(data, i)
			if err != nil {
				return "", err
			}
			sb.WriteString(repl)
			i++
			continue
		}
		sb.Write(data[i : i+size])
		i += size
	}
	return sb.String(), nil
}

func decodeASCII(data []byte, handler ErrorHandler) (string, error) {
	var sb strings.Builder
	sb.Grow(len(data))
	for i, b := range data {
		if b < 0x80 {
			sb.WriteByte(b)
			continue
		}
		repl, err := handler.HandleInvalid(data, i)
		if err != nil {
			return "", err
		}
		sb.WriteString(repl)
	}
	return sb.String(), nil
}

// decodeWith runs an x/text decoder. Those decoders substitute U+FFFD for
// malformed input themselves, so Strict is enforced by rejecting any
// replacement character in the output.
func decodeWith(enc xencoding.Encoding, data []byte, policy index.ErrorPolicy) (string, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrDecode, "", "%v", err)
	}
	if policy == index.Strict {
		if i := bytes.IndexRune(out, utf8.RuneError); i >= 0 {
			return "", apperrors.Newf(apperrors.ErrDecode, "", "malformed input near decoded offset %d", i)
		}
	}
	return string(out), nil
}

// utf16 honours a byte order mark and strips it; without one, "utf-16"
// assumes little endian.
var utf16 = map[string]xencoding.Encoding{
	"utf-16":   unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
	"utf-16le": unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
	"utf-16be": unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
}

func lookup(name string) (xencoding.Encoding, error) {
	if enc, ok := utf16[name]; ok {
		return enc, nil
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, nil
	}
	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	return nil, apperrors.Newf(apperrors.ErrDecode, "", "unsupported encoding %q", name)
}

// Validate reports whether name can be decoded.
func Validate(name string) error {
	switch CanonicalName(name) {
	case UTF8, UTF8WithBOM, ASCII, "":
		return nil
	}
	_, err := lookup(CanonicalName(name))
	if err != nil {
		return fmt.Errorf("encoding %q: %w", name, err)
	}
	return nil
}
