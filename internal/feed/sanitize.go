package feed

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	cdataOpen  = []byte("<![CDATA[")
	cdataClose = []byte("]]>")
)

// predefined XML entities; everything else must come from xml.HTMLEntity to count as known.
var xmlEntities = map[string]struct{}{
	"lt": {}, "gt": {}, "amp": {}, "apos": {}, "quot": {},
}

const maxEntityName = 32

var declaredEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*?encoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// Sanitize repairs the defects real feeds ship with so the lenient parser can read them:
// bare ampersands and stray '<' are escaped and characters outside the XML Char range are dropped.
// CDATA sections are copied verbatim apart from the character filter.
// Unless the XML declaration names another encoding, bytes that are not valid UTF-8 are
// read as windows-1252 so the decoder does not stop at them.
func Sanitize(raw []byte) []byte {
	src := stripIllegalChars(raw, !legacyEncoding(raw))

	var out bytes.Buffer
	out.Grow(len(src) + len(src)/32)

	for i := 0; i < len(src); {
		switch src[i] {
		case '<':
			if bytes.HasPrefix(src[i:], cdataOpen) {
				end := bytes.Index(src[i+len(cdataOpen):], cdataClose)
				if end < 0 {
					out.Write(src[i:])
					return out.Bytes()
				}
				stop := i + len(cdataOpen) + end + len(cdataClose)
				out.Write(src[i:stop])
				i = stop
				continue
			}
			if startsMarkup(src[i+1:]) {
				out.WriteByte('<')
			} else {
				out.WriteString("&lt;")
			}
		case '&':
			if n := entityLen(src[i:]); n > 0 {
				out.Write(src[i : i+n])
				i += n
				continue
			}
			out.WriteString("&amp;")
		default:
			out.WriteByte(src[i])
		}
		i++
	}

	return out.Bytes()
}

// startsMarkup reports whether the bytes after '<' open a tag, end tag, comment,
// declaration or processing instruction.
func startsMarkup(rest []byte) bool {
	if len(rest) == 0 {
		return false
	}
	r, _ := utf8.DecodeRune(rest)
	switch r {
	case '/', '!', '?', '_', ':':
		return true
	}
	return unicode.IsLetter(r)
}

// entityLen returns the length of a well-formed, known character or entity
// reference at the start of s, or 0.
func entityLen(s []byte) int {
	if len(s) < 3 || s[0] != '&' {
		return 0
	}

	if s[1] == '#' {
		i := 2
		hex := i < len(s) && (s[i] == 'x' || s[i] == 'X')
		if hex {
			i++
		}
		start := i
		for i < len(s) && isRefDigit(s[i], hex) {
			i++
		}
		if i == start || i >= len(s) || s[i] != ';' {
			return 0
		}
		return i + 1
	}

	i := 1
	for i < len(s) && i <= maxEntityName && isNameByte(s[i], i == 1) {
		i++
	}
	if i == 1 || i >= len(s) || s[i] != ';' {
		return 0
	}
	name := string(s[1:i])
	if _, ok := xmlEntities[name]; ok {
		return i + 1
	}
	if _, ok := xml.HTMLEntity[name]; ok {
		return i + 1
	}
	return 0
}

func isRefDigit(c byte, hex bool) bool {
	if c >= '0' && c <= '9' {
		return true
	}
	return hex && ((c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F'))
}

func isNameByte(c byte, first bool) bool {
	if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	return !first && c >= '0' && c <= '9'
}

// legacyEncoding reports whether the XML declaration names an encoding other than UTF-8.
// Such documents go through the decoder's charset reader untouched.
func legacyEncoding(raw []byte) bool {
	head := bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if len(head) > 256 {
		head = head[:256]
	}
	m := declaredEncoding.FindSubmatch(head)
	if m == nil {
		return false
	}
	switch strings.ToLower(string(m[1])) {
	case "utf-8", "utf8":
		return false
	}
	return true
}

// stripIllegalChars drops decoded runes outside the XML 1.0 Char production.
// Invalid UTF-8 bytes are decoded as windows-1252 when repair is set, kept otherwise.
func stripIllegalChars(src []byte, repair bool) []byte {
	clean := true
	for i := 0; i < len(src); {
		r, size := utf8.DecodeRune(src[i:])
		invalid := r == utf8.RuneError && size == 1
		if (invalid && repair) || (!invalid && !isXMLChar(r)) {
			clean = false
			break
		}
		i += size
	}
	if clean {
		return src
	}

	out := make([]byte, 0, len(src)+len(src)/16)
	for i := 0; i < len(src); {
		r, size := utf8.DecodeRune(src[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			if !repair {
				out = append(out, src[i])
				break
			}
			if dr := charmap.Windows1252.DecodeByte(src[i]); isXMLChar(dr) {
				out = utf8.AppendRune(out, dr)
			}
		case isXMLChar(r):
			out = append(out, src[i:i+size]...)
		}
		i += size
	}
	return out
}

func isXMLChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		(r >= 0x20 && r <= 0xD7FF) ||
		(r >= 0xE000 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= 0x10FFFF)
}
