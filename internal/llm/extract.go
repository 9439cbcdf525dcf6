package llm

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// ExtractJSONObject returns the first balanced top-level {...} span in text.
// Models wrap JSON in prose or code fences often enough that the raw
// response cannot be handed to json.Unmarshal directly. Braces inside JSON
// strings are skipped so a description like "door {left}" does not end the
// span early.
func ExtractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// Image is a decoded data-URI payload.
type Image struct {
	MIMEType string
	Base64   string // payload exactly as it appeared in the URI
	Data     []byte
}

const defaultImageMIME = "image/jpeg"

// DecodeDataURI splits a "data:<mime>;base64,<payload>" string. A missing or
// undecodable payload yields ErrInvalidImageData. The MIME type falls back
// to image/jpeg when the header does not name one.
func DecodeDataURI(uri string) (*Image, error) {
	header, payload, found := strings.Cut(uri, ",")
	if !found || strings.TrimSpace(payload) == "" {
		return nil, fmt.Errorf("%w: no base64 data found", ErrInvalidImageData)
	}

	mime := defaultImageMIME
	if strings.HasPrefix(header, "data:") {
		if m, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";"); m != "" {
			mime = m
		}
	}

	payload = strings.TrimSpace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImageData, err)
	}

	return &Image{MIMEType: mime, Base64: payload, Data: data}, nil
}

// EncodeDataURI builds a base64 data URI for raw image bytes.
func EncodeDataURI(mime string, data []byte) string {
	if mime == "" {
		mime = defaultImageMIME
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
