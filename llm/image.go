package llm

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// NormalizeImageURL returns a value suitable for an image_url content part.
// http(s) and data URLs pass through; anything else is taken to be raw
// base64 and gets a JPEG data URL prefix.
// Schemes are matched case-insensitively.
func NormalizeImageURL(ref string) string {
	switch {
	case hasPrefixFold(ref, "http://"), hasPrefixFold(ref, "https://"), hasPrefixFold(ref, "data:"):
		return ref
	default:
		return "data:image/jpeg;base64," + ref
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// decodeDataURL splits a base64 data URL into its MIME type and bytes.
func decodeDataURL(u string) (string, []byte, error) {
	if !hasPrefixFold(u, "data:") {
		return "", nil, errors.New("not a data URL")
	}
	rest := u[len("data:"):]
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URL has no payload")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data URL is not base64 encoded: %q", meta)
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decoding data URL: %w", err)
	}
	return mime, data, nil
}
