package vistag

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var imageMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// imageError wraps a specific image failure so that it matches both its
// own sentinel and ErrInvalidImage.
type imageError struct {
	kind error
	ref  string
}

func (e *imageError) Error() string {
	if e.ref == "" {
		return e.kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.kind, e.ref)
}

func (e *imageError) Unwrap() error { return e.kind }

func (e *imageError) Is(target error) bool { return target == ErrInvalidImage }

// ResolveImage turns an image reference into an image_url value. http(s)
// and data URLs pass through with the scheme lowercased. Anything else is a local path,
// which is read and embedded as a base64 data URL. maxBytes <= 0 disables
// the size check.
func ResolveImage(ref string, maxBytes int64) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", &imageError{kind: ErrEmptyImageRef}
	}
	if scheme, rest, ok := strings.Cut(ref, ":"); ok {
		switch strings.ToLower(scheme) {
		case "http", "https", "data":
			return strings.ToLower(scheme) + ":" + rest, nil
		}
	}

	mime, ok := imageMIME[strings.ToLower(filepath.Ext(ref))]
	if !ok {
		return "", &imageError{kind: ErrUnsupportedImage, ref: ref}
	}
	info, err := os.Stat(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &imageError{kind: ErrImageNotFound, ref: ref}
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if !info.Mode().IsRegular() {
		return "", &imageError{kind: ErrImageNotFound, ref: ref + " is not a regular file"}
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return "", &imageError{kind: ErrImageTooLarge, ref: fmt.Sprintf("%s (%d > %d bytes)", ref, info.Size(), maxBytes)}
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrInvalidImage, ref, err)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// IsImageFile reports whether path has a supported image extension.
func IsImageFile(path string) bool {
	_, ok := imageMIME[strings.ToLower(filepath.Ext(path))]
	return ok
}
