// Package validation checks an upload before it is sent to the backend.
// Nothing here touches the network.
package validation

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MaxFileSize is the largest accepted upload, 10 MiB
const MaxFileSize int64 = 10 * 1024 * 1024

// AllowedTypes are the accepted MIME types
var AllowedTypes = []string{"image/png", "image/jpeg", "image/jpg", "image/gif", "image/webp"}

// Kind tells which rule an upload broke
type Kind int

const (
	KindSize Kind = iota + 1
	KindType
	KindIntent
)

// MessageID returns the localization key describing k
func (k Kind) MessageID() string {
	switch k {
	case KindSize:
		return "validation.size"
	case KindType:
		return "validation.type"
	case KindIntent:
		return "validation.intent"
	}
	return ""
}

// ErrInvalidUpload is matched by every *ValidationError
var ErrInvalidUpload = errors.New("invalid upload")

// ValidationError describes a rejected upload
type ValidationError struct {
	Kind        Kind
	Size        int64
	ContentType string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindSize:
		return fmt.Sprintf("file is %s, the limit is %s", FormatFileSize(e.Size), FormatFileSize(MaxFileSize))
	case KindType:
		return fmt.Sprintf("unsupported file type %q (PNG, JPG, JPEG, GIF and WebP are supported)", e.ContentType)
	case KindIntent:
		return "user intent is required"
	}
	return "invalid upload"
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidUpload }

// Validate checks size and type. Size is checked first, so an oversized file
// of the wrong type reports KindSize.
func Validate(size int64, contentType string) error {
	if size > MaxFileSize {
		return &ValidationError{Kind: KindSize, Size: size, ContentType: contentType}
	}
	if !allowed(contentType) {
		return &ValidationError{Kind: KindType, Size: size, ContentType: contentType}
	}
	return nil
}

// ValidateIntent rejects an empty or whitespace-only intent
func ValidateIntent(intent string) error {
	if strings.TrimSpace(intent) == "" {
		return &ValidationError{Kind: KindIntent}
	}
	return nil
}

// FileInfo is what ValidateFile learned about a file
type FileInfo struct {
	Path        string
	Name        string
	Size        int64
	ContentType string
}

// ValidateFile stats path and sniffs its content type from the first bytes
func ValidateFile(path string) (FileInfo, error) {
	info := FileInfo{Path: path, Name: filepath.Base(path)}

	st, err := os.Stat(path)
	if err != nil {
		return info, fmt.Errorf("failed to stat upload: %w", err)
	}
	if st.IsDir() {
		return info, fmt.Errorf("%s is a directory", path)
	}
	info.Size = st.Size()

	f, err := os.Open(path)
	if err != nil {
		return info, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return info, fmt.Errorf("failed to read upload: %w", err)
	}
	info.ContentType = sniff(head[:n])

	return info, Validate(info.Size, info.ContentType)
}

// ValidateUpload is ValidateFile plus the intent check
func ValidateUpload(path, intent string) (FileInfo, error) {
	info, err := ValidateFile(path)
	if err != nil {
		return info, err
	}
	return info, ValidateIntent(intent)
}

// FormatFileSize renders bytes for people: "0 Bytes", "512 Bytes", "1.5 KB",
// rounded to two decimals.
func FormatFileSize(size int64) string {
	if size <= 0 {
		return "0 Bytes"
	}
	const k = 1024
	units := []string{"Bytes", "KB", "MB", "GB"}

	i, div := 0, int64(1)
	for size/div >= k && i < len(units)-1 {
		div *= k
		i++
	}

	v := float64(size) / float64(div)
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + units[i]
}

func sniff(head []byte) string {
	ct := http.DetectContentType(head)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

func allowed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, t := range AllowedTypes {
		if ct == t {
			return true
		}
	}
	return false
}
