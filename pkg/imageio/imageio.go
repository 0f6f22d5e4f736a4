// Package imageio loads analysis screenshots from disk or the backend and
// encodes annotated results.
package imageio

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/ux-analyzer/pkg/geometry"
)

// MaxDownloadSize bounds a downloaded image
const MaxDownloadSize = 32 << 20

// Loader reads images from files and URLs
type Loader struct {
	client *http.Client
}

// NewLoader creates a loader whose downloads time out after timeout
func NewLoader(timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Loader{client: &http.Client{Timeout: timeout}}
}

// LoadImageFromURL downloads and decodes an image
func (l *Loader) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	data, err := l.Fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Fetch downloads the raw bytes of an image
func (l *Loader) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "ux-analyzer/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "application/octet-stream") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) > MaxDownloadSize {
		return nil, fmt.Errorf("image larger than %d bytes", MaxDownloadSize)
	}
	return data, nil
}

// LoadImage decodes an image file, webp included
func (l *Loader) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("image: unknown format for %s", path)
	}
	return img, nil
}

// LoadImageSmart loads from a URL when source looks like one, else from disk
func (l *Loader) LoadImageSmart(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return l.LoadImageFromURL(ctx, source)
	}
	return l.LoadImage(source)
}

// Decode decodes image bytes in any registered format, falling back to the
// libwebp decoder for webp variants x/image does not handle.
func Decode(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// Probe reads only the header and returns the natural size and format name
func Probe(r io.Reader) (geometry.Size, string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return geometry.Size{}, "", fmt.Errorf("failed to read image header: %w", err)
	}
	return geometry.Size{Width: float64(cfg.Width), Height: float64(cfg.Height)}, format, nil
}

// Bounds returns the natural size of a decoded image
func Bounds(img image.Image) geometry.Size {
	b := img.Bounds()
	return geometry.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
}

// Encode writes img as png, webp or jpg (the default)
func Encode(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(w, img)
	default:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	}
}

// SaveImage saves img to path in the given format
func SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return Encode(f, img, format, quality, lossless)
	case "png":
		return imaging.Save(img, path)
	default:
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// ContentType returns the MIME type Encode produces for format
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "webp":
		return "image/webp"
	case "png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// DataURL encodes img as a base64 data URL
func DataURL(img image.Image, format string, quality int) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format, quality, false); err != nil {
		return "", err
	}
	return "data:" + ContentType(format) + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
