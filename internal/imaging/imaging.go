// Package imaging prepares uploaded material pictures for object storage.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MIME is the content type of every processed image.
const MIME = "image/jpeg"

// Options control how a picture is normalized.
type Options struct {
	// MaxDimension bounds width and height; larger pictures are downscaled.
	MaxDimension int
	// Quality is the JPEG quality of the output.
	Quality int
	// MaxBytes rejects larger uploads before decoding.
	MaxBytes int64
}

// DefaultOptions are used for material images.
var DefaultOptions = Options{
	MaxDimension: 1024,
	Quality:      85,
	MaxBytes:     10 << 20,
}

// accepted lists the sniffed input types that can be decoded.
var accepted = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ErrTooLarge is returned for uploads over Options.MaxBytes.
var ErrTooLarge = errors.New("image too large")

// Image is a processed picture, always JPEG encoded.
type Image struct {
	Data   []byte
	Width  int
	Height int
}

// Process reads a picture, checks its real type from the bytes, downscales
// it and re-encodes it as JPEG. Animated GIFs keep their first frame.
func Process(r io.Reader, opts Options) (*Image, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultOptions.MaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultOptions.Quality
	}

	if opts.MaxBytes > 0 {
		r = io.LimitReader(r, opts.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, opts.MaxBytes)
	}

	detected := http.DetectContentType(data)
	if !accepted[detected] {
		return nil, fmt.Errorf("unsupported image format: %s", detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	img = fit(img, opts.MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	b := img.Bounds()
	return &Image{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// fit scales img down so neither side exceeds limit, keeping the aspect ratio.
func fit(img image.Image, limit int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= limit && h <= limit {
		return img
	}

	newW, newH := limit, limit
	if w > h {
		newH = h * limit / w
	} else {
		newW = w * limit / h
	}
	newW = clampMin(newW, 1)
	newH = clampMin(newH, 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func clampMin(v, floor int) int {
	if v < floor {
		return floor
	}
	return v
}

// Filename turns an uploaded file name into a safe object name with a .jpg
// extension.
func Filename(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		b.WriteString("image")
	}
	return b.String() + ".jpg"
}
