package canon

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

const (
	// DefaultMaxPixels bounds decoded image area to keep decompression bombs out.
	DefaultMaxPixels int64 = 64 << 20

	webpMediaType = "image/webp"
	webpExtension = "webp"
)

type imageFormat string

const (
	formatPNG  imageFormat = "png"
	formatJPEG imageFormat = "jpeg"
	formatGIF  imageFormat = "gif"
	formatWebP imageFormat = "webp"
	formatBMP  imageFormat = "bmp"
	formatTIFF imageFormat = "tiff"
)

type imageCodec struct {
	decode       func(r *bytes.Reader) (image.Image, error)
	decodeConfig func(r *bytes.Reader) (image.Config, error)
}

var imageCodecs = map[imageFormat]imageCodec{
	formatPNG: {
		decode:       func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) },
		decodeConfig: func(r *bytes.Reader) (image.Config, error) { return png.DecodeConfig(r) },
	},
	formatJPEG: {
		decode:       func(r *bytes.Reader) (image.Image, error) { return jpeg.Decode(r) },
		decodeConfig: func(r *bytes.Reader) (image.Config, error) { return jpeg.DecodeConfig(r) },
	},
	formatGIF: {
		decode:       func(r *bytes.Reader) (image.Image, error) { return gif.Decode(r) },
		decodeConfig: func(r *bytes.Reader) (image.Config, error) { return gif.DecodeConfig(r) },
	},
	formatWebP: {
		decode:       func(r *bytes.Reader) (image.Image, error) { return webp.Decode(r) },
		decodeConfig: func(r *bytes.Reader) (image.Config, error) { return webp.DecodeConfig(r) },
	},
	formatBMP: {
		decode:       func(r *bytes.Reader) (image.Image, error) { return bmp.Decode(r) },
		decodeConfig: func(r *bytes.Reader) (image.Config, error) { return bmp.DecodeConfig(r) },
	},
	formatTIFF: {
		decode:       func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) },
		decodeConfig: func(r *bytes.Reader) (image.Config, error) { return tiff.DecodeConfig(r) },
	},
}

// ImageCanonicalizer decodes any supported raster format and re-encodes it as lossless WebP.
// Output depends only on the decoded pixels, so redundant encodings of one picture collapse
// to the same bytes.
type ImageCanonicalizer struct {
	maxPixels int64
}

// NewImageCanonicalizer returns an image canonicalizer. maxPixels <= 0 selects the default.
func NewImageCanonicalizer(maxPixels int64) ImageCanonicalizer {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return ImageCanonicalizer{maxPixels: maxPixels}
}

// Canonicalize implements Canonicalizer.
func (c ImageCanonicalizer) Canonicalize(data []byte, declaredType string) (Result, error) {
	mediaType, ok := parseMediaType(declaredType)
	if !ok || topLevel(mediaType) != "image" {
		return Result{}, unsupported(declaredType)
	}

	format := sniffImageFormat(data)
	if format == "" {
		return Result{}, fmt.Errorf("%w: unrecognized image format", ErrMalformedContent)
	}
	codec := imageCodecs[format]

	cfg, err := codec.decodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s header: %v", ErrMalformedContent, format, err)
	}
	maxPixels := c.maxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return Result{}, fmt.Errorf("%w: %dx%d exceeds pixel limit", ErrMalformedContent, cfg.Width, cfg.Height)
	}

	img, err := codec.decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrMalformedContent, format, err)
	}

	var buf bytes.Buffer
	if err := nativewebp.Encode(&buf, normalizeNRGBA(img), nil); err != nil {
		return Result{}, fmt.Errorf("encode webp: %w", err)
	}

	return Result{Data: buf.Bytes(), ContentType: webpMediaType, Extension: webpExtension}, nil
}

// normalizeNRGBA copies img into a zero-origin NRGBA buffer so the encoder always sees the
// same pixel layout regardless of the source color model.
func normalizeNRGBA(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

func sniffImageFormat(data []byte) imageFormat {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return formatPNG
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return formatJPEG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return formatGIF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return formatWebP
	case bytes.HasPrefix(data, []byte("BM")):
		return formatBMP
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return formatTIFF
	default:
		return ""
	}
}
