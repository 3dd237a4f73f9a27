package media

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
)

// Photo limits.
const (
	MaxPhotoBytes    = 5 << 20
	MaxPhotoEdge     = 1200
	MaxPhotoPixels   = 40_000_000
	ThumbnailEdge    = 200
	jpegQuality      = 85
	thumbJPEGQuality = 80
)

// ProcessedPhoto is the re-encoded image and its thumbnail.
type ProcessedPhoto struct {
	Full      []byte
	Thumbnail []byte
	Mime      string
	Ext       string
	Width     int
	Height    int
}

// SniffImage returns the mime type of data when it is one of the accepted
// formats.
func SniffImage(data []byte) (string, bool) {
	switch m := http.DetectContentType(data); m {
	case "image/jpeg", "image/png", "image/webp":
		return m, true
	}
	return "", false
}

// ProcessPhoto validates data against maxBytes (MaxPhotoBytes when zero),
// fits it inside MaxPhotoEdge and produces a centered square thumbnail.
// PNG input stays PNG; JPEG and WebP are re-encoded as JPEG.
func ProcessPhoto(data []byte, maxBytes int64) (*ProcessedPhoto, error) {
	if maxBytes <= 0 {
		maxBytes = MaxPhotoBytes
	}
	if len(data) == 0 {
		return nil, apperr.Invalidf("photo is empty")
	}
	if int64(len(data)) > maxBytes {
		return nil, apperr.Invalidf("photo exceeds %d bytes", maxBytes)
	}
	mime, ok := SniffImage(data)
	if !ok {
		return nil, apperr.Invalidf("photo must be jpeg, png or webp")
	}

	cfg, err := decodeConfig(mime, data)
	if err != nil {
		return nil, apperr.Wrap(apperr.Invalid, "photo could not be decoded", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPhotoPixels {
		return nil, apperr.Invalidf("photo dimensions %dx%d exceed %d pixels", cfg.Width, cfg.Height, MaxPhotoPixels)
	}

	src, err := decode(mime, data)
	if err != nil {
		return nil, apperr.Wrap(apperr.Invalid, "photo could not be decoded", err)
	}

	full := fit(src, MaxPhotoEdge)
	thumb := squareThumb(src, ThumbnailEdge)

	out := &ProcessedPhoto{Width: full.Bounds().Dx(), Height: full.Bounds().Dy()}
	if mime == "image/png" {
		out.Mime, out.Ext = "image/png", "png"
		if out.Full, err = encodePNG(full); err != nil {
			return nil, err
		}
		if out.Thumbnail, err = encodePNG(thumb); err != nil {
			return nil, err
		}
		return out, nil
	}
	out.Mime, out.Ext = "image/jpeg", "jpg"
	if out.Full, err = encodeJPEG(full, jpegQuality); err != nil {
		return nil, err
	}
	if out.Thumbnail, err = encodeJPEG(thumb, thumbJPEGQuality); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeConfig reads only the header so oversized bitmaps are refused
// before any pixel memory is allocated.
func decodeConfig(mime string, data []byte) (image.Config, error) {
	r := bytes.NewReader(data)
	switch mime {
	case "image/png":
		return png.DecodeConfig(r)
	case "image/webp":
		return webp.DecodeConfig(r)
	default:
		return jpeg.DecodeConfig(r)
	}
}

func decode(mime string, data []byte) (image.Image, error) {
	r := bytes.NewReader(data)
	switch mime {
	case "image/png":
		return png.Decode(r)
	case "image/webp":
		return webp.Decode(r)
	default:
		return jpeg.Decode(r)
	}
}

// fit scales src down so neither edge exceeds max. Smaller images are
// returned unchanged.
func fit(src image.Image, max int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return src
	}
	if w >= h {
		h = h * max / w
		w = max
	} else {
		w = w * max / h
		h = max
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func squareThumb(src image.Image, edge int) image.Image {
	b := src.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)
	dst := image.NewRGBA(image.Rect(0, 0, edge, edge))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, q int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "photo encoding failed", err)
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "photo encoding failed", err)
	}
	return buf.Bytes(), nil
}
