package imagesvc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"strings"

	"golang.org/x/image/draw"
)

// ErrUnknownInterpolator is returned when an unsupported interpolation method is specified.
var ErrUnknownInterpolator = errors.New("unknown interpolator")

//nolint:gochecknoglobals
var (
	// interpolMap maps interpolator names to their implementations.
	interpolMap = map[string]draw.Interpolator{
		"nearestneighbor": draw.NearestNeighbor,
		"catmullrom":      draw.CatmullRom,
		"bilinear":        draw.BiLinear,
		"approxbilinear":  draw.ApproxBiLinear,
	}
)

func getInterpolatorByName(name string) (draw.Interpolator, error) {
	interpol, ok := interpolMap[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterpolator, name)
	}

	return interpol, nil
}

// squareCrop returns the largest centered square within bounds.
func squareCrop(bounds image.Rectangle) image.Rectangle {
	side := min(bounds.Dx(), bounds.Dy())
	x0 := bounds.Min.X + (bounds.Dx()-side)/2
	y0 := bounds.Min.Y + (bounds.Dy()-side)/2

	return image.Rect(x0, y0, x0+side, y0+side)
}

// cropAndScale center-crops original to a square and scales it to width x width.
func cropAndScale(original image.Image, width int, interpol draw.Interpolator) *image.RGBA {
	bitmap := image.NewRGBA(image.Rect(0, 0, width, width))
	interpol.Scale(bitmap, bitmap.Bounds(), original, squareCrop(original.Bounds()), draw.Src, nil)

	return bitmap
}

// decodeImage decodes a binary image into a Go image.Image object.
func decodeImage(reader io.Reader, ctype string) (image.Image, error) {
	decoder, err := getDecoderByType(ctype)
	if err != nil {
		return nil, err
	}

	return decoder(reader)
}

// encodeJPEG encodes bitmap as JPEG at the given quality.
func encodeJPEG(bitmap image.Image, quality int) ([]byte, error) {
	var buffer bytes.Buffer

	if err := jpeg.Encode(&buffer, bitmap, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return buffer.Bytes(), nil
}
