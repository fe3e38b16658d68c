package imagesvc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/mkrupp/nutrifit-client/internal/domain"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeTIFF = "image/tiff"
	MIMETypeWEBP = "image/webp"
)

// imageHeader is a magic byte sequence expected at offset within the file.
type imageHeader struct {
	offset int
	magic  string
}

//nolint:gochecknoglobals
var (
	imageHeaders = map[string][][]imageHeader{
		MIMETypeJPEG: {{{0, "\xFF\xD8\xFF"}}},
		MIMETypePNG:  {{{0, "\x89\x50\x4E\x47\x0D\x0A\x1A\x0A"}}},
		MIMETypeTIFF: {{{0, "\x49\x49\x2A\x00"}}, {{0, "\x4D\x4D\x00\x2A"}}},
		MIMETypeWEBP: {{{0, "RIFF"}, {8, "WEBP"}}},
	}

	imageDecoders = map[string]func(io.Reader) (image.Image, error){
		MIMETypeJPEG: jpeg.Decode,
		MIMETypeTIFF: tiff.Decode,
		MIMETypePNG:  png.Decode,
		MIMETypeWEBP: webp.Decode,
	}
)

// DetectType returns the MIME type of data based on its leading magic bytes.
func DetectType(data []byte) (string, error) {
	for mimeType, variants := range imageHeaders {
		for _, headers := range variants {
			if matchHeaders(data, headers) {
				return mimeType, nil
			}
		}
	}

	return "", domain.ErrImageTypeNotSupported
}

func matchHeaders(data []byte, headers []imageHeader) bool {
	for _, h := range headers {
		end := h.offset + len(h.magic)
		if len(data) < end || !bytes.Equal(data[h.offset:end], []byte(h.magic)) {
			return false
		}
	}

	return true
}

func getDecoderByType(mimeType string) (func(io.Reader) (image.Image, error), error) {
	decoder, ok := imageDecoders[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, mimeType)
	}

	return decoder, nil
}
