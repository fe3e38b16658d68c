package imagesvc

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mkrupp/nutrifit-client/internal/domain"
	"golang.org/x/image/tiff"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

// landscape returns a 200x100 image: a blue center square with red bars left and right.
func landscape() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))

	for y := range 100 {
		for x := range 200 {
			if x < 50 || x >= 150 {
				img.Set(x, y, red)
			} else {
				img.Set(x, y, blue)
			}
		}
	}

	return img
}

func encodeWith(t *testing.T, enc func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := enc(&buf, landscape()); err != nil {
		t.Fatalf("encode source: %v", err)
	}

	return buf.Bytes()
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	svc, err := NewService(ImageConfig{
		Interpolator: "nearestneighbor",
		Width:        64,
		Quality:      90,
		MaxInputSize: 1 << 20,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	return svc
}

func TestPrepareUpload_CropsAndScales(t *testing.T) {
	pngEnc := func(b *bytes.Buffer, i image.Image) error { return png.Encode(b, i) }
	jpegEnc := func(b *bytes.Buffer, i image.Image) error { return jpeg.Encode(b, i, &jpeg.Options{Quality: 100}) }
	tiffEnc := func(b *bytes.Buffer, i image.Image) error { return tiff.Encode(b, i, nil) }

	sources := map[string][]byte{
		"png":  encodeWith(t, pngEnc),
		"jpeg": encodeWith(t, jpegEnc),
		"tiff": encodeWith(t, tiffEnc),
	}

	svc := newTestService(t)

	for name, data := range sources {
		t.Run(name, func(t *testing.T) {
			uri, err := svc.PrepareUpload(context.Background(), data)
			if err != nil {
				t.Fatalf("prepare: %v", err)
			}

			if !strings.HasPrefix(uri, DataURIPrefix) {
				t.Fatalf("uri prefix = %q", uri[:min(len(uri), 30)])
			}

			raw, err := DecodeDataURI(uri)
			if err != nil {
				t.Fatalf("decode uri: %v", err)
			}

			out, err := jpeg.Decode(bytes.NewReader(raw))
			if err != nil {
				t.Fatalf("decode jpeg: %v", err)
			}

			if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 64 {
				t.Fatalf("bounds = %v, want 64x64", out.Bounds())
			}

			// The red bars are outside the centered square and must be cropped away.
			for _, p := range []image.Point{{4, 4}, {32, 32}, {59, 59}, {4, 59}, {59, 4}} {
				r, _, b, _ := out.At(p.X, p.Y).RGBA()
				if r>>8 > 80 || b>>8 < 170 {
					t.Errorf("pixel %v = r%d b%d, want blue", p, r>>8, b>>8)
				}
			}
		})
	}
}

func TestPrepareUpload_Errors(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, domain.ErrImageEmpty},
		{"too large", bytes.Repeat([]byte{0xFF}, 2<<20), domain.ErrImageTooLarge},
		{"gif", []byte("GIF89a\x01\x00\x01\x00"), domain.ErrImageTypeNotSupported},
		{"truncated png", []byte("\x89PNG\r\n\x1a\n\x00\x00"), domain.ErrImageTypeNotSupported},
		{"bogus webp", []byte("RIFF\x10\x00\x00\x00WEBPVP8 \x00\x00"), domain.ErrImageTypeNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PrepareUpload(context.Background(), tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		data string
		want string
	}{
		{"\xFF\xD8\xFF\xE0rest", MIMETypeJPEG},
		{"\x89PNG\r\n\x1a\nrest", MIMETypePNG},
		{"II*\x00rest", MIMETypeTIFF},
		{"MM\x00*rest", MIMETypeTIFF},
		{"RIFF\x00\x00\x00\x00WEBPVP8 ", MIMETypeWEBP},
	}

	for _, tt := range tests {
		got, err := DetectType([]byte(tt.data))
		if err != nil || got != tt.want {
			t.Errorf("DetectType(%q) = %q, %v; want %q", tt.data, got, err, tt.want)
		}
	}

	for _, data := range []string{"", "RIFF\x00\x00\x00\x00WAVE", "\xFF", "hello"} {
		if _, err := DetectType([]byte(data)); !errors.Is(err, domain.ErrImageTypeNotSupported) {
			t.Errorf("DetectType(%q) err = %v", data, err)
		}
	}
}

func TestSquareCrop(t *testing.T) {
	tests := []struct {
		in   image.Rectangle
		want image.Rectangle
	}{
		{image.Rect(0, 0, 200, 100), image.Rect(50, 0, 150, 100)},
		{image.Rect(0, 0, 100, 300), image.Rect(0, 100, 100, 200)},
		{image.Rect(10, 10, 20, 20), image.Rect(10, 10, 20, 20)},
		{image.Rect(0, 0, 5, 2), image.Rect(1, 0, 3, 2)},
	}

	for _, tt := range tests {
		if got := squareCrop(tt.in); got != tt.want {
			t.Errorf("squareCrop(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewService_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  ImageConfig
		want error
	}{
		{"interpolator", ImageConfig{Interpolator: "lanczos", Width: 10, Quality: 50}, ErrUnknownInterpolator},
		{"width", ImageConfig{Interpolator: "bilinear", Width: 0, Quality: 50}, errInvalidConfig},
		{"quality", ImageConfig{Interpolator: "CatmullRom", Width: 10, Quality: 101}, errInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(tt.cfg); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPrepareFile(t *testing.T) {
	svc := newTestService(t)
	path := filepath.Join(t.TempDir(), "pick.png")

	data := encodeWith(t, func(b *bytes.Buffer, i image.Image) error { return png.Encode(b, i) })
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	uri, err := svc.PrepareFile(context.Background(), path)
	if err != nil {
		t.Fatalf("prepare file: %v", err)
	}

	if !strings.HasPrefix(uri, DataURIPrefix) {
		t.Fatalf("unexpected uri")
	}

	if _, err := svc.PrepareFile(context.Background(), path+".missing"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDecodeDataURI_RejectsOtherSchemes(t *testing.T) {
	if _, err := DecodeDataURI("data:image/png;base64,AAAA"); !errors.Is(err, domain.ErrImageTypeNotSupported) {
		t.Fatalf("err = %v", err)
	}
}
