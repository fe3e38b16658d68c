package imagesvc

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mkrupp/nutrifit-client/internal/domain"
	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
	"golang.org/x/image/draw"
)

// DataURIPrefix is prepended to the base64 encoded JPEG returned by PrepareUpload.
const DataURIPrefix = "data:image/jpeg;base64,"

var errInvalidConfig = errors.New("invalid image config")

// Service turns picked images into the data URIs the remote API accepts for post
// images and profile pictures.
type Service struct {
	cfg      ImageConfig
	interpol draw.Interpolator
	log      logging.Logger
}

// NewService validates cfg and returns a Service.
func NewService(cfg ImageConfig) (*Service, error) {
	interpol, err := getInterpolatorByName(cfg.Interpolator)
	if err != nil {
		return nil, err
	}

	if cfg.Width <= 0 {
		return nil, fmt.Errorf("%w: width %d", errInvalidConfig, cfg.Width)
	}

	if cfg.Quality < 1 || cfg.Quality > 100 {
		return nil, fmt.Errorf("%w: quality %d", errInvalidConfig, cfg.Quality)
	}

	return &Service{
		cfg:      cfg,
		interpol: interpol,
		log:      logging.GetLogger("svc.imagesvc"),
	}, nil
}

// PrepareUpload crops data to a centered square, scales it to the configured width and
// returns it as a JPEG data URI.
func (s *Service) PrepareUpload(ctx context.Context, data []byte) (uri string, err error) {
	if len(data) == 0 {
		return "", domain.ErrImageEmpty
	}

	if s.cfg.MaxInputSize > 0 && int64(len(data)) > s.cfg.MaxInputSize {
		return "", fmt.Errorf("%w: %s exceeds %s", domain.ErrImageTooLarge,
			humanize.IBytes(uint64(len(data))), humanize.IBytes(uint64(s.cfg.MaxInputSize)))
	}

	ctype, err := DetectType(data)
	if err != nil {
		return "", err
	}

	log := s.log.With(logging.Group("image",
		"type", ctype, "size", humanize.IBytes(uint64(len(data)))))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "image prepare failed", "error", err)
		} else {
			log.DebugContext(ctx, "image prepared", "encoded", humanize.Bytes(uint64(len(uri))))
		}
	}()

	original, err := decodeImage(bytes.NewReader(data), ctype)
	if err != nil {
		return "", fmt.Errorf("%w: decode: %w", domain.ErrImageTypeNotSupported, err)
	}

	if original.Bounds().Empty() {
		return "", domain.ErrImageEmpty
	}

	encoded, err := encodeJPEG(cropAndScale(original, s.cfg.Width, s.interpol), s.cfg.Quality)
	if err != nil {
		return "", err
	}

	return DataURIPrefix + base64.StdEncoding.EncodeToString(encoded), nil
}

// PrepareFile reads the image at path and prepares it like PrepareUpload.
func (s *Service) PrepareFile(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat image: %w", err)
	}

	if s.cfg.MaxInputSize > 0 && info.Size() > s.cfg.MaxInputSize {
		return "", fmt.Errorf("%w: %s", domain.ErrImageTooLarge, humanize.IBytes(uint64(info.Size())))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	return s.PrepareUpload(ctx, data)
}

// DecodeDataURI returns the JPEG bytes of a URI produced by PrepareUpload.
func DecodeDataURI(uri string) ([]byte, error) {
	if len(uri) < len(DataURIPrefix) || uri[:len(DataURIPrefix)] != DataURIPrefix {
		return nil, fmt.Errorf("%w: not a jpeg data uri", domain.ErrImageTypeNotSupported)
	}

	return base64.StdEncoding.DecodeString(uri[len(DataURIPrefix):])
}
