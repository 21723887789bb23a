package transcoder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"media-shrinker/internal/logging"
)

// Encoder names accepted by NewImageEncoder.
const (
	EncoderAuto   = "auto"
	EncoderNative = "native"
	EncoderVips   = "vips"
	EncoderFFmpeg = "ffmpeg"
)

// Chain tries each encoder in order and moves on only when an encoder
// reports ErrUnsupportedInput. Any other error ends the attempt.
type Chain struct {
	encoders []ImageEncoder
}

// NewChain creates a Chain from the given encoders. Nil entries are skipped.
func NewChain(encoders ...ImageEncoder) *Chain {
	c := &Chain{}
	for _, enc := range encoders {
		if enc != nil {
			c.encoders = append(c.encoders, enc)
		}
	}
	return c
}

// EncodeImage implements ImageEncoder.
func (c *Chain) EncodeImage(ctx context.Context, src, dst string, p ImageParams) (int64, error) {
	err := ErrUnsupportedInput
	for i, enc := range c.encoders {
		var size int64
		size, err = enc.EncodeImage(ctx, src, dst, p)
		if !errors.Is(err, ErrUnsupportedInput) {
			return size, err
		}
		logging.Debug("Image encoder %d/%d (%T) skipped %s: %v", i+1, len(c.encoders), enc, src, err)
	}
	return 0, err
}

// NewImageEncoder builds the image encoder for a configured mode. ffmpeg is
// always the last resort because it decodes the widest range of formats.
// The vips encoder only participates once InitVips has succeeded.
func NewImageEncoder(mode string, ff *FFmpeg) (ImageEncoder, error) {
	var last ImageEncoder
	if ff != nil {
		last = ff
	}

	switch strings.ToLower(mode) {
	case "", EncoderAuto:
		var vipsEnc ImageEncoder
		if IsVipsAvailable() {
			vipsEnc = NewVips()
		}
		return NewChain(vipsEnc, NewNative(), last), nil
	case EncoderNative:
		return NewChain(NewNative(), last), nil
	case EncoderVips:
		if !IsVipsAvailable() {
			return nil, fmt.Errorf("image encoder %q requested but libvips is not initialized", mode)
		}
		return NewChain(NewVips(), last), nil
	case EncoderFFmpeg:
		if ff == nil {
			return nil, fmt.Errorf("image encoder %q requested: %w", mode, ErrFFmpegNotFound)
		}
		return ff, nil
	default:
		return nil, fmt.Errorf("unknown image encoder %q (want auto, native, vips or ffmpeg)", mode)
	}
}
