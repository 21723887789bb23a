package sizing

import (
	"context"
	"errors"
	"os"

	"media-shrinker/internal/transcoder"
)

// stubEncoder returns scripted sizes and writes that many bytes to dst so
// callers see a real file.
type stubEncoder struct {
	sizes       []int64
	err         error
	errOnCall   int
	duration    float64
	probeErr    error
	imageCalls  []transcoder.ImageParams
	videoCalls  []transcoder.VideoParams
	probeCalled int
}

func (s *stubEncoder) next(dst string) (int64, error) {
	call := len(s.imageCalls) + len(s.videoCalls)
	if s.err != nil && call == s.errOnCall {
		return 0, s.err
	}
	if call > len(s.sizes) {
		return 0, errors.New("stub: unscripted call")
	}
	size := s.sizes[call-1]
	if err := os.WriteFile(dst, make([]byte, size), 0o600); err != nil {
		return 0, err
	}
	return size, nil
}

func (s *stubEncoder) EncodeImage(_ context.Context, _, dst string, p transcoder.ImageParams) (int64, error) {
	s.imageCalls = append(s.imageCalls, p)
	return s.next(dst)
}

func (s *stubEncoder) EncodeVideo(_ context.Context, _, dst string, p transcoder.VideoParams) (int64, error) {
	s.videoCalls = append(s.videoCalls, p)
	return s.next(dst)
}

func (s *stubEncoder) ProbeDuration(context.Context, string) (float64, error) {
	s.probeCalled++
	return s.duration, s.probeErr
}
