package sizing

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"media-shrinker/internal/transcoder"
)

func TestImageLadder(t *testing.T) {
	ladder := ImageLadder()

	want := []transcoder.ImageParams{
		{Quality: 85, MaxEdge: 1920},
		{Quality: 75, MaxEdge: 1920},
		{Quality: 65, MaxEdge: 1920},
		{Quality: 55, MaxEdge: 1920},
		{Quality: 45, MaxEdge: 1920},
		{Quality: 30, MaxEdge: 1280},
	}
	if len(ladder) != len(want) {
		t.Fatalf("ladder has %d rungs, want %d", len(ladder), len(want))
	}
	for i, rung := range ladder {
		if rung.Params != want[i] {
			t.Errorf("rung %d params = %+v, want %+v", i, rung.Params, want[i])
		}
		if rung.Final != (i == len(want)-1) {
			t.Errorf("rung %d Final = %v", i, rung.Final)
		}
	}
}

func TestImageTargeter(t *testing.T) {
	const mb = 1_000_000

	tests := []struct {
		name      string
		sizes     []int64
		wantCalls int
		wantSize  int64
		wantMet   bool
		wantLast  transcoder.ImageParams
	}{
		{
			name:      "8 MB photo fits at second rung",
			sizes:     []int64{6 * mb, 4500 * 1000},
			wantCalls: 2,
			wantSize:  4500 * 1000,
			wantMet:   true,
			wantLast:  transcoder.ImageParams{Quality: 75, MaxEdge: 1920},
		},
		{
			name:      "fits at first rung",
			sizes:     []int64{1 * mb},
			wantCalls: 1,
			wantSize:  1 * mb,
			wantMet:   true,
			wantLast:  transcoder.ImageParams{Quality: 85, MaxEdge: 1920},
		},
		{
			name:      "fits at fallback",
			sizes:     []int64{9 * mb, 8 * mb, 7 * mb, 6 * mb, 6 * mb, 2 * mb},
			wantCalls: 6,
			wantSize:  2 * mb,
			wantMet:   true,
			wantLast:  transcoder.ImageParams{Quality: 30, MaxEdge: 1280},
		},
		{
			name:      "fallback returned over budget",
			sizes:     []int64{9 * mb, 9 * mb, 9 * mb, 9 * mb, 9 * mb, 7 * mb},
			wantCalls: 6,
			wantSize:  7 * mb,
			wantMet:   false,
			wantLast:  transcoder.ImageParams{Quality: 30, MaxEdge: 1280},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &stubEncoder{sizes: tt.sizes}
			dst := filepath.Join(t.TempDir(), "output.jpg")

			res, err := NewImageTargeter(enc, fiveMiB).TargetSize(context.Background(), "source.png", dst)
			if err != nil {
				t.Fatalf("TargetSize error: %v", err)
			}
			if len(enc.imageCalls) != tt.wantCalls || len(res.Attempts) != tt.wantCalls {
				t.Errorf("calls = %d, attempts = %d, want %d", len(enc.imageCalls), len(res.Attempts), tt.wantCalls)
			}
			if res.Size != tt.wantSize || res.MetTarget != tt.wantMet {
				t.Errorf("result = {%d %v}, want {%d %v}", res.Size, res.MetTarget, tt.wantSize, tt.wantMet)
			}
			if last := enc.imageCalls[len(enc.imageCalls)-1]; last != tt.wantLast {
				t.Errorf("last params = %+v, want %+v", last, tt.wantLast)
			}
			if res.Path != dst {
				t.Errorf("path = %q, want %q", res.Path, dst)
			}
			if info, err := os.Stat(res.Path); err != nil || info.Size() != res.Size {
				t.Errorf("output file missing or wrong size: %v", err)
			}
		})
	}
}

func TestImageTargeterBoundedInvocations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	dst := filepath.Join(t.TempDir(), "output.jpg")

	for i := 0; i < 200; i++ {
		budget := int64(1 + rng.Intn(10_000))
		sizes := make([]int64, 6)
		for j := range sizes {
			sizes[j] = int64(1 + rng.Intn(20_000))
		}
		enc := &stubEncoder{sizes: sizes}

		res, err := NewImageTargeter(enc, budget).TargetSize(context.Background(), "in", dst)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if len(enc.imageCalls) > 6 {
			t.Fatalf("iteration %d: %d invocations", i, len(enc.imageCalls))
		}
		if res.Size <= 0 {
			t.Fatalf("iteration %d: empty result", i)
		}
		if res.MetTarget != (res.Size <= budget) {
			t.Fatalf("iteration %d: MetTarget %v for size %d budget %d", i, res.MetTarget, res.Size, budget)
		}
	}
}

func TestImageTargeterEncoderError(t *testing.T) {
	boom := errors.New("ffmpeg: invalid data found when processing input")
	enc := &stubEncoder{sizes: []int64{9_000_000}, err: boom, errOnCall: 2}

	_, err := NewImageTargeter(enc, fiveMiB).TargetSize(context.Background(), "in", filepath.Join(t.TempDir(), "out.jpg"))
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if len(enc.imageCalls) != 2 {
		t.Errorf("calls = %d, want 2", len(enc.imageCalls))
	}
}
