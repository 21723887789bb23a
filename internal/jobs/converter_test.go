package jobs

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"media-shrinker/internal/mediatypes"
	"media-shrinker/internal/metrics"
)

const testTarget = 1000

type converterFixture struct {
	store   *memStore
	blobs   *fakeBlobs
	images  *fakeTargeter
	videos  *fakeTargeter
	workDir string
	conv    *Converter
}

func newConverterFixture(t *testing.T) *converterFixture {
	t.Helper()
	f := &converterFixture{
		store:   newMemStore(),
		blobs:   newFakeBlobs(),
		images:  &fakeTargeter{size: 600, attempts: 2},
		videos:  &fakeTargeter{size: 900, attempts: 1},
		workDir: t.TempDir(),
	}
	conv, err := NewConverter(f.store, f.blobs, f.images, f.videos, ConverterConfig{
		TargetBytes: testTarget,
		WorkDir:     f.workDir,
	})
	if err != nil {
		t.Fatalf("NewConverter() error = %v", err)
	}
	f.conv = conv
	return f
}

func (f *converterFixture) assertWorkspaceEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace not cleaned up, found %d entries", len(entries))
	}
}

func TestNewConverterRequiresDependencies(t *testing.T) {
	store, blobs, tg := newMemStore(), newFakeBlobs(), &fakeTargeter{}

	tests := []struct {
		name string
		fn   func() (*Converter, error)
	}{
		{"nil store", func() (*Converter, error) { return NewConverter(nil, blobs, tg, tg, ConverterConfig{}) }},
		{"nil blobs", func() (*Converter, error) { return NewConverter(store, nil, tg, tg, ConverterConfig{}) }},
		{"nil targeter", func() (*Converter, error) { return NewConverter(store, blobs, nil, tg, ConverterConfig{}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(); err == nil {
				t.Error("expected error")
			}
		})
	}

	conv, err := NewConverter(store, blobs, tg, tg, ConverterConfig{})
	if err != nil {
		t.Fatalf("NewConverter() error = %v", err)
	}
	if conv.targetBytes != DefaultTargetBytes {
		t.Errorf("targetBytes = %d, want %d", conv.targetBytes, DefaultTargetBytes)
	}
}

func TestConverterSmallOriginalPassesThrough(t *testing.T) {
	f := newConverterFixture(t)
	f.blobs.add("uploads/a-small.png", testTarget, "image/png")

	if err := f.conv.Run(t.Context(), "uploads/a-small.png"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if f.images.calls+f.videos.calls != 0 {
		t.Error("targeter must not run for an original within budget")
	}
	rec := f.store.records["uploads/a-small.png"]
	if rec.State != StateCompleted {
		t.Fatalf("state = %s, want completed", rec.State)
	}
	if rec.Output != "uploads/a-small.png" {
		t.Errorf("output = %q, want the source key", rec.Output)
	}
	if rec.OutputType != "image/png" {
		t.Errorf("outputType = %q", rec.OutputType)
	}
	if !strings.Contains(rec.Note, "original already <=") {
		t.Errorf("note = %q", rec.Note)
	}
	if len(f.blobs.puts) != 0 {
		t.Errorf("unexpected uploads: %v", f.blobs.puts)
	}
	if got := f.store.states("uploads/a-small.png"); !slices.Equal(got, []State{StateProcessing, StateCompleted}) {
		t.Errorf("history = %v", got)
	}
}

func TestConverterConvertsByKind(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		kind        mediatypes.Kind
		wantOutput  string
		wantType    string
		wantSize    int64
		wantImage   bool
		wantAttempt int
	}{
		{
			name:        "image",
			key:         "uploads/id-holiday.heic",
			kind:        mediatypes.KindImage,
			wantOutput:  "processed/id-holiday.jpg",
			wantType:    mediatypes.ContentTypeJPEG,
			wantSize:    600,
			wantImage:   true,
			wantAttempt: 2,
		},
		{
			name:        "video",
			key:         "uploads/id-clip.mov",
			kind:        mediatypes.KindVideo,
			wantOutput:  "processed/id-clip.mp4",
			wantType:    mediatypes.ContentTypeMP4,
			wantSize:    900,
			wantAttempt: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newConverterFixture(t)
			f.conv.classify = func(string, string) mediatypes.Kind { return tt.kind }
			f.blobs.add(tt.key, 5000, "application/octet-stream")

			if err := f.conv.Run(t.Context(), tt.key); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if tt.wantImage && f.images.calls != 1 {
				t.Errorf("image targeter calls = %d", f.images.calls)
			}
			if !tt.wantImage && f.videos.calls != 1 {
				t.Errorf("video targeter calls = %d", f.videos.calls)
			}

			rec := f.store.records[tt.key]
			if rec.State != StateCompleted {
				t.Fatalf("state = %s, want completed", rec.State)
			}
			if rec.Output != tt.wantOutput {
				t.Errorf("output = %q, want %q", rec.Output, tt.wantOutput)
			}
			if rec.OutputType != tt.wantType {
				t.Errorf("outputType = %q, want %q", rec.OutputType, tt.wantType)
			}
			if rec.OutputSize != tt.wantSize {
				t.Errorf("outputSize = %d, want %d", rec.OutputSize, tt.wantSize)
			}
			if rec.Attempts != tt.wantAttempt {
				t.Errorf("attempts = %d, want %d", rec.Attempts, tt.wantAttempt)
			}
			if rec.Kind != string(tt.kind) {
				t.Errorf("kind = %q", rec.Kind)
			}
			if rec.OverTarget {
				t.Error("overTarget should be false")
			}
			if got := f.blobs.objects[tt.wantOutput].contentType; got != tt.wantType {
				t.Errorf("uploaded content type = %q", got)
			}
			if got := f.store.states(tt.key); !slices.Equal(got, []State{StateProcessing, StateCompleted}) {
				t.Errorf("history = %v", got)
			}
			f.assertWorkspaceEmpty(t)
		})
	}
}

func TestConverterKeepsExtensionHint(t *testing.T) {
	f := newConverterFixture(t)
	f.conv.classify = func(string, string) mediatypes.Kind { return mediatypes.KindVideo }
	f.blobs.add("uploads/x-clip.MKV", 5000, "")

	if err := f.conv.Run(t.Context(), "uploads/x-clip.MKV"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.HasSuffix(f.videos.lastSrc, "source.mkv") {
		t.Errorf("source path = %q, want .mkv suffix", f.videos.lastSrc)
	}
}

func TestConverterRecordsFailure(t *testing.T) {
	f := newConverterFixture(t)
	f.conv.classify = func(string, string) mediatypes.Kind { return mediatypes.KindVideo }
	f.videos.err = errors.New("ffmpeg encode: exit status 1: moov atom not found")
	f.blobs.add("uploads/x-broken.mp4", 5000, "video/mp4")

	err := f.conv.Run(t.Context(), "uploads/x-broken.mp4")
	if err == nil {
		t.Fatal("expected error")
	}

	rec := f.store.records["uploads/x-broken.mp4"]
	if rec.State != StateFailure {
		t.Fatalf("state = %s, want failure", rec.State)
	}
	if rec.Error == "" {
		t.Error("failure record must carry an error")
	}
	if rec.Output != "" {
		t.Errorf("failure record must not carry an output, got %q", rec.Output)
	}
	if len(f.blobs.puts) != 0 {
		t.Errorf("nothing should be uploaded, got %v", f.blobs.puts)
	}
	f.assertWorkspaceEmpty(t)
}

func TestConverterMissingSourceFails(t *testing.T) {
	f := newConverterFixture(t)

	if err := f.conv.Run(t.Context(), "uploads/gone.jpg"); err == nil {
		t.Fatal("expected error")
	}
	if rec := f.store.records["uploads/gone.jpg"]; rec == nil || rec.State != StateFailure {
		t.Fatalf("record = %+v, want failure", rec)
	}
}

func TestConverterSkipsTerminalJobs(t *testing.T) {
	for _, state := range []State{StateCompleted, StateFailure} {
		t.Run(string(state), func(t *testing.T) {
			f := newConverterFixture(t)
			f.blobs.add("uploads/a.mov", 5000, "")
			prev := &Record{State: state, Source: "uploads/a.mov"}
			if state == StateCompleted {
				prev.Output = "processed/a.mp4"
			} else {
				prev.Error = "boom"
			}
			if err := f.store.Put(t.Context(), "uploads/a.mov", prev); err != nil {
				t.Fatalf("seed Put() error = %v", err)
			}

			if err := f.conv.Run(t.Context(), "uploads/a.mov"); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if f.videos.calls+f.images.calls != 0 {
				t.Error("terminal job must not be converted again")
			}
			if got := f.store.states("uploads/a.mov"); !slices.Equal(got, []State{state}) {
				t.Errorf("history = %v", got)
			}
		})
	}
}

func TestConverterOverTarget(t *testing.T) {
	f := newConverterFixture(t)
	f.conv.classify = func(string, string) mediatypes.Kind { return mediatypes.KindImage }
	f.images.size = 1500
	f.blobs.add("uploads/a-huge.tiff", 9000, "image/tiff")

	if err := f.conv.Run(t.Context(), "uploads/a-huge.tiff"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	rec := f.store.records["uploads/a-huge.tiff"]
	if rec.State != StateCompleted {
		t.Fatalf("state = %s, want completed", rec.State)
	}
	if !rec.OverTarget {
		t.Error("overTarget should be set when the best effort exceeds the budget")
	}
	if rec.Output != "processed/a-huge.jpg" {
		t.Errorf("output = %q", rec.Output)
	}
}

func TestConverterCompletedWriteFailure(t *testing.T) {
	f := newConverterFixture(t)
	f.conv.classify = func(string, string) mediatypes.Kind { return mediatypes.KindImage }
	f.store.putErr[StateCompleted] = errors.New("store unavailable")
	f.blobs.add("uploads/a.png", 5000, "image/png")

	if err := f.conv.Run(t.Context(), "uploads/a.png"); err == nil {
		t.Fatal("expected error")
	}
	if rec := f.store.records["uploads/a.png"]; rec.State != StateFailure {
		t.Errorf("state = %s, want failure", rec.State)
	}
}

func TestConverterLosesRaceToOtherDelivery(t *testing.T) {
	f := newConverterFixture(t)
	f.conv.classify = func(string, string) mediatypes.Kind { return mediatypes.KindImage }
	f.blobs.add("uploads/a.png", 5000, "image/png")
	f.images.hook = func() {
		other := &Record{State: StateFailure, Source: "uploads/a.png", Error: "other delivery"}
		if err := f.store.Put(context.Background(), "uploads/a.png", other); err != nil {
			t.Errorf("seed Put() error = %v", err)
		}
	}
	duplicates := metrics.ConversionJobsTotal.WithLabelValues("image", "duplicate")
	failures := metrics.ConversionJobsTotal.WithLabelValues("image", "failure")
	dupBefore, failBefore := testutil.ToFloat64(duplicates), testutil.ToFloat64(failures)

	if err := f.conv.Run(t.Context(), "uploads/a.png"); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}

	rec := f.store.records["uploads/a.png"]
	if rec.State != StateFailure || rec.Error != "other delivery" {
		t.Errorf("record = %+v, want the other delivery's result kept", *rec)
	}
	if got := f.store.states("uploads/a.png"); !slices.Equal(got, []State{StateProcessing, StateFailure}) {
		t.Errorf("history = %v", got)
	}
	if got := testutil.ToFloat64(duplicates) - dupBefore; got != 1 {
		t.Errorf("duplicate count delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(failures) - failBefore; got != 0 {
		t.Errorf("failure count delta = %v, want 0", got)
	}
	f.assertWorkspaceEmpty(t)
}

func TestConverterFailureWrittenAfterCancel(t *testing.T) {
	f := newConverterFixture(t)
	f.conv.classify = func(string, string) mediatypes.Kind { return mediatypes.KindVideo }

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	f.videos.hook = cancel
	f.videos.err = context.Canceled
	f.blobs.add("uploads/a.mov", 5000, "")

	if err := f.conv.Run(ctx, "uploads/a.mov"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if rec := f.store.records["uploads/a.mov"]; rec.State != StateFailure {
		t.Errorf("state = %s, want failure recorded despite cancellation", rec.State)
	}
}

func TestConverterStoreReadError(t *testing.T) {
	f := newConverterFixture(t)
	f.store.getErr = errors.New("connection refused")

	if err := f.conv.Run(t.Context(), "uploads/a.mov"); err == nil {
		t.Fatal("expected error")
	}
	if len(f.store.records) != 0 {
		t.Error("nothing should be written when the status store cannot be read")
	}
}

func TestSafeExt(t *testing.T) {
	tests := map[string]string{
		"uploads/a.MOV":       ".mov",
		"uploads/a.jpeg":      ".jpeg",
		"uploads/noext":       "",
		"uploads/a.tar.gz":    ".gz",
		"uploads/a.we!rd":     "",
		"uploads/a.toolongxx": "",
	}
	for in, want := range tests {
		if got := safeExt(in); got != want {
			t.Errorf("safeExt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatBudget(t *testing.T) {
	if got := formatBudget(DefaultTargetBytes); got != "5MB" {
		t.Errorf("formatBudget(5MiB) = %q", got)
	}
	if got := formatBudget(1000); got != "1000 bytes" {
		t.Errorf("formatBudget(1000) = %q", got)
	}
}
