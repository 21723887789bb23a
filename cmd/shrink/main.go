package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"media-shrinker/internal/jobs"
	"media-shrinker/internal/logging"
	"media-shrinker/internal/mediatypes"
	"media-shrinker/internal/sizing"
	"media-shrinker/internal/transcoder"
)

type options struct {
	input   string
	output  string
	target  int64
	encoder string
	json    bool
}

// report is what shrink prints after a run.
type report struct {
	Input      string `json:"input"`
	InputSize  int64  `json:"inputSize"`
	Kind       string `json:"kind"`
	Output     string `json:"output,omitempty"`
	OutputSize int64  `json:"outputSize,omitempty"`
	Target     int64  `json:"target"`
	MetTarget  bool   `json:"metTarget"`
	Skipped    bool   `json:"skipped,omitempty"`
	Rung       string `json:"rung,omitempty"`
	Attempts   int    `json:"attempts"`
	VideoKbps  int    `json:"videoKbps,omitempty"`
}

const (
	exitOK = iota
	exitError
	exitUsage
	exitOverTarget
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout *os.File, stderr io.Writer) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer logging.Sync()

	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if !opts.json && !term.IsTerminal(int(stdout.Fd())) {
		opts.json = true
	}

	rep, err := shrink(ctx, opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if err := writeReport(stdout, rep, opts.json); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if !rep.MetTarget && !rep.Skipped {
		return exitOverTarget
	}
	return exitOK
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("shrink", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: shrink [flags] <input>")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Re-encodes an image or video so it fits the target size.")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	opts := &options{}
	fs.StringVar(&opts.output, "o", "", "output path (default: <input>.shrunk.jpg or .mp4)")
	fs.Int64Var(&opts.target, "target", jobs.DefaultTargetBytes, "size budget in bytes")
	fs.StringVar(&opts.encoder, "encoder", transcoder.EncoderAuto, "image encoder: auto, native, vips or ffmpeg")
	fs.BoolVar(&opts.json, "json", false, "print the report as JSON (default when stdout is not a terminal)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, errors.New("exactly one input file is required")
	}
	if opts.target <= 0 {
		fmt.Fprintln(stderr, "-target must be positive")
		return nil, errors.New("invalid target")
	}
	opts.input = fs.Arg(0)
	return opts, nil
}

// defaultOutputPath places the result next to the input.
func defaultOutputPath(input string, kind mediatypes.Kind) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + ".shrunk" + mediatypes.OutputExtension(kind)
}

func shrink(ctx context.Context, opts *options) (*report, error) {
	info, err := os.Stat(opts.input)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", opts.input)
	}

	kind := mediatypes.Classify(opts.input, "")
	rep := &report{
		Input:     opts.input,
		InputSize: info.Size(),
		Kind:      string(kind),
		Target:    opts.target,
	}
	if info.Size() <= opts.target {
		rep.Skipped = true
		rep.MetTarget = true
		return rep, nil
	}

	ff, err := transcoder.NewFFmpeg()
	if err != nil {
		return nil, err
	}
	defer ff.Cleanup()

	var targeter jobs.SizeTargeter
	if kind == mediatypes.KindImage {
		if opts.encoder == transcoder.EncoderAuto || opts.encoder == transcoder.EncoderVips {
			if err := transcoder.InitVips(); err != nil {
				logging.Warn("libvips unavailable: %v", err)
			}
			defer transcoder.ShutdownVips()
		}
		enc, err := transcoder.NewImageEncoder(opts.encoder, ff)
		if err != nil {
			return nil, err
		}
		targeter = sizing.NewImageTargeter(enc, opts.target)
	} else {
		targeter = sizing.NewVideoTargeter(ff, opts.target)
	}

	output := opts.output
	if output == "" {
		output = defaultOutputPath(opts.input, kind)
	}
	if filepath.Clean(output) == filepath.Clean(opts.input) {
		return nil, errors.New("output must differ from input")
	}

	res, err := targeter.TargetSize(ctx, opts.input, output)
	if err != nil {
		return nil, err
	}
	rep.Output = res.Path
	rep.OutputSize = res.Size
	rep.MetTarget = res.MetTarget
	rep.Rung = res.Rung
	rep.Attempts = len(res.Attempts)
	rep.VideoKbps = res.VideoKbps
	return rep, nil
}

func writeReport(w io.Writer, rep *report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Fprintf(w, "Input:      %s (%s, %s)\n", rep.Input, humanBytes(rep.InputSize), rep.Kind)
	if rep.Skipped {
		fmt.Fprintf(w, "Already within %s, nothing to do\n", humanBytes(rep.Target))
		return nil
	}
	fmt.Fprintf(w, "Output:     %s (%s)\n", rep.Output, humanBytes(rep.OutputSize))
	fmt.Fprintf(w, "Setting:    %s after %d attempt(s)\n", rep.Rung, rep.Attempts)
	if rep.VideoKbps > 0 {
		fmt.Fprintf(w, "Bitrate:    %d kbps\n", rep.VideoKbps)
	}
	if rep.MetTarget {
		fmt.Fprintf(w, "Target:     %s [OK]\n", humanBytes(rep.Target))
	} else {
		fmt.Fprintf(w, "Target:     %s [OVER] smallest setting kept\n", humanBytes(rep.Target))
	}
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
