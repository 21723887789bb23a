package sizing

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyOutput is returned when an encoder reports success but produced
// no bytes.
var ErrEmptyOutput = errors.New("encoder produced an empty output")

// Rung is one encoder setting on a ladder.
type Rung[P any] struct {
	Name   string
	Params P
	// Final accepts the result regardless of size and ends the ladder.
	Final bool
}

// Ladder is an ordered list of settings, most faithful first.
type Ladder[P any] []Rung[P]

// Attempt records one encoder invocation.
type Attempt struct {
	Rung   string
	Params any
	Size   int64
}

// Outcome is the result of walking a ladder.
type Outcome struct {
	// Rung is the name of the accepted rung.
	Rung string
	// Size of the accepted output in bytes.
	Size int64
	// MetTarget is false when only the final best-effort rung was accepted
	// and its output is still over budget.
	MetTarget bool
	Attempts  []Attempt
}

// EncodeFunc performs one encode and reports the output size.
type EncodeFunc[P any] func(ctx context.Context, params P) (int64, error)

// Run invokes encode once per rung until an output fits targetBytes or a
// Final rung is reached. If the ladder has no Final rung and nothing fits,
// the last attempt is returned with MetTarget false. An encoder error ends
// the walk; the attempts made so far are returned with it.
func Run[P any](ctx context.Context, ladder Ladder[P], targetBytes int64, encode EncodeFunc[P]) (*Outcome, error) {
	if len(ladder) == 0 {
		return nil, errors.New("empty ladder")
	}

	out := &Outcome{}
	for _, rung := range ladder {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		size, err := encode(ctx, rung.Params)
		if err != nil {
			return out, fmt.Errorf("rung %s: %w", rung.Name, err)
		}
		if size <= 0 {
			return out, fmt.Errorf("rung %s: %w", rung.Name, ErrEmptyOutput)
		}

		out.Attempts = append(out.Attempts, Attempt{Rung: rung.Name, Params: rung.Params, Size: size})
		out.Rung = rung.Name
		out.Size = size
		out.MetTarget = size <= targetBytes

		if out.MetTarget || rung.Final {
			return out, nil
		}
	}
	return out, nil
}
