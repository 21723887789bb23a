// Package sizing searches encoder settings for an output that fits a byte
// budget.
//
// A Ladder is an ordered list of Rungs, each carrying the parameters for
// one encoder invocation. Run walks the ladder and stops at the first rung
// whose output fits; a rung marked Final is accepted whatever its size, so
// every ladder ends with a best-effort result.
//
// ImageTargeter walks a JPEG quality ladder (85 down to 45 in steps of 10 at
// 1920px, then 30 at 1280px). VideoTargeter probes the duration, derives a
// bitrate with EstimateVideoKbps and tries at most two encodes.
package sizing
