/*
Package workers sizes worker pools from the CPUs the process may actually
use.

In a container, runtime.NumCPU reports the host's CPUs while GOMAXPROCS
follows the cgroup limit. Every helper here starts from GOMAXPROCS:

	// conversion jobs: each runs a multi-threaded ffmpeg, so 1 per 2 CPUs
	concurrency := workers.ForConversions(8)

	// split the CPUs between those jobs for ffmpeg -threads
	threads := workers.ThreadsPerWorker(concurrency)

Count takes an arbitrary multiplier and cap (0 for none).

# Environment Variable Override

All functions respect WORKER_CONCURRENCY, which pins the count (still
subject to the cap):

	env:
	- name: WORKER_CONCURRENCY
	  value: "2"

Invalid or non-positive values are ignored.
*/
package workers
