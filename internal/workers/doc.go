/*
Package workers sizes and runs the small worker pools used by the analysis
pipeline.

# Overview

Inside containers the number of usable CPUs may be limited by cgroup
constraints. Go 1.19+ sets GOMAXPROCS from the container limit, but
runtime.NumCPU() still reports the host's CPU count, so worker counts are
derived from GOMAXPROCS:

	// Wrong: 64 on a 64-core node with a 2-CPU limit
	workers := runtime.NumCPU()

	// Correct: 2
	workers := runtime.GOMAXPROCS(0)

# Basic Usage

	// Descale and rescale every candidate of a frame in parallel
	n := workers.ForCPU(len(targets))
	err := workers.Each(ctx, len(targets), n, func(ctx context.Context, i int) error {
		errs[i], err = rescalers[i].Error(frame)
		return err
	})

	// Decoding both clips of a desync scan at once
	n := workers.ForIO(2)

# Environment Variable Override

All counts respect DESCALE_WORKERS:

	DESCALE_WORKERS=4 descale kernels --plan plan.yaml src.mkv

Setting it to 1 makes every pool run inline on the caller's goroutine,
which is handy when profiling or debugging a single frame.
*/
package workers
