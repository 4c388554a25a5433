package resample

import (
	"runtime"
	"sync"
)

// runTileJobs fans n independent jobs out over a fixed worker pool. Jobs
// write to disjoint output regions, so no synchronization beyond the pool
// itself is needed. workers <= 0 uses one worker per CPU.
func runTileJobs(n, workers int, fn func(t int)) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for t := 0; t < n; t++ {
			fn(t)
		}
		return
	}

	jobs := make(chan int, n)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				fn(t)
			}
		}()
	}
	for t := 0; t < n; t++ {
		jobs <- t
	}
	close(jobs)
	wg.Wait()
}
