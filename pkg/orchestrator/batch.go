package orchestrator

import (
	"context"
	"runtime"
	"sync"
)

// ConvertBatch runs independent conversions on at most workers goroutines
// and returns their results in request order. workers <= 0 uses the CPU
// count. Requests picked up after ctx is done fail at the input stage.
func (o *Orchestrator) ConvertBatch(ctx context.Context, reqs []Request, workers int) []*Result {
	results := make([]*Result, len(reqs))
	if len(reqs) == 0 {
		return results
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(reqs) {
		workers = len(reqs)
	}

	jobs := make(chan int, len(reqs))
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = o.Convert(ctx, reqs[idx])
			}
		}()
	}

	for i := range reqs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}
