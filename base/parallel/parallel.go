// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package parallel

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/gorse-io/meeple/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Parallel runs nJobs jobs on nWorkers workers. No job starts after the first
// failure is recorded or once ctx is done. Jobs already running are not
// interrupted. The error of the smallest failed job id is returned.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(workerId, jobId int) error) error {
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			if err := worker(0, i); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}

	jobCtx, stop := context.WithCancel(ctx)
	defer stop()
	c := make(chan int)
	go func() {
		defer close(c)
		for i := 0; i < nJobs; i++ {
			select {
			case <-jobCtx.Done():
				return
			case c <- i:
			}
		}
	}()
	var wg sync.WaitGroup
	errs := make([]error, nJobs)
	for j := 0; j < nWorkers; j++ {
		workerId := j
		wg.Go(func() {
			for jobId := range c {
				if jobCtx.Err() != nil {
					continue
				}
				if err := run(worker, workerId, jobId); err != nil {
					errs[jobId] = err
					stop()
				}
			}
		})
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(ctx.Err())
}

// run converts a panic of the worker into an error.
func run(worker func(workerId, jobId int) error, workerId, jobId int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger().Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return worker(workerId, jobId)
}
