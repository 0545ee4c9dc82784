// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package orc

import (
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// A workCounter tracks outstanding work tokens. Wait blocks until the
// count reaches zero; since tasks may transitively submit more work, a
// token is always acquired before its task is enqueued, so the count
// can only reach zero at true quiescence.
type workCounter struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    int
}

func newWorkCounter() *workCounter {
	w := new(workCounter)
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *workCounter) acquire() {
	w.mu.Lock()
	w.n++
	w.mu.Unlock()
}

func (w *workCounter) release() {
	w.mu.Lock()
	w.n--
	zero := w.n == 0
	w.mu.Unlock()
	if zero {
		w.cond.Broadcast()
	}
}

func (w *workCounter) wait() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.n > 0 {
		w.cond.Wait()
	}
}

// A taskSystem is a worker pool over an unbounded queue. The queue must
// be unbounded: tasks submit more tasks, and a bounded channel would
// deadlock the submitting worker.
type taskSystem struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []func()

	startOnce sync.Once
}

func (s *taskSystem) start() {
	s.cond = sync.NewCond(&s.mu)
	for i := 0; i < runtime.GOMAXPROCS(0); i++ {
		go s.worker()
	}
}

func (s *taskSystem) worker() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			s.cond.Wait()
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		task()
	}
}

func (s *taskSystem) submit(task func()) {
	s.startOnce.Do(s.start)
	s.mu.Lock()
	s.queue = append(s.queue, task)
	s.mu.Unlock()
	s.cond.Signal()
}

var (
	work  = newWorkCounter()
	tasks taskSystem
)

// DoWork runs fn on the executor, or inline when parallel processing is
// off. Failures are captured and reported; they never stop the fan-out.
func DoWork(fn func()) {
	wrapped := func() {
		defer func() {
			if p := recover(); p != nil {
				Globals.FatalErrorCount.Add(1)
				logrus.Errorf("task failed: %v", p)
			}
		}()
		fn()
	}

	if !Config.Parallel {
		wrapped()
		return
	}

	work.acquire()
	tasks.submit(func() {
		defer work.release()
		wrapped()
	})
}
