package scan

import (
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/audiovet/audiovet/internal/decoder"
)

// MaxWorkers caps the decode pool regardless of CPU count.
const MaxWorkers = 16

// Coordinator owns the whole pipeline: the work and scan queues, the
// synchronization events, the worker pool and scan dispatcher, the state
// flags, the progress counters and the report of the current run.
//
// One mutex guards the queues, the flags and report assembly. It is held
// only for O(1) operations, one O(batch) splice, and the open of a
// decoder: initiating one file read at a time measurably improves
// throughput on shared disks. All bulk reads happen outside the lock.
type Coordinator struct {
	factory  *decoder.Factory
	sink     Sink
	progress *Progress

	pending     *Event // work available; manual reset releases all workers
	scanPending *Event // directories queued for the dispatcher
	terminate   *Event // latched once, at Close

	finished []*Event // finished[i] set while worker i sits idle

	mu          sync.Mutex // the single shared lock
	idle        *sync.Cond // broadcast when the pipeline settles
	work        pathQueue
	scans       pathQueue
	stopping    bool
	scanRunning bool
	runActive   bool
	runStart    time.Time
	report      *Report

	done chan struct{} // closed when workers and dispatcher have exited
}

// New builds a Coordinator with the given worker count (0 selects
// min(GOMAXPROCS, MaxWorkers)) and starts its workers and dispatcher.
// With two or more workers the factory is switched to fully-buffered
// streams.
func New(factory *decoder.Factory, workers int, sink Sink) *Coordinator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if sink == nil {
		sink = NopSink{}
	}
	factory.SetBuffered(workers > 1)

	c := &Coordinator{
		factory:     factory,
		sink:        sink,
		progress:    newProgress(workers),
		pending:     NewEvent(false),
		scanPending: NewEvent(false),
		terminate:   NewEvent(false),
		report:      newReport(),
		done:        make(chan struct{}),
	}
	c.idle = sync.NewCond(&c.mu)
	for i := 0; i < workers; i++ {
		c.finished = append(c.finished, NewEvent(true))
	}

	exited := make(chan struct{}, workers+1)
	for i := 0; i < workers; i++ {
		go func(id int) {
			defer func() { exited <- struct{}{} }()
			c.worker(id)
		}(i)
	}
	go func() {
		defer func() { exited <- struct{}{} }()
		c.dispatcher()
	}()
	go func() {
		for i := 0; i < workers+1; i++ {
			<-exited
		}
		close(c.done)
	}()

	slog.Info("coordinator started", "workers", workers, "buffered", factory.Buffered())
	return c
}

// Progress exposes the live counters for the front end.
func (c *Coordinator) Progress() *Progress { return c.progress }

// AddPath routes a path by type: directories to the scan dispatcher,
// files to classification and direct enqueue. Unknown paths are dropped
// with a log line.
func (c *Coordinator) AddPath(path string) {
	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("add path", "path", path, "error", err)
		return
	}
	if info.IsDir() {
		c.AddDir(path)
		return
	}
	c.AddFile(path)
}

// AddFile classifies path and, when supported, enqueues it. Unsupported
// files are skipped silently; they never enter the queue.
func (c *Coordinator) AddFile(path string) {
	if _, ok := c.factory.Classify(path); !ok {
		return
	}
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return
	}
	c.work.push(path)
	c.progress.total.Add(1)
	c.startRunLocked()
	c.pending.Set()
	total := c.progress.Total()
	c.mu.Unlock()

	c.sink.TotalSet(total)
	c.sink.Status("Status: Running")
}

// AddDir queues path for the background scan dispatcher.
func (c *Coordinator) AddDir(path string) {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return
	}
	c.scans.push(path)
	c.scanPending.Set()
	c.mu.Unlock()
}

// Cancel requests a stop: both queues drain immediately, in-flight files
// complete, and further enqueues are rejected until the pipeline settles
// and the report is emitted. Calling Cancel while idle is a no-op;
// repeated calls during one run collapse into a single stop.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	if !c.runActive && !c.scanRunning && c.work.empty() && c.scans.empty() {
		c.mu.Unlock()
		return
	}
	c.stopping = true
	c.work.clear()
	c.scans.clear()
	c.mu.Unlock()

	c.sink.StatusTransient("Message: Stopping, waiting for workers to settle...")
	c.tryFinalize()
}

// Close shuts the pipeline down: the terminate event releases workers
// and dispatcher, and Close blocks until all have exited.
func (c *Coordinator) Close() {
	c.terminate.Set()
	<-c.done
}

// idleLocked reports whether the pipeline has fully settled: no active
// run, no scan in flight, both queues empty and every worker idle.
// Callers hold the mutex.
func (c *Coordinator) idleLocked() bool {
	if c.runActive || c.scanRunning || !c.work.empty() || !c.scans.empty() {
		return false
	}
	for _, ev := range c.finished {
		if !ev.IsSet() {
			return false
		}
	}
	return true
}

// Idle probes whether the pipeline has fully settled.
func (c *Coordinator) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idleLocked()
}

// WaitIdle blocks until the pipeline settles. The broadcast fires after
// the final report has been handed to the sink, so a caller returning
// from WaitIdle has every report of the preceding runs available.
func (c *Coordinator) WaitIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.idleLocked() {
		c.idle.Wait()
	}
}

// startRunLocked arms the run timer when every worker is idle, i.e. when
// this enqueue begins a fresh run rather than extending one.
func (c *Coordinator) startRunLocked() {
	if c.runActive {
		return
	}
	for _, ev := range c.finished {
		if !ev.IsSet() {
			return
		}
	}
	c.runActive = true
	c.runStart = time.Now()
}

// nextFile pops the next queued path. On an empty or cancelled queue it
// lowers the pending event and reports false.
func (c *Coordinator) nextFile() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return "", false
	}
	path, ok := c.work.pop()
	if !ok {
		c.pending.Reset()
	}
	return path, ok
}

// isStopping probes the cancellation flag.
func (c *Coordinator) isStopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}

// postRecord hands one finished file to the report.
func (c *Coordinator) postRecord(rec FileRecord) {
	c.mu.Lock()
	c.report.add(rec)
	c.mu.Unlock()
	processed := c.progress.processed.Add(1)
	total := c.progress.Total()

	c.sink.DoneInc()
	c.sink.StatusTransient(formatFileStatus(processed, total, rec))
}

// tryFinalize emits the report when the pipeline has fully settled: all
// FinishedEvents probe set (zero-timeout), both queues are empty and no
// scan is in flight. It also clears a pending cancellation, so the next
// run starts clean.
func (c *Coordinator) tryFinalize() {
	c.mu.Lock()
	if c.scanRunning || !c.scans.empty() || !c.work.empty() {
		c.mu.Unlock()
		return
	}
	for _, ev := range c.finished {
		if !ev.IsSet() {
			c.mu.Unlock()
			return
		}
	}
	c.stopping = false
	if !c.runActive {
		// Idle reached without a run to report (e.g. a cancelled scan
		// with no prior enqueue).
		c.idle.Broadcast()
		c.mu.Unlock()
		return
	}
	c.runActive = false
	rep := c.report
	c.report = newReport()
	rep.Processed = c.progress.Processed()
	elapsed := time.Since(c.runStart)
	c.progress.total.Store(0)
	c.progress.processed.Store(0)
	c.mu.Unlock()

	rep.finish(elapsed)
	slog.Info("run finished", "processed", rep.Processed,
		"passed", len(rep.Passed), "failed", len(rep.Failed),
		"elapsed", elapsed)
	c.sink.Status("Status: Finished Processing")
	c.sink.StatusTransient("Message: Selected Files and Folders have been processed.")
	c.sink.FinalReport(rep)

	c.mu.Lock()
	if c.idleLocked() {
		c.idle.Broadcast()
	}
	c.mu.Unlock()
}
