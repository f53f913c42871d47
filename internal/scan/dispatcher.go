package scan

import "log/slog"

// dispatcher is the single background goroutine that turns queued
// directories into queued files. A recursive walk can take seconds on
// cold storage, so it never runs on an ingestion goroutine.
//
// Discovered paths accumulate locally across queued directories and are
// spliced into the work queue in one locked operation once the scan
// queue drains, minimizing lock hold time. A cancellation observed
// during the walk discards the accumulated paths instead.
func (c *Coordinator) dispatcher() {
	var accum []string

	for {
		select {
		case <-c.terminate.C():
			return
		case <-c.scanPending.C():
		}
		if c.terminate.IsSet() {
			return
		}

		for {
			c.mu.Lock()
			dir, ok := c.scans.pop()
			if !ok {
				c.scanPending.Reset()
				c.mu.Unlock()
				break
			}
			c.scanRunning = true
			c.mu.Unlock()

			c.sink.StatusTransient("Message: Searching for supported Files. Please wait...")
			found := walkTree(dir, func(p string) bool {
				_, ok := c.factory.Classify(p)
				return ok
			}, c.isStopping)
			c.sink.StatusTransient("Message: Finished searching for supported Files.")
			slog.Debug("directory scanned", "dir", dir, "supported", len(found))

			accum = append(accum, found...)

			c.mu.Lock()
			c.scanRunning = false
			switch {
			case c.stopping:
				// The user stopped while the walk was busy; the results
				// of this scan are void.
				accum = nil
				c.work.clear()
				c.scans.clear()
				c.mu.Unlock()
				c.tryFinalize()
			case c.scans.empty():
				// All queued directories are done; one splice publishes
				// the whole batch.
				c.work.pushMany(accum)
				c.progress.total.Add(int64(len(accum)))
				accum = nil
				c.startRunLocked()
				c.pending.Set()
				total := c.progress.Total()
				c.mu.Unlock()
				c.sink.TotalSet(total)
				c.sink.Status("Status: Running")
			default:
				c.mu.Unlock()
			}
		}
	}
}
