package scan

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/audiovet/audiovet/internal/decoder"
)

// worker is the body of one pool goroutine. It sleeps on the disjunction
// of the terminate and pending events; a pending raise lowers its
// finished event, drains the queue one file at a time, then raises
// finished again and offers to finalize the run.
func (c *Coordinator) worker(id int) {
	for {
		select {
		case <-c.terminate.C():
			return
		case <-c.pending.C():
		}
		// Terminate wins when both events are raised at once.
		if c.terminate.IsSet() {
			return
		}

		c.finished[id].Reset()
		for !c.terminate.IsSet() {
			path, ok := c.nextFile()
			if !ok {
				break
			}
			c.processFile(id, path)
		}
		c.progress.setFraction(id, 0)
		c.sink.WorkerFraction(id, 0)
		c.finished[id].Set()

		c.tryFinalize()
	}
}

// processFile validates one file end to end. The decoder open runs under
// the shared lock (one reader initiates a file at a time); the drain loop
// runs outside it, in parallel across workers.
func (c *Coordinator) processFile(id int, path string) {
	c.mu.Lock()
	dec, derr := c.factory.Open(path)
	c.mu.Unlock()

	rec := FileRecord{Path: path}
	if derr != nil {
		rec.Err = derr
		slog.Debug("open failed", "path", path, "error", derr)
		c.postRecord(rec)
		return
	}
	defer dec.Close()

	total := dec.Total()
	if total == 0 {
		total = defaultUnitTotal
	}

	var done uint64
	for {
		if c.terminate.IsSet() {
			// Shutdown interrupted the file; no record for a half-read.
			return
		}
		n, err := dec.Read()
		if err != nil {
			rec.Err = asDecoderError(err)
			break
		}
		if n == 0 {
			break
		}
		done += uint64(n)
		fraction := float64(done) / float64(total)
		if fraction > 1 {
			fraction = 1
		}
		c.progress.setFraction(id, fraction)
		c.sink.WorkerFraction(id, fraction)
	}

	if rec.Err != nil {
		slog.Debug("file failed", "path", path, "error", rec.Err)
	}
	c.postRecord(rec)
}

// asDecoderError coerces a drain-step error into the taxonomy. Decoders
// only ever return *decoder.Error; anything else is wrapped so the
// record keeps its typed shape.
func asDecoderError(err error) *decoder.Error {
	var derr *decoder.Error
	if errors.As(err, &derr) {
		return derr
	}
	return &decoder.Error{Kind: decoder.FormatSpecific, Detail: err.Error()}
}

// formatFileStatus renders the per-file progress line.
func formatFileStatus(processed, total int64, rec FileRecord) string {
	if rec.Err != nil {
		return fmt.Sprintf("[%d/%d]  %s\t<%s>", processed, total, rec.Path, rec.Err.Detail)
	}
	return fmt.Sprintf("[%d/%d]  %s", processed, total, rec.Path)
}
