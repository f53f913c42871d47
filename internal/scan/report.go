package scan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/audiovet/audiovet/internal/decoder"
)

// FileRecord is the outcome of validating one file. A nil Err means the
// file passed. Records are born in workers and consumed once by the
// report aggregation.
type FileRecord struct {
	Path string
	Err  *decoder.Error
}

// Report aggregates the records of one run: files that passed sorted by
// path, and failed files mapped to their error details.
type Report struct {
	Passed    []string
	Failed    map[string][]string
	Processed int64
	Elapsed   time.Duration
}

func newReport() *Report {
	return &Report{Failed: make(map[string][]string)}
}

// add consumes one record.
func (r *Report) add(rec FileRecord) {
	if rec.Err != nil {
		r.Failed[rec.Path] = append(r.Failed[rec.Path], rec.Err.Detail)
		return
	}
	r.Passed = append(r.Passed, rec.Path)
}

// finish sorts the passed list and stamps the elapsed time.
func (r *Report) finish(elapsed time.Duration) {
	sort.Strings(r.Passed)
	r.Elapsed = elapsed
}

// Summary is the one-line result header.
func (r *Report) Summary() string {
	secs := 0.0
	if r.Processed > 0 {
		secs = r.Elapsed.Seconds()
	}
	return fmt.Sprintf("%d %s scanned in %.2f seconds", r.Processed, fileWord(r.Processed), secs)
}

// String renders the full report: summary, the failed files with their
// details, then the passed files sorted by path.
func (r *Report) String() string {
	var b strings.Builder
	b.WriteString("[Final Report]\n---\n")
	b.WriteString(r.Summary())

	fmt.Fprintf(&b, "\n---\n%d %s failed", len(r.Failed), fileWord(int64(len(r.Failed))))
	failed := make([]string, 0, len(r.Failed))
	for path := range r.Failed {
		failed = append(failed, path)
	}
	sort.Strings(failed)
	for _, path := range failed {
		b.WriteString("\n")
		b.WriteString(path)
		for _, detail := range r.Failed[path] {
			fmt.Fprintf(&b, "\t<%s>", detail)
		}
	}

	fmt.Fprintf(&b, "\n---\n%d %s passed", len(r.Passed), fileWord(int64(len(r.Passed))))
	for _, path := range r.Passed {
		b.WriteString("\n")
		b.WriteString(path)
	}
	b.WriteString("\n")
	return b.String()
}

func fileWord(n int64) string {
	if n == 1 {
		return "file"
	}
	return "files"
}
