// Package diagnostics counts physical-page allocations by call site and
// renders the counts as a pprof profile for offline analysis. It is a
// debug aid, gated behind a flag the caller controls, and never runs on
// the syscall fast path.
package diagnostics

import (
	"bytes"
	"encoding/base64"
	"runtime"
	"sync"

	"github.com/google/pprof/profile"
)

// site identifies one call site by its file and line, the same
// granularity runtime.Caller reports.
type site struct {
	file string
	line int
}

var (
	mu     sync.Mutex
	counts = map[site]int64{}
)

// Enabled gates whether PageAllocSite does any work. Left false unless a
// debug build or flag turns it on, since runtime.Caller is too slow for
// the allocator's steady-state path otherwise.
var Enabled bool

// PageAllocSite records one allocation attributed to the call site
// skip frames above its own caller, captured into a table instead of
// printed immediately.
func PageAllocSite(skip int) {
	if !Enabled {
		return
	}

	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return
	}

	s := site{file: file, line: line}

	mu.Lock()
	counts[s]++
	mu.Unlock()
}

// Snapshot converts the current call-site counters into a pprof
// profile with one "allocations"/"count" sample per site, gzip-encoded
// and base64-wrapped so it can be split across boot-log lines and later
// reassembled by a host-side script for `go tool pprof`.
func Snapshot() []string {
	mu.Lock()
	defer mu.Unlock()

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "allocations", Unit: "count"}},
	}

	functions := map[site]*profile.Function{}
	var nextID uint64 = 1

	for s, n := range counts {
		fn := functions[s]
		if fn == nil {
			fn = &profile.Function{
				ID:       nextID,
				Name:     s.file,
				Filename: s.file,
			}
			nextID++
			functions[s] = fn
			p.Function = append(p.Function, fn)
		}

		loc := &profile.Location{
			ID:   nextID,
			Line: []profile.Line{{Function: fn, Line: int64(s.line)}},
		}
		nextID++
		p.Location = append(p.Location, loc)

		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{n},
		})
	}

	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		return []string{"<diagnostics: profile encode failed: " + err.Error() + ">"}
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	return wrapLines(encoded, 76)
}

// wrapLines splits s into chunks of at most width bytes, since a boot
// console log is line-oriented.
func wrapLines(s string, width int) []string {
	var out []string
	for len(s) > width {
		out = append(out, s[:width])
		s = s[width:]
	}
	return append(out, s)
}
