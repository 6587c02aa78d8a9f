package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// maxLineSize bounds a single audit record while scanning.
const maxLineSize = 1024 * 1024

// TopN is the length of the ranked lists in Stats.
const TopN = 10

// Filter selects audit events. Zero-valued fields match everything.
type Filter struct {
	RoleID   string
	ToolName string
	Domain   string
	Allowed  *bool
	Kind     string
	Since    time.Time
	// Window restricts results to the trailing duration ending now.
	Window time.Duration
	// Limit keeps only the most recent N matches.
	Limit int
}

// Granted is a convenience for Filter.Allowed.
func Granted(allowed bool) *bool {
	return &allowed
}

func (f Filter) matches(ev Event, now time.Time) bool {
	if f.RoleID != "" && ev.RoleID != f.RoleID {
		return false
	}
	if f.ToolName != "" && ev.ToolName != f.ToolName {
		return false
	}
	if f.Domain != "" && ev.Domain != f.Domain {
		return false
	}
	if f.Allowed != nil && ev.Allowed != *f.Allowed {
		return false
	}
	if f.Kind != "" && ev.Kind() != f.Kind {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if f.Window > 0 && ev.Timestamp.Before(now.Add(-f.Window)) {
		return false
	}
	return true
}

// Query returns events matching f in file order. Malformed lines are
// skipped.
func (l *Log) Query(f Filter) ([]Event, error) {
	now := l.now()
	var out []Event
	err := l.scan(func(line []byte) {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return
		}
		if f.matches(ev, now) {
			out = append(out, ev)
		}
	})
	if err != nil {
		return nil, err
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// Count is a name with its number of occurrences.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats aggregates audit events.
type Stats struct {
	Total      int     `json:"total"`
	Granted    int     `json:"granted"`
	Denied     int     `json:"denied"`
	GrantRate  float64 `json:"grant_rate"`
	TopTools   []Count `json:"top_tools"`
	TopRoles   []Count `json:"top_roles"`
	TopDomains []Count `json:"top_domains"`
	MostDenied []Count `json:"most_denied"`
}

// Stats summarizes the events matching f.
func (l *Log) Stats(f Filter) (Stats, error) {
	f.Limit = 0
	events, err := l.Query(f)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(events), nil
}

// Summarize computes Stats over events.
func Summarize(events []Event) Stats {
	tools := map[string]int{}
	roles := map[string]int{}
	domains := map[string]int{}
	denied := map[string]int{}

	var s Stats
	for _, ev := range events {
		s.Total++
		if ev.Allowed {
			s.Granted++
		} else {
			s.Denied++
			denied[ev.ToolName]++
		}
		tools[ev.ToolName]++
		if ev.RoleID != "" {
			roles[ev.RoleID]++
		}
		if ev.Domain != "" {
			domains[ev.Domain]++
		}
	}
	if s.Total > 0 {
		s.GrantRate = float64(s.Granted) / float64(s.Total)
	}
	s.TopTools = rank(tools)
	s.TopRoles = rank(roles)
	s.TopDomains = rank(domains)
	s.MostDenied = rank(denied)
	return s
}

func rank(counts map[string]int) []Count {
	out := make([]Count, 0, len(counts))
	for name, n := range counts {
		out = append(out, Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > TopN {
		out = out[:TopN]
	}
	return out
}

// scan calls fn for every non-empty line of the audit file.
func (l *Log) scan(fn func(line []byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	return scanLines(file, fn)
}

func scanLines(r io.Reader, fn func(line []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		fn(line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	return nil
}
