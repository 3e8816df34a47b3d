// internal/suggest/events.go
package suggest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/colebrumley/appflow/internal/logging"
)

// Launch is one "launch -> name" entry from the event log.
type Launch struct {
	Time time.Time
	App  string
}

var launchLine = regexp.MustCompile(`\[(.*?)\]\s+launch -> (.+)`)

// Parse reads launch events from an event log. Lines that are not launch
// entries or carry an unparseable timestamp are skipped. The result is
// ordered by time; equal timestamps keep their file order.
func Parse(r io.Reader) ([]Launch, error) {
	var events []Launch
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := launchLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		ts, err := time.ParseInLocation(logging.EventTimeLayout, m[1], time.Local)
		if err != nil {
			continue
		}
		app := strings.TrimSpace(m[2])
		if app == "" {
			continue
		}
		events = append(events, Launch{Time: ts, App: app})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time.Before(events[j].Time)
	})
	return events, nil
}

// ParseFile is Parse over a file. A missing file yields no events.
func ParseFile(path string) ([]Launch, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()
	return Parse(f)
}
