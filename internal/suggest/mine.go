// internal/suggest/mine.go
package suggest

import (
	"fmt"
	"time"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultWindow   = 300 * time.Second
	DefaultMinCount = 2
	// LowBattery is the level below which the battery advisory is emitted.
	LowBattery = 20.0
	// minLaunches is how many launches an app needs before its launch hour
	// is considered a habit.
	minLaunches = 3
)

// Kind classifies a suggestion.
type Kind string

const (
	KindSequence Kind = "sequence"
	KindTime     Kind = "time"
	KindBattery  Kind = "battery"
)

// Pair is an ordered pair of apps launched back to back.
type Pair struct {
	First, Second string
}

// PairCount is a pair with how often it was seen.
type PairCount struct {
	Pair
	Count int
}

// TimePattern is an app's most common launch hour.
type TimePattern struct {
	App       string
	Hour      int
	Frequency int
	Total     int
}

// Suggestion is one mined recommendation. Exactly one of Pair or Pattern is
// set for sequence and time suggestions; battery advisories carry neither.
type Suggestion struct {
	Kind    Kind
	Pair    *PairCount
	Pattern *TimePattern
}

func (s Suggestion) String() string {
	switch s.Kind {
	case KindSequence:
		return fmt.Sprintf("When '%s' starts, consider launching '%s' automatically (seen %d times)",
			s.Pair.First, s.Pair.Second, s.Pair.Count)
	case KindTime:
		return fmt.Sprintf("'%s' is frequently launched at %02d:00 (%d/%d times)",
			s.Pattern.App, s.Pattern.Hour, s.Pattern.Frequency, s.Pattern.Total)
	case KindBattery:
		return "Battery is low - consider creating rules to close non-essential apps automatically"
	}
	return string(s.Kind)
}

// Options tunes Mine.
type Options struct {
	Window   time.Duration
	MinCount int
	// Battery is the current battery level, nil when unknown.
	Battery *float64
}

// PairCounts counts strictly adjacent launches (A then B) whose gap is at
// most window. Pairs are returned in order of first occurrence.
func PairCounts(events []Launch, window time.Duration) []PairCount {
	idx := map[Pair]int{}
	var out []PairCount
	for i := 1; i < len(events); i++ {
		a, b := events[i-1], events[i]
		if b.Time.Sub(a.Time) > window {
			continue
		}
		p := Pair{a.App, b.App}
		if j, ok := idx[p]; ok {
			out[j].Count++
			continue
		}
		idx[p] = len(out)
		out = append(out, PairCount{Pair: p, Count: 1})
	}
	return out
}

// TimePatterns finds the modal launch hour of every app launched at least
// three times. Ties go to the earliest hour. Apps are returned in order of
// first launch.
func TimePatterns(events []Launch) []TimePattern {
	type hist struct {
		hours [24]int
		total int
	}
	byApp := map[string]*hist{}
	var order []string
	for _, e := range events {
		h, ok := byApp[e.App]
		if !ok {
			h = &hist{}
			byApp[e.App] = h
			order = append(order, e.App)
		}
		h.hours[e.Time.Hour()]++
		h.total++
	}

	var out []TimePattern
	for _, app := range order {
		h := byApp[app]
		if h.total < minLaunches {
			continue
		}
		best := 0
		for hour := 1; hour < 24; hour++ {
			if h.hours[hour] > h.hours[best] {
				best = hour
			}
		}
		out = append(out, TimePattern{App: app, Hour: best, Frequency: h.hours[best], Total: h.total})
	}
	return out
}

// Mine turns launch events into suggestions: sequential pairs seen at least
// MinCount times, habitual launch hours, and a low battery advisory. When
// both A->B and B->A qualify only the stronger direction is kept; on a tie
// the pair seen first wins.
func Mine(events []Launch, opts Options) []Suggestion {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MinCount <= 0 {
		opts.MinCount = DefaultMinCount
	}

	var out []Suggestion

	pairs := PairCounts(events, opts.Window)
	qualifying := map[Pair]int{}
	for i, pc := range pairs {
		if pc.Count >= opts.MinCount {
			qualifying[pc.Pair] = i
		}
	}
	for i, pc := range pairs {
		if pc.Count < opts.MinCount {
			continue
		}
		if pc.First != pc.Second {
			if j, ok := qualifying[Pair{pc.Second, pc.First}]; ok {
				rev := pairs[j]
				if rev.Count > pc.Count || (rev.Count == pc.Count && j < i) {
					continue
				}
			}
		}
		out = append(out, sequence(pc))
	}

	for _, tp := range TimePatterns(events) {
		if tp.Frequency >= opts.MinCount {
			out = append(out, Suggestion{Kind: KindTime, Pattern: &tp})
		}
	}

	if len(events) > 0 && opts.Battery != nil && *opts.Battery < LowBattery {
		out = append(out, Suggestion{Kind: KindBattery})
	}
	return out
}

func sequence(pc PairCount) Suggestion {
	return Suggestion{Kind: KindSequence, Pair: &pc}
}

// Sequences returns only the sequential pair suggestions.
func Sequences(suggestions []Suggestion) []PairCount {
	var out []PairCount
	for _, s := range suggestions {
		if s.Kind == KindSequence {
			out = append(out, *s.Pair)
		}
	}
	return out
}
