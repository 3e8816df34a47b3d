// internal/state/rollup.go
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownPeriod is returned for a rollup period other than Periods.
var ErrUnknownPeriod = errors.New("unknown period")

// Periods lists the accepted rollup windows.
var Periods = []string{"day", "week", "month", "all"}

// RuleStats aggregates one rule's executions.
type RuleStats struct {
	RuleName           string  `json:"rule_name"`
	Executions         int     `json:"executions"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
	SuccessRate        float64 `json:"success_rate"` // percent
}

// SystemStats averages the performance samples in a window. Averages are
// nil when there is nothing to average.
type SystemStats struct {
	Samples    int      `json:"samples"`
	AvgCPU     *float64 `json:"avg_cpu"`
	AvgMemory  *float64 `json:"avg_memory"`
	AvgBattery *float64 `json:"avg_battery"`
	AvgNetwork *float64 `json:"avg_network"`
}

// Rollup is the analytics summary for a period.
type Rollup struct {
	Period         string      `json:"period"`
	ExecutionStats []RuleStats `json:"execution_stats"`
	MostActiveRule string      `json:"most_active_rule,omitempty"`
	SystemStats    SystemStats `json:"system_stats"`
	// HourlyData counts executions per local hour of day.
	HourlyData [24]int `json:"hourly_data"`
}

// PeriodStart returns the start of the window for period relative to now.
// "all" returns the zero time.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case "day":
		return now.AddDate(0, 0, -1), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, 0, -30), nil
	case "all":
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("%w %q (want day, week, month or all)", ErrUnknownPeriod, period)
	}
}

// Rollup aggregates executions and samples recorded within period. It only
// reads, so repeated calls without new writes return the same result.
func (d *DB) Rollup(period string) (*Rollup, error) {
	start, err := PeriodStart(period, d.now())
	if err != nil {
		return nil, err
	}
	since := int64(0)
	if !start.IsZero() {
		since = start.UnixMilli()
	}

	r := &Rollup{Period: period, ExecutionStats: []RuleStats{}}

	rows, err := d.db.Query(`
		SELECT rule_name,
		       COUNT(*),
		       AVG(duration_seconds),
		       AVG(CASE WHEN success THEN 100.0 ELSE 0.0 END)
		FROM executions
		WHERE timestamp >= ?
		GROUP BY rule_name
		ORDER BY rule_name`, since)
	if err != nil {
		return nil, fmt.Errorf("querying execution stats: %w", err)
	}
	best := 0
	for rows.Next() {
		var s RuleStats
		if err := rows.Scan(&s.RuleName, &s.Executions, &s.AvgDurationSeconds, &s.SuccessRate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning execution stats: %w", err)
		}
		r.ExecutionStats = append(r.ExecutionStats, s)
		// ties go to the alphabetically first rule
		if s.Executions > best {
			best = s.Executions
			r.MostActiveRule = s.RuleName
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading execution stats: %w", err)
	}

	var cpu, mem, batt, net sql.NullFloat64
	err = d.db.QueryRow(`
		SELECT COUNT(*),
		       AVG(cpu_percent),
		       AVG(memory_percent),
		       AVG(battery_percent),
		       AVG(network_bytes_per_sec)
		FROM system_metrics
		WHERE timestamp >= ?`, since).Scan(&r.SystemStats.Samples, &cpu, &mem, &batt, &net)
	if err != nil {
		return nil, fmt.Errorf("querying system stats: %w", err)
	}
	r.SystemStats.AvgCPU = nullable(cpu)
	r.SystemStats.AvgMemory = nullable(mem)
	r.SystemStats.AvgBattery = nullable(batt)
	r.SystemStats.AvgNetwork = nullable(net)

	// Hours are bucketed in Go so they follow the process's local zone.
	tsRows, err := d.db.Query("SELECT timestamp FROM executions WHERE timestamp >= ?", since)
	if err != nil {
		return nil, fmt.Errorf("querying hourly data: %w", err)
	}
	defer tsRows.Close()
	for tsRows.Next() {
		var ts int64
		if err := tsRows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scanning hourly data: %w", err)
		}
		r.HourlyData[time.UnixMilli(ts).Hour()]++
	}
	if err := tsRows.Err(); err != nil {
		return nil, fmt.Errorf("reading hourly data: %w", err)
	}

	return r, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
