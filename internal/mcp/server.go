// internal/mcp/server.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/colebrumley/appflow/internal/probe"
	"github.com/colebrumley/appflow/internal/state"
	"github.com/colebrumley/appflow/internal/suggest"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported to MCP clients.
const Version = "0.2.0"

// Server exposes analytics and workflow suggestions as MCP tools.
type Server struct {
	db       *state.DB
	eventLog string
	reader   probe.Reader
	defaults suggest.Options
	server   *mcp.Server
}

// Options configures NewServer.
type Options struct {
	// EventLog is the path of the engine's event log, mined for suggestions.
	EventLog string
	// Reader supplies the battery level for the low battery advisory. May
	// be nil.
	Reader probe.Reader
	// Suggest holds the default mining window and threshold.
	Suggest suggest.Options
}

// AnalyticsInput is the input schema for the analytics_rollup tool
type AnalyticsInput struct {
	Period string `json:"period,omitempty" jsonschema:"One of day, week, month, all. Defaults to week"`
}

// AnalyticsOutput is the output schema for the analytics_rollup tool
type AnalyticsOutput struct {
	Rollup state.Rollup `json:"rollup"`
}

// HistoryInput is the input schema for the execution_history tool
type HistoryInput struct {
	Rule  string `json:"rule,omitempty" jsonschema:"Only executions of this rule"`
	State string `json:"state,omitempty" jsonschema:"Only success or failure executions"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum records to return (default 20)"`
}

// HistoryOutput is the output schema for the execution_history tool
type HistoryOutput struct {
	Executions []Execution `json:"executions"`
	Count      int         `json:"count"`
}

// Execution is a single record in history results
type Execution struct {
	RuleName        string  `json:"rule_name"`
	TriggerType     string  `json:"trigger_type"`
	State           string  `json:"state"`
	Timestamp       string  `json:"timestamp"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           string  `json:"error,omitempty"`
}

// SuggestInput is the input schema for the suggest_workflows tool
type SuggestInput struct {
	WindowSeconds int  `json:"window_seconds,omitempty" jsonschema:"Maximum gap between two launches to count as a sequence"`
	MinCount      int  `json:"min_count,omitempty" jsonschema:"Minimum occurrences before a pattern is suggested"`
	EmitRules     bool `json:"emit_rules,omitempty" jsonschema:"Also return YAML rule templates for sequence suggestions"`
}

// SuggestOutput is the output schema for the suggest_workflows tool
type SuggestOutput struct {
	Suggestions []string `json:"suggestions"`
	RulesYAML   string   `json:"rules_yaml,omitempty"`
}

// NewServer opens the analytics database and registers the tools.
func NewServer(dbPath string, opts Options) (*Server, error) {
	db, err := state.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening analytics database: %w", err)
	}

	s := &Server{db: db, eventLog: opts.EventLog, reader: opts.Reader, defaults: opts.Suggest}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "appflow",
		Version: Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analytics_rollup",
		Description: "Summarize rule executions and system load for a period: per-rule counts, average duration and success rate, the most active rule, average CPU/memory/battery/network, and executions per hour of day.",
	}, s.handleAnalytics)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "execution_history",
		Description: "List recent rule executions, newest first, optionally filtered by rule name and outcome.",
	}, s.handleHistory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest_workflows",
		Description: "Mine the launch history for apps that are usually started one after another or at the same hour, and suggest automation rules for them.",
	}, s.handleSuggest)

	s.server = server
	return s, nil
}

func (s *Server) handleAnalytics(ctx context.Context, req *mcp.CallToolRequest, input AnalyticsInput) (*mcp.CallToolResult, AnalyticsOutput, error) {
	period := input.Period
	if period == "" {
		period = "week"
	}
	rollup, err := s.db.Rollup(period)
	if err != nil {
		if errors.Is(err, state.ErrUnknownPeriod) {
			return nil, AnalyticsOutput{}, err
		}
		return nil, AnalyticsOutput{}, fmt.Errorf("failed to compute analytics: %w", err)
	}
	return nil, AnalyticsOutput{Rollup: *rollup}, nil
}

func (s *Server) handleHistory(ctx context.Context, req *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	records, err := s.db.GetHistory(input.Rule, input.State, limit)
	if err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("failed to read history: %w", err)
	}

	out := HistoryOutput{Executions: make([]Execution, len(records)), Count: len(records)}
	for i, r := range records {
		out.Executions[i] = Execution{
			RuleName:        r.RuleName,
			TriggerType:     r.TriggerType,
			State:           r.State(),
			Timestamp:       r.Timestamp.Format(time.RFC3339),
			DurationSeconds: r.Duration.Seconds(),
			Error:           r.Error,
		}
	}
	return nil, out, nil
}

func (s *Server) handleSuggest(ctx context.Context, req *mcp.CallToolRequest, input SuggestInput) (*mcp.CallToolResult, SuggestOutput, error) {
	events, err := suggest.ParseFile(s.eventLog)
	if err != nil {
		return nil, SuggestOutput{}, fmt.Errorf("failed to read event log: %w", err)
	}

	opts := s.defaults
	if input.WindowSeconds > 0 {
		opts.Window = time.Duration(input.WindowSeconds) * time.Second
	}
	if input.MinCount > 0 {
		opts.MinCount = input.MinCount
	}
	if s.reader != nil {
		if pct, ok := s.reader.BatteryPercent(ctx); ok {
			opts.Battery = &pct
		}
	}

	found := suggest.Mine(events, opts)
	out := SuggestOutput{Suggestions: make([]string, len(found))}
	for i, sg := range found {
		out.Suggestions[i] = sg.String()
	}
	if input.EmitRules {
		if pairs := suggest.Sequences(found); len(pairs) > 0 {
			data, err := suggest.MarshalRules(suggest.RuleTemplates(pairs))
			if err != nil {
				return nil, SuggestOutput{}, err
			}
			out.RulesYAML = string(data)
		}
	}
	return nil, out, nil
}

// Run starts the MCP server on stdio
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close closes the database connection
func (s *Server) Close() error {
	return s.db.Close()
}
