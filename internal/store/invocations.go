// ABOUTME: Invocation log entity and store methods for executed tool calls
// ABOUTME: Records which tool ran, with what outcome and how long it took

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// maxParamsJSON caps the stored params payload.
const maxParamsJSON = 64 * 1024

// tsLayout is fixed width so timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Invocation is one executed tool call.
type Invocation struct {
	ID            string         // UUID v4
	Tool          string         // requested tool name
	CorrelationID string         // echoed request id, "" when absent
	OK            bool           // false when the outcome was an error
	Error         string         // error message when !OK
	Params        map[string]any // request params (dropped above 64KB JSON)
	Duration      time.Duration  // handler latency
	Timestamp     time.Time      // when the call completed
}

// InvocationFilter selects invocations to list.
type InvocationFilter struct {
	Tool       *string    // filter by tool name
	Since      *time.Time // invocations at or after this time
	FailedOnly bool       // only error outcomes
	Limit      int        // max results (default 100, max 1000)
}

// RecordInvocation appends inv to the log. ID and Timestamp are generated
// when unset.
func (s *SQLiteStore) RecordInvocation(ctx context.Context, inv *Invocation) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.Timestamp.IsZero() {
		inv.Timestamp = time.Now().UTC()
	}

	var paramsJSON *string
	if len(inv.Params) > 0 {
		data, err := json.Marshal(inv.Params)
		if err != nil {
			return fmt.Errorf("marshaling params: %w", err)
		}
		if len(data) <= maxParamsJSON {
			str := string(data)
			paramsJSON = &str
		}
	}

	var corr, errMsg *string
	if inv.CorrelationID != "" {
		corr = &inv.CorrelationID
	}
	if inv.Error != "" {
		errMsg = &inv.Error
	}

	query := `
		INSERT INTO invocations (invocation_id, tool, correlation_id, ok, error, params_json, duration_ms, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		inv.ID,
		inv.Tool,
		corr,
		inv.OK,
		errMsg,
		paramsJSON,
		inv.Duration.Milliseconds(),
		inv.Timestamp.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting invocation: %w", err)
	}

	s.logger.Debug("recorded invocation", "id", inv.ID, "tool", inv.Tool, "ok", inv.OK)
	return nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const invocationsQuery = `
	SELECT invocation_id, tool, correlation_id, ok, error, params_json, duration_ms, ts
	FROM invocations
	WHERE (? IS NULL OR tool = ?)
	  AND (? IS NULL OR ts >= ?)
	  AND (? = 0 OR ok = 0)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// ListInvocations returns matching invocations, newest first.
func (s *SQLiteStore) ListInvocations(ctx context.Context, f InvocationFilter) ([]Invocation, error) {
	var since *string
	if f.Since != nil {
		str := f.Since.UTC().Format(tsLayout)
		since = &str
	}

	rows, err := s.db.QueryContext(ctx, invocationsQuery,
		f.Tool, f.Tool,
		since, since,
		f.FailedOnly,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	invs := []Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invocations: %w", err)
	}
	return invs, nil
}

func scanInvocation(scanner interface{ Scan(dest ...any) error }) (Invocation, error) {
	var inv Invocation
	var corr, errMsg, paramsJSON *string
	var durationMS int64
	var tsStr string

	if err := scanner.Scan(
		&inv.ID,
		&inv.Tool,
		&corr,
		&inv.OK,
		&errMsg,
		&paramsJSON,
		&durationMS,
		&tsStr,
	); err != nil {
		return inv, fmt.Errorf("scanning invocation: %w", err)
	}

	if corr != nil {
		inv.CorrelationID = *corr
	}
	if errMsg != nil {
		inv.Error = *errMsg
	}
	inv.Duration = time.Duration(durationMS) * time.Millisecond

	var err error
	inv.Timestamp, err = time.Parse(tsLayout, tsStr)
	if err != nil {
		return inv, fmt.Errorf("parsing timestamp: %w", err)
	}

	if paramsJSON != nil {
		if err := json.Unmarshal([]byte(*paramsJSON), &inv.Params); err != nil {
			return inv, fmt.Errorf("unmarshaling params: %w", err)
		}
	}
	return inv, nil
}
