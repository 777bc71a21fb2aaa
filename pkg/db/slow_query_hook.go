package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gigmarket/pkg/metrics"
)

type queryStartKey struct{}
type querySQLKey struct{}

// SlowQueryTracer logs and counts queries slower than the threshold.
type SlowQueryTracer struct {
	logger        *zap.Logger
	slowThreshold time.Duration
}

func NewSlowQueryTracer(logger *zap.Logger, slowThreshold time.Duration) *SlowQueryTracer {
	if slowThreshold == 0 {
		slowThreshold = 100 * time.Millisecond
	}
	return &SlowQueryTracer{
		logger:        logger,
		slowThreshold: slowThreshold,
	}
}

func (t *SlowQueryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx = context.WithValue(ctx, queryStartKey{}, time.Now())
	ctx = context.WithValue(ctx, querySQLKey{}, data.SQL)
	return ctx
}

func (t *SlowQueryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	startTime, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}

	duration := time.Since(startTime)

	// pgx v5 TraceQueryEndData carries no SQL, so it rides the context
	sql, _ := ctx.Value(querySQLKey{}).(string)
	if sql == "" {
		sql = "unknown"
	}

	metrics.RecordDBQueryDuration(queryOperation(data.CommandTag.String()), tableFromSQL(sql), duration)

	if duration <= t.slowThreshold {
		return
	}

	if len(sql) > 200 {
		sql = sql[:200] + "..."
	}

	t.logger.Warn("slow-query",
		zap.String("sql", sql),
		zap.Duration("took", duration),
		zap.String("command_tag", data.CommandTag.String()),
	)

	metrics.IncrementSlowQuery()
}

// queryOperation extracts the verb from a command tag like "SELECT 5".
func queryOperation(tag string) string {
	if fields := strings.Fields(tag); len(fields) > 0 {
		return fields[0]
	}
	return "UNKNOWN"
}

// tableFromSQL pulls the primary table name out of a statement for metric
// labels. Best effort; anything unrecognized lands under "other".
func tableFromSQL(sql string) string {
	fields := strings.Fields(strings.ToLower(sql))
	for i, f := range fields {
		switch f {
		case "from", "into", "update":
			if i+1 < len(fields) {
				return strings.Trim(fields[i+1], `"();,`)
			}
		}
	}
	return "other"
}
