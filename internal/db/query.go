package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TasksStatement selects every task that is not completed yet. It is run with
// a single bound argument, false.
const TasksStatement = `SELECT * FROM tasks WHERE is_completed = $1`

const instrumentationName = "greeting-service/internal/db"

var tracer = otel.Tracer(instrumentationName)

// RunQuery borrows a connection from p, runs sql with positional args and
// returns all rows. The connection is always handed back: released when it
// is still usable, discarded when the failure came from the connection
// rather than from the server.
func RunQuery(ctx context.Context, p Acquirer, sql string, args ...any) (rows []Row, err error) {
	ctx, span := tracer.Start(ctx, "db.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.statement", sql),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("db.rows", len(rows)))
		}
		span.End()
	}()

	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, &QueryError{SQL: sql, Err: err}
	}
	defer func() {
		if err != nil && !isServerError(err) {
			conn.Discard()
			return
		}
		conn.Release()
	}()

	rows, err = conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, &QueryError{SQL: sql, Err: err}
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

// ListIncompleteTasks returns the rows of the tasks table whose is_completed
// column is false, in the order the database returns them.
func ListIncompleteTasks(ctx context.Context, p Acquirer) ([]Row, error) {
	return RunQuery(ctx, p, TasksStatement, false)
}

// Ping checks that a connection can be borrowed and used.
func Ping(ctx context.Context, p Acquirer) error {
	_, err := RunQuery(ctx, p, "SELECT 1")
	return err
}

// isServerError reports whether err was raised by the server for the
// statement itself, leaving the session usable.
func isServerError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
