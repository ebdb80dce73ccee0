package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"skymarket/internal/infrastructure/metrics"

	"github.com/go-sql-driver/mysql"
)

// erNoReferencedRow is the MySQL error raised when a foreign key points at a missing row.
const erNoReferencedRow = 1452

// Store is the persistence port behind every resource. F scopes reads and
// deletes; a record outside the scope behaves as if it did not exist.
// Missing records are reported as sql.ErrNoRows. A limit of 0 lists everything.
type Store[T any, F any] interface {
	List(ctx context.Context, filter F, limit, offset int) ([]*T, error)
	Count(ctx context.Context, filter F) (int, error)
	Get(ctx context.Context, filter F, id int64) (*T, error)
	Create(ctx context.Context, entity *T) (*T, error)
	Update(ctx context.Context, entity *T) (*T, error)
	Delete(ctx context.Context, filter F, id int64) error
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func limitClause(limit, offset int) (string, []interface{}) {
	if limit <= 0 {
		return "", nil
	}
	return " LIMIT ? OFFSET ?", []interface{}{limit, offset}
}

// likeEscaper escapes LIKE wildcards for use with ESCAPE '!'.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func observeQuery(m *metrics.RepositoryMetrics, query, status string, startTime time.Time) {
	duration := time.Since(startTime).Seconds()
	m.QueryCount.WithLabelValues(query, status).Inc()
	m.QueryDuration.WithLabelValues(query, status).Observe(duration)
}

func isMissingParent(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == erNoReferencedRow
}
