package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"protodesk/internal/domain"
)

// TimeFormat is fixed-width so stored timestamps compare correctly as text.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	DB *sql.DB
	q  Querier
}

var ErrNotFound = domain.ErrNotFound

// WithTx returns a copy of the repo whose statements run inside tx.
func (r Repo) WithTx(tx *sql.Tx) Repo {
	r.q = tx
	return r
}

func (r Repo) conn() Querier {
	if r.q != nil {
		return r.q
	}
	return r.DB
}

// FormatTime renders t in the storage format (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime accepts the storage format and plain RFC3339.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// timeScan parses the timestamp columns of one row and keeps the first failure.
type timeScan struct {
	err error
}

func (ts *timeScan) at(column, s string) time.Time {
	t, err := ParseTime(s)
	if err != nil && ts.err == nil {
		ts.err = fmt.Errorf("%s: %w", column, err)
	}
	return t
}

func (ts *timeScan) null(column string, ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := ts.at(column, ns.String)
	return &t
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Page bounds a cursor-paginated listing; rows with id below AfterID are returned newest first.
type Page struct {
	Limit   int
	AfterID int64
}

func (p Page) clause(column string, clauses []string, args []any) ([]string, []any, string) {
	if p.AfterID > 0 {
		clauses = append(clauses, column+" < ?")
		args = append(args, p.AfterID)
	}
	tail := " ORDER BY " + column + " DESC"
	if p.Limit > 0 {
		tail += fmt.Sprintf(" LIMIT %d", p.Limit)
	}
	return clauses, args, tail
}

func where(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func mustAffect(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound(entity, id)
	}
	return nil
}
