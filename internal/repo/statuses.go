package repo

import (
	"context"
	"database/sql"

	"protodesk/internal/domain"
)

func (r Repo) ListStatuses(ctx context.Context) ([]domain.Status, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT id,name,COALESCE(color,''),is_terminal,order_sequence FROM protocol_statuses ORDER BY order_sequence, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Status
	for rows.Next() {
		var s domain.Status
		if err := rows.Scan(&s.ID, &s.Name, &s.Color, &s.IsTerminal, &s.OrderSequence); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// SeedStatuses inserts statuses only when the table is empty. It reports whether rows were written.
func (r Repo) SeedStatuses(ctx context.Context, tx *sql.Tx, statuses []domain.Status) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM protocol_statuses`).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	for _, s := range statuses {
		if _, err := tx.ExecContext(ctx, `INSERT INTO protocol_statuses(id,name,color,is_terminal,order_sequence) VALUES (?,?,?,?,?)`,
			s.ID, s.Name, nullable(s.Color), boolInt(s.IsTerminal), s.OrderSequence); err != nil {
			return false, err
		}
	}
	return true, nil
}
