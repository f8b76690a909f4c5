package repo

import (
	"context"
	"database/sql"
	"fmt"

	"protodesk/internal/domain"
)

const protocolColumns = `id,protocol_number,title,description,customer_id,assigned_to,status_id,priority,date_required,expected_completion,created_by,created_at,updated_at,closed_at`

func scanProtocol(s scanner) (domain.Protocol, error) {
	var p domain.Protocol
	var required, expected, closed sql.NullString
	var created, updated, priority string
	err := s.Scan(&p.ID, &p.Number, &p.Title, &p.Description, &p.CustomerID, &p.AssignedTo, &p.StatusID, &priority,
		&required, &expected, &p.CreatedBy, &created, &updated, &closed)
	if err != nil {
		return p, err
	}
	p.Priority = domain.Priority(priority)
	var ts timeScan
	p.DateRequired = ts.null("date_required", required)
	p.ExpectedCompletion = ts.null("expected_completion", expected)
	p.ClosedAt = ts.null("closed_at", closed)
	p.CreatedAt = ts.at("created_at", created)
	p.UpdatedAt = ts.at("updated_at", updated)
	if ts.err != nil {
		return p, fmt.Errorf("protocol %d %w", p.ID, ts.err)
	}
	return p, nil
}

func (r Repo) InsertProtocol(ctx context.Context, p domain.Protocol) (domain.Protocol, error) {
	res, err := r.conn().ExecContext(ctx, `INSERT INTO protocols(protocol_number,title,description,customer_id,assigned_to,status_id,priority,date_required,expected_completion,created_by,created_at,updated_at,closed_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.Number, p.Title, p.Description, p.CustomerID, p.AssignedTo, p.StatusID, string(p.Priority),
		nullableTime(p.DateRequired), nullableTime(p.ExpectedCompletion), p.CreatedBy,
		FormatTime(p.CreatedAt), FormatTime(p.UpdatedAt), nullableTime(p.ClosedAt))
	if err != nil {
		return p, err
	}
	p.ID, err = res.LastInsertId()
	return p, err
}

func (r Repo) GetProtocol(ctx context.Context, id int64) (domain.Protocol, error) {
	p, err := scanProtocol(r.conn().QueryRowContext(ctx, `SELECT `+protocolColumns+` FROM protocols WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return p, domain.NotFound("protocol", id)
	}
	return p, err
}

// UpdateProtocolFields writes the editable attributes; status and closed_at are left alone.
func (r Repo) UpdateProtocolFields(ctx context.Context, p domain.Protocol) error {
	res, err := r.conn().ExecContext(ctx, `UPDATE protocols SET title=?,description=?,assigned_to=?,priority=?,date_required=?,expected_completion=?,updated_at=? WHERE id=?`,
		p.Title, p.Description, p.AssignedTo, string(p.Priority), nullableTime(p.DateRequired), nullableTime(p.ExpectedCompletion), FormatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "protocol", p.ID)
}

func (r Repo) UpdateProtocolStatus(ctx context.Context, p domain.Protocol) error {
	res, err := r.conn().ExecContext(ctx, `UPDATE protocols SET status_id=?,closed_at=?,updated_at=? WHERE id=?`,
		p.StatusID, nullableTime(p.ClosedAt), FormatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "protocol", p.ID)
}

// DeleteProtocol removes a protocol together with its reminders and its event rows.
func (r Repo) DeleteProtocol(ctx context.Context, id int64) error {
	if _, err := r.conn().ExecContext(ctx, `DELETE FROM reminder_deliveries WHERE reminder_id IN (SELECT id FROM protocol_reminders WHERE protocol_id=?)`, id); err != nil {
		return err
	}
	for _, table := range []string{"protocol_reminders", "protocol_comments", "protocol_attachments", "protocol_history"} {
		if _, err := r.conn().ExecContext(ctx, `DELETE FROM `+table+` WHERE protocol_id=?`, id); err != nil {
			return err
		}
	}
	res, err := r.conn().ExecContext(ctx, `DELETE FROM protocols WHERE id=?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "protocol", id)
}

// NextProtocolNumber allocates the next YYYY-NNNN number for year.
func (r Repo) NextProtocolNumber(ctx context.Context, year int) (string, error) {
	var last int
	err := r.conn().QueryRowContext(ctx, `INSERT INTO protocol_numbers(year,last) VALUES (?,1)
ON CONFLICT(year) DO UPDATE SET last=last+1 RETURNING last`, year).Scan(&last)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%04d", year, last), nil
}

type ProtocolFilters struct {
	StatusID   int64
	CustomerID int64
	AssignedTo int64
	OpenOnly   bool
	Page       Page
}

func (r Repo) ListProtocols(ctx context.Context, f ProtocolFilters) ([]domain.Protocol, error) {
	var clauses []string
	var args []any
	if f.StatusID > 0 {
		clauses = append(clauses, "status_id=?")
		args = append(args, f.StatusID)
	}
	if f.CustomerID > 0 {
		clauses = append(clauses, "customer_id=?")
		args = append(args, f.CustomerID)
	}
	if f.AssignedTo > 0 {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.OpenOnly {
		clauses = append(clauses, "closed_at IS NULL")
	}
	clauses, args, tail := f.Page.clause("id", clauses, args)
	rows, err := r.conn().QueryContext(ctx, `SELECT `+protocolColumns+` FROM protocols`+where(clauses)+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Protocol
	for rows.Next() {
		p, err := scanProtocol(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// CountProtocolsByStatus backs the dashboard counters.
func (r Repo) CountProtocolsByStatus(ctx context.Context) (map[int64]int, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT status_id, COUNT(*) FROM protocols GROUP BY status_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[int64]int{}
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		res[id] = n
	}
	return res, rows.Err()
}
