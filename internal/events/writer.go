package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"protodesk/internal/domain"
	"protodesk/internal/repo"
)

// Writer appends protocol events. Every append runs on the caller's transaction so the
// event and the protocol change it records commit together.
type Writer struct {
	DB *sql.DB
}

// nextSeq bumps the protocol's event counter and returns the new value.
func nextSeq(ctx context.Context, tx *sql.Tx, protocolID int64) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, `UPDATE protocols SET event_seq=event_seq+1 WHERE id=? RETURNING event_seq`, protocolID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFound("protocol", protocolID)
	}
	return seq, err
}

func (w Writer) AppendComment(ctx context.Context, tx *sql.Tx, c domain.Comment) (domain.Comment, error) {
	seq, err := nextSeq(ctx, tx, c.ProtocolID)
	if err != nil {
		return c, err
	}
	c.Seq = seq
	res, err := tx.ExecContext(ctx, `INSERT INTO protocol_comments(protocol_id,seq,actor_id,content,created_at) VALUES (?,?,?,?,?)`,
		c.ProtocolID, c.Seq, c.ActorID, c.Content, repo.FormatTime(c.CreatedAt))
	if err != nil {
		return c, fmt.Errorf("insert comment: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return c, err
}

func (w Writer) AppendStatusChange(ctx context.Context, tx *sql.Tx, s domain.StatusChange) (domain.StatusChange, error) {
	seq, err := nextSeq(ctx, tx, s.ProtocolID)
	if err != nil {
		return s, err
	}
	s.Seq = seq
	var prev any
	if s.PreviousStatusID != nil {
		prev = *s.PreviousStatusID
	}
	var notes any
	if s.Notes != "" {
		notes = s.Notes
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO protocol_history(protocol_id,seq,actor_id,previous_status_id,new_status_id,notes,created_at) VALUES (?,?,?,?,?,?,?)`,
		s.ProtocolID, s.Seq, s.ActorID, prev, s.NewStatusID, notes, repo.FormatTime(s.CreatedAt))
	if err != nil {
		return s, fmt.Errorf("insert status change: %w", err)
	}
	s.ID, err = res.LastInsertId()
	return s, err
}

func (w Writer) AppendAttachment(ctx context.Context, tx *sql.Tx, a domain.Attachment) (domain.Attachment, error) {
	seq, err := nextSeq(ctx, tx, a.ProtocolID)
	if err != nil {
		return a, err
	}
	a.Seq = seq
	var ctype, desc any
	if a.ContentType != "" {
		ctype = a.ContentType
	}
	if a.Description != "" {
		desc = a.Description
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO protocol_attachments(protocol_id,seq,actor_id,file_name,file_size,content_type,locator,description,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ProtocolID, a.Seq, a.ActorID, a.FileName, a.FileSize, ctype, a.Locator, desc, repo.FormatTime(a.CreatedAt))
	if err != nil {
		return a, fmt.Errorf("insert attachment: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return a, err
}

// List returns every event of a protocol in insertion order. Pass a tx-bound querier when
// reading inside a transaction.
func List(ctx context.Context, q repo.Querier, protocolID int64) ([]domain.Event, error) {
	var out []domain.Event

	rows, err := q.QueryContext(ctx, `SELECT id,seq,actor_id,content,created_at FROM protocol_comments WHERE protocol_id=?`, protocolID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var c domain.Comment
		var created string
		if err := rows.Scan(&c.ID, &c.Seq, &c.ActorID, &c.Content, &created); err != nil {
			rows.Close()
			return nil, err
		}
		c.ProtocolID = protocolID
		if c.CreatedAt, err = repo.ParseTime(created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("comment %d created_at: %w", c.ID, err)
		}
		out = append(out, c)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, `SELECT id,seq,actor_id,previous_status_id,new_status_id,COALESCE(notes,''),created_at FROM protocol_history WHERE protocol_id=?`, protocolID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var s domain.StatusChange
		var prev sql.NullInt64
		var created string
		if err := rows.Scan(&s.ID, &s.Seq, &s.ActorID, &prev, &s.NewStatusID, &s.Notes, &created); err != nil {
			rows.Close()
			return nil, err
		}
		if prev.Valid {
			v := prev.Int64
			s.PreviousStatusID = &v
		}
		s.ProtocolID = protocolID
		if s.CreatedAt, err = repo.ParseTime(created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("status change %d created_at: %w", s.ID, err)
		}
		out = append(out, s)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, `SELECT id,seq,actor_id,file_name,file_size,COALESCE(content_type,''),locator,COALESCE(description,''),created_at FROM protocol_attachments WHERE protocol_id=?`, protocolID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var a domain.Attachment
		var created string
		if err := rows.Scan(&a.ID, &a.Seq, &a.ActorID, &a.FileName, &a.FileSize, &a.ContentType, &a.Locator, &a.Description, &created); err != nil {
			rows.Close()
			return nil, err
		}
		a.ProtocolID = protocolID
		if a.CreatedAt, err = repo.ParseTime(created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("attachment %d created_at: %w", a.ID, err)
		}
		out = append(out, a)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Header().Seq < out[j].Header().Seq })
	return out, nil
}

// Count returns how many events a protocol has accumulated.
func Count(ctx context.Context, q repo.Querier, protocolID int64) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, `SELECT event_seq FROM protocols WHERE id=?`, protocolID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFound("protocol", protocolID)
	}
	return n, err
}

// LocatorRecorded reports whether any protocol already has an attachment pointing at locator.
func LocatorRecorded(ctx context.Context, q repo.Querier, locator string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM protocol_attachments WHERE locator=?`, locator).Scan(&n)
	return n > 0, err
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}
