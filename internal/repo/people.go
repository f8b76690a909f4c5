package repo

import (
	"context"
	"database/sql"
	"fmt"

	"protodesk/internal/domain"
)

const customerColumns = `id,first_name,last_name,email,COALESCE(phone,''),COALESCE(address,''),COALESCE(city,''),COALESCE(state,''),COALESCE(postal_code,''),branch_id,active,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(s scanner) (domain.Customer, error) {
	var c domain.Customer
	var branch sql.NullInt64
	var created, updated string
	err := s.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Address, &c.City, &c.State, &c.PostalCode, &branch, &c.Active, &created, &updated)
	if err != nil {
		return c, err
	}
	c.BranchID = nullInt(branch)
	var ts timeScan
	c.CreatedAt = ts.at("created_at", created)
	c.UpdatedAt = ts.at("updated_at", updated)
	if ts.err != nil {
		return c, fmt.Errorf("customer %d %w", c.ID, ts.err)
	}
	return c, nil
}

func (r Repo) InsertCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	res, err := r.conn().ExecContext(ctx, `INSERT INTO customers(first_name,last_name,email,phone,address,city,state,postal_code,branch_id,active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.FirstName, c.LastName, c.Email, nullable(c.Phone), nullable(c.Address), nullable(c.City), nullable(c.State), nullable(c.PostalCode),
		nullableInt(c.BranchID), boolInt(c.Active), FormatTime(c.CreatedAt), FormatTime(c.UpdatedAt))
	if err != nil {
		return c, err
	}
	c.ID, err = res.LastInsertId()
	return c, err
}

func (r Repo) UpdateCustomer(ctx context.Context, c domain.Customer) error {
	res, err := r.conn().ExecContext(ctx, `UPDATE customers SET first_name=?,last_name=?,email=?,phone=?,address=?,city=?,state=?,postal_code=?,branch_id=?,active=?,updated_at=? WHERE id=?`,
		c.FirstName, c.LastName, c.Email, nullable(c.Phone), nullable(c.Address), nullable(c.City), nullable(c.State), nullable(c.PostalCode),
		nullableInt(c.BranchID), boolInt(c.Active), FormatTime(c.UpdatedAt), c.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "customer", c.ID)
}

func (r Repo) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	c, err := scanCustomer(r.conn().QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return c, domain.NotFound("customer", id)
	}
	return c, err
}

func (r Repo) ListCustomers(ctx context.Context, branchID *int64) ([]domain.Customer, error) {
	var clauses []string
	var args []any
	if branchID != nil {
		clauses = append(clauses, "branch_id=?")
		args = append(args, *branchID)
	}
	rows, err := r.conn().QueryContext(ctx, `SELECT `+customerColumns+` FROM customers`+where(clauses)+` ORDER BY last_name, first_name, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

const personnelColumns = `id,first_name,last_name,email,COALESCE(phone,''),branch_id,active,created_at,updated_at`

func scanPersonnel(s scanner) (domain.Personnel, error) {
	var p domain.Personnel
	var branch sql.NullInt64
	var created, updated string
	if err := s.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &branch, &p.Active, &created, &updated); err != nil {
		return p, err
	}
	p.BranchID = nullInt(branch)
	var ts timeScan
	p.CreatedAt = ts.at("created_at", created)
	p.UpdatedAt = ts.at("updated_at", updated)
	if ts.err != nil {
		return p, fmt.Errorf("personnel %d %w", p.ID, ts.err)
	}
	return p, nil
}

func (r Repo) InsertPersonnel(ctx context.Context, p domain.Personnel) (domain.Personnel, error) {
	res, err := r.conn().ExecContext(ctx, `INSERT INTO personnel(first_name,last_name,email,phone,branch_id,active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.FirstName, p.LastName, p.Email, nullable(p.Phone), nullableInt(p.BranchID), boolInt(p.Active), FormatTime(p.CreatedAt), FormatTime(p.UpdatedAt))
	if err != nil {
		return p, err
	}
	p.ID, err = res.LastInsertId()
	return p, err
}

func (r Repo) UpdatePersonnel(ctx context.Context, p domain.Personnel) error {
	res, err := r.conn().ExecContext(ctx, `UPDATE personnel SET first_name=?,last_name=?,email=?,phone=?,branch_id=?,active=?,updated_at=? WHERE id=?`,
		p.FirstName, p.LastName, p.Email, nullable(p.Phone), nullableInt(p.BranchID), boolInt(p.Active), FormatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "personnel", p.ID)
}

func (r Repo) GetPersonnel(ctx context.Context, id int64) (domain.Personnel, error) {
	p, err := scanPersonnel(r.conn().QueryRowContext(ctx, `SELECT `+personnelColumns+` FROM personnel WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return p, domain.NotFound("personnel", id)
	}
	return p, err
}

func (r Repo) ListPersonnel(ctx context.Context, activeOnly bool) ([]domain.Personnel, error) {
	var clauses []string
	if activeOnly {
		clauses = append(clauses, "active=1")
	}
	rows, err := r.conn().QueryContext(ctx, `SELECT `+personnelColumns+` FROM personnel`+where(clauses)+` ORDER BY last_name, first_name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Personnel
	for rows.Next() {
		p, err := scanPersonnel(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func scanBranch(s scanner) (domain.Branch, error) {
	var b domain.Branch
	var created, updated string
	if err := s.Scan(&b.ID, &b.Name, &b.Code, &created, &updated); err != nil {
		return b, err
	}
	var ts timeScan
	b.CreatedAt = ts.at("created_at", created)
	b.UpdatedAt = ts.at("updated_at", updated)
	if ts.err != nil {
		return b, fmt.Errorf("branch %d %w", b.ID, ts.err)
	}
	return b, nil
}

func (r Repo) InsertBranch(ctx context.Context, b domain.Branch) (domain.Branch, error) {
	res, err := r.conn().ExecContext(ctx, `INSERT INTO branches(name,code,created_at,updated_at) VALUES (?,?,?,?)`,
		b.Name, b.Code, FormatTime(b.CreatedAt), FormatTime(b.UpdatedAt))
	if err != nil {
		return b, err
	}
	b.ID, err = res.LastInsertId()
	return b, err
}

func (r Repo) UpdateBranch(ctx context.Context, b domain.Branch) error {
	res, err := r.conn().ExecContext(ctx, `UPDATE branches SET name=?,code=?,updated_at=? WHERE id=?`, b.Name, b.Code, FormatTime(b.UpdatedAt), b.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "branch", b.ID)
}

func (r Repo) GetBranch(ctx context.Context, id int64) (domain.Branch, error) {
	b, err := scanBranch(r.conn().QueryRowContext(ctx, `SELECT id,name,code,created_at,updated_at FROM branches WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return b, domain.NotFound("branch", id)
	}
	return b, err
}

func (r Repo) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT id,name,code,created_at,updated_at FROM branches ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
