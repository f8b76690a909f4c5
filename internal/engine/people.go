package engine

import (
	"context"
	"errors"
	"strings"

	"protodesk/internal/domain"
)

func errorsIsNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }

type CustomerOptions struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	BranchID   *int64 `json:"branch_id"`
	Active     *bool  `json:"active"`
}

func (o *CustomerOptions) trim() {
	o.FirstName = strings.TrimSpace(o.FirstName)
	o.LastName = strings.TrimSpace(o.LastName)
	o.Email = strings.TrimSpace(o.Email)
}

func (e Engine) checkBranch(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	if _, err := e.Repo.GetBranch(ctx, *id); err != nil {
		if errorsIsNotFound(err) {
			return &domain.ValidationError{Field: "branch_id", Reason: "unknown branch"}
		}
		return storageErr("get branch", err)
	}
	return nil
}

func (e Engine) CreateCustomer(ctx context.Context, opts CustomerOptions) (domain.Customer, error) {
	opts.trim()
	if err := e.check(opts); err != nil {
		return domain.Customer{}, err
	}
	if err := e.checkBranch(ctx, opts.BranchID); err != nil {
		return domain.Customer{}, err
	}
	now := e.now()
	c := domain.Customer{CreatedAt: now}
	applyCustomer(&c, opts)
	c.UpdatedAt = now
	c, err := e.Repo.InsertCustomer(ctx, c)
	return c, storageErr("insert customer", err)
}

func (e Engine) UpdateCustomer(ctx context.Context, id int64, opts CustomerOptions) (domain.Customer, error) {
	opts.trim()
	if err := e.check(opts); err != nil {
		return domain.Customer{}, err
	}
	if err := e.checkBranch(ctx, opts.BranchID); err != nil {
		return domain.Customer{}, err
	}
	c, err := e.Repo.GetCustomer(ctx, id)
	if err != nil {
		return c, storageErr("get customer", err)
	}
	applyCustomer(&c, opts)
	c.UpdatedAt = e.now()
	return c, storageErr("update customer", e.Repo.UpdateCustomer(ctx, c))
}

func applyCustomer(c *domain.Customer, o CustomerOptions) {
	c.FirstName, c.LastName, c.Email = o.FirstName, o.LastName, o.Email
	c.Phone, c.Address, c.City, c.State, c.PostalCode = o.Phone, o.Address, o.City, o.State, o.PostalCode
	c.BranchID = o.BranchID
	c.Active = o.Active == nil || *o.Active
}

func (e Engine) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	c, err := e.Repo.GetCustomer(ctx, id)
	return c, storageErr("get customer", err)
}

func (e Engine) ListCustomers(ctx context.Context, branchID *int64) ([]domain.Customer, error) {
	cs, err := e.Repo.ListCustomers(ctx, branchID)
	return cs, storageErr("list customers", err)
}

type PersonnelOptions struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone"`
	BranchID  *int64 `json:"branch_id"`
	Active    *bool  `json:"active"`
}

func (e Engine) CreatePersonnel(ctx context.Context, opts PersonnelOptions) (domain.Personnel, error) {
	opts.FirstName, opts.LastName, opts.Email = strings.TrimSpace(opts.FirstName), strings.TrimSpace(opts.LastName), strings.TrimSpace(opts.Email)
	if err := e.check(opts); err != nil {
		return domain.Personnel{}, err
	}
	if err := e.checkBranch(ctx, opts.BranchID); err != nil {
		return domain.Personnel{}, err
	}
	now := e.now()
	p := domain.Personnel{
		FirstName: opts.FirstName,
		LastName:  opts.LastName,
		Email:     opts.Email,
		Phone:     opts.Phone,
		BranchID:  opts.BranchID,
		Active:    opts.Active == nil || *opts.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p, err := e.Repo.InsertPersonnel(ctx, p)
	return p, storageErr("insert personnel", err)
}

func (e Engine) UpdatePersonnel(ctx context.Context, id int64, opts PersonnelOptions) (domain.Personnel, error) {
	opts.FirstName, opts.LastName, opts.Email = strings.TrimSpace(opts.FirstName), strings.TrimSpace(opts.LastName), strings.TrimSpace(opts.Email)
	if err := e.check(opts); err != nil {
		return domain.Personnel{}, err
	}
	if err := e.checkBranch(ctx, opts.BranchID); err != nil {
		return domain.Personnel{}, err
	}
	p, err := e.Repo.GetPersonnel(ctx, id)
	if err != nil {
		return p, storageErr("get personnel", err)
	}
	p.FirstName, p.LastName, p.Email, p.Phone = opts.FirstName, opts.LastName, opts.Email, opts.Phone
	p.BranchID = opts.BranchID
	p.Active = opts.Active == nil || *opts.Active
	p.UpdatedAt = e.now()
	return p, storageErr("update personnel", e.Repo.UpdatePersonnel(ctx, p))
}

func (e Engine) GetPersonnel(ctx context.Context, id int64) (domain.Personnel, error) {
	p, err := e.Repo.GetPersonnel(ctx, id)
	return p, storageErr("get personnel", err)
}

func (e Engine) ListPersonnel(ctx context.Context, activeOnly bool) ([]domain.Personnel, error) {
	ps, err := e.Repo.ListPersonnel(ctx, activeOnly)
	return ps, storageErr("list personnel", err)
}

type BranchOptions struct {
	Name string `json:"branch_name" validate:"required"`
	Code string `json:"branch_code" validate:"required,max=16"`
}

func (e Engine) CreateBranch(ctx context.Context, opts BranchOptions) (domain.Branch, error) {
	opts.Name, opts.Code = strings.TrimSpace(opts.Name), strings.ToUpper(strings.TrimSpace(opts.Code))
	if err := e.check(opts); err != nil {
		return domain.Branch{}, err
	}
	now := e.now()
	b, err := e.Repo.InsertBranch(ctx, domain.Branch{Name: opts.Name, Code: opts.Code, CreatedAt: now, UpdatedAt: now})
	return b, storageErr("insert branch", err)
}

func (e Engine) UpdateBranch(ctx context.Context, id int64, opts BranchOptions) (domain.Branch, error) {
	opts.Name, opts.Code = strings.TrimSpace(opts.Name), strings.ToUpper(strings.TrimSpace(opts.Code))
	if err := e.check(opts); err != nil {
		return domain.Branch{}, err
	}
	b, err := e.Repo.GetBranch(ctx, id)
	if err != nil {
		return b, storageErr("get branch", err)
	}
	b.Name, b.Code, b.UpdatedAt = opts.Name, opts.Code, e.now()
	return b, storageErr("update branch", e.Repo.UpdateBranch(ctx, b))
}

func (e Engine) GetBranch(ctx context.Context, id int64) (domain.Branch, error) {
	b, err := e.Repo.GetBranch(ctx, id)
	return b, storageErr("get branch", err)
}

func (e Engine) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	bs, err := e.Repo.ListBranches(ctx)
	return bs, storageErr("list branches", err)
}
