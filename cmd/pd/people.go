package main

import (
	"context"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"protodesk/internal/domain"
	"protodesk/internal/engine"
)

func idArg(args []string) (int64, error) {
	return strconv.ParseInt(args[0], 10, 64)
}

func branchCmd() *cobra.Command {
	br := &cobra.Command{Use: "branch", Short: "Manage branches"}
	var opts engine.BranchOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Create branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.CreateBranch(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	create.Flags().StringVar(&opts.Name, "name", "", "branch name")
	create.Flags().StringVar(&opts.Code, "code", "", "short branch code")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("code")

	var name, code string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cur, err := e.GetBranch(ctx, id)
				if err != nil {
					return err
				}
				o := engine.BranchOptions{Name: cur.Name, Code: cur.Code}
				if cmd.Flags().Changed("name") {
					o.Name = name
				}
				if cmd.Flags().Changed("code") {
					o.Code = code
				}
				b, err := e.UpdateBranch(ctx, id, o)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	update.Flags().StringVar(&name, "name", "", "branch name")
	update.Flags().StringVar(&code, "code", "", "short branch code")

	list := &cobra.Command{
		Use:   "list",
		Short: "List branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListBranches(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Code", "Name")
				for _, b := range items {
					tw.AppendRow(table.Row{b.ID, b.Code, b.Name})
				}
				tw.Render()
				return nil
			})
		},
	}
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.GetBranch(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	br.AddCommand(create, update, list, show)
	return br
}

type personFlags struct {
	firstName, lastName, email, phone string
	address, city, state, postalCode  string
	branchID                          int64
	active                            bool
}

func (f *personFlags) bind(cmd *cobra.Command, withAddress bool) {
	cmd.Flags().StringVar(&f.firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&f.lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&f.email, "email", "", "email address")
	cmd.Flags().StringVar(&f.phone, "phone", "", "phone number")
	cmd.Flags().Int64Var(&f.branchID, "branch-id", 0, "branch id")
	cmd.Flags().BoolVar(&f.active, "active", true, "active flag")
	if withAddress {
		cmd.Flags().StringVar(&f.address, "address", "", "street address")
		cmd.Flags().StringVar(&f.city, "city", "", "city")
		cmd.Flags().StringVar(&f.state, "state", "", "state")
		cmd.Flags().StringVar(&f.postalCode, "postal-code", "", "postal code")
	}
}

// overlay replaces the fields whose flags were set on cmd.
func (f *personFlags) overlay(cmd *cobra.Command, dst map[string]*string) {
	for flag, v := range map[string]string{
		"first-name": f.firstName, "last-name": f.lastName, "email": f.email, "phone": f.phone,
		"address": f.address, "city": f.city, "state": f.state, "postal-code": f.postalCode,
	} {
		if p, ok := dst[flag]; ok && cmd.Flags().Changed(flag) {
			*p = v
		}
	}
}

func customerCmd() *cobra.Command {
	cu := &cobra.Command{Use: "customer", Short: "Manage customers"}

	var cf personFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCustomer(ctx, engine.CustomerOptions{
					FirstName: cf.firstName, LastName: cf.lastName, Email: cf.email, Phone: cf.phone,
					Address: cf.address, City: cf.city, State: cf.state, PostalCode: cf.postalCode,
					BranchID: optionalInt64(cmd, "branch-id", cf.branchID),
					Active:   optionalBool(cmd, "active", cf.active),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cf.bind(create, true)

	var uf personFlags
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cur, err := e.GetCustomer(ctx, id)
				if err != nil {
					return err
				}
				o := engine.CustomerOptions{
					FirstName: cur.FirstName, LastName: cur.LastName, Email: cur.Email, Phone: cur.Phone,
					Address: cur.Address, City: cur.City, State: cur.State, PostalCode: cur.PostalCode,
					BranchID: cur.BranchID, Active: &cur.Active,
				}
				uf.overlay(cmd, map[string]*string{
					"first-name": &o.FirstName, "last-name": &o.LastName, "email": &o.Email, "phone": &o.Phone,
					"address": &o.Address, "city": &o.City, "state": &o.State, "postal-code": &o.PostalCode,
				})
				if cmd.Flags().Changed("branch-id") {
					o.BranchID = &uf.branchID
				}
				if cmd.Flags().Changed("active") {
					o.Active = &uf.active
				}
				c, err := e.UpdateCustomer(ctx, id, o)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	uf.bind(update, true)

	var branchID int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List customers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListCustomers(ctx, optionalInt64(cmd, "branch-id", branchID))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Email", "City", "Active")
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.FirstName + " " + c.LastName, c.Email, c.City, c.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().Int64Var(&branchID, "branch-id", 0, "branch filter")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetCustomer(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cu.AddCommand(create, update, list, show)
	return cu
}

func personnelCmd() *cobra.Command {
	pe := &cobra.Command{Use: "personnel", Short: "Manage personnel (brokers and staff)"}

	var cf personFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create personnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreatePersonnel(ctx, engine.PersonnelOptions{
					FirstName: cf.firstName, LastName: cf.lastName, Email: cf.email, Phone: cf.phone,
					BranchID: optionalInt64(cmd, "branch-id", cf.branchID),
					Active:   optionalBool(cmd, "active", cf.active),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cf.bind(create, false)

	var uf personFlags
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update personnel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cur, err := e.GetPersonnel(ctx, id)
				if err != nil {
					return err
				}
				o := engine.PersonnelOptions{
					FirstName: cur.FirstName, LastName: cur.LastName, Email: cur.Email, Phone: cur.Phone,
					BranchID: cur.BranchID, Active: &cur.Active,
				}
				uf.overlay(cmd, map[string]*string{
					"first-name": &o.FirstName, "last-name": &o.LastName, "email": &o.Email, "phone": &o.Phone,
				})
				if cmd.Flags().Changed("branch-id") {
					o.BranchID = &uf.branchID
				}
				if cmd.Flags().Changed("active") {
					o.Active = &uf.active
				}
				p, err := e.UpdatePersonnel(ctx, id, o)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	uf.bind(update, false)

	var activeOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List personnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListPersonnel(ctx, activeOnly)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Email", "Active")
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, fullName(p), p.Email, p.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&activeOnly, "active", false, "only active personnel")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show personnel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetPersonnel(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	pe.AddCommand(create, update, list, show)
	return pe
}

func fullName(p domain.Personnel) string {
	return p.FirstName + " " + p.LastName
}
