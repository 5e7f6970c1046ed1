package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stockpile-dev/stockpile/internal/client"
	"github.com/stockpile-dev/stockpile/internal/models"
)

// resource describes the ls, get and rm subcommands of one API resource
type resource[T any] struct {
	name     string
	singular string
	header   []string
	row      func(T) []string
	detail   func(*T) []field

	list       func(*client.AuthClient, context.Context, models.ListParams) (*models.Page[T], error)
	get        func(*client.AuthClient, context.Context, int) (*T, error)
	remove     func(*client.AuthClient, context.Context, int) error
	bulkRemove func(*client.AuthClient, context.Context, []int) error
}

// field is one line of a detail printout
type field struct {
	label string
	value string
}

// command builds "<name> ls|get|rm"
func (res resource[T]) command(opts []Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   res.name,
		Short: fmt.Sprintf("Manage %s", res.name),
	}
	cmd.AddCommand(res.listCmd(opts), res.getCmd(opts), res.removeCmd(opts))
	return cmd
}

func (res resource[T]) listCmd(opts []Option) *cobra.Command {
	var params models.ListParams

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   fmt.Sprintf("List %s", res.name),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newEnv(opts)
			if err != nil {
				return err
			}
			defer r.close()

			api, err := r.session(cmd.Context())
			if err != nil {
				return err
			}

			page, err := res.list(api, cmd.Context(), params)
			if err != nil {
				return apiError(fmt.Sprintf("failed to list %s", res.name), err)
			}

			res.print(r.out, page, params)
			return nil
		},
	}

	cmd.Flags().IntVar(&params.Limit, "limit", 25, "Maximum number of rows")
	cmd.Flags().IntVar(&params.Offset, "offset", 0, "Rows to skip")
	cmd.Flags().StringVarP(&params.Search, "search", "s", "", "Search term")
	cmd.Flags().StringVarP(&params.Ordering, "ordering", "o", "", "Order by field, prefix with - for descending")

	return cmd
}

func (res resource[T]) print(out io.Writer, page *models.Page[T], params models.ListParams) {
	if len(page.Results) == 0 {
		fmt.Fprintf(out, "No %s found.\n", res.name)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(res.header, "\t"))
	rule := make([]string, len(res.header))
	for i, h := range res.header {
		rule[i] = strings.Repeat("─", len([]rune(h)))
	}
	fmt.Fprintln(w, strings.Join(rule, "\t"))
	for _, item := range page.Results {
		fmt.Fprintln(w, strings.Join(res.row(item), "\t"))
	}
	w.Flush()

	shown := params.Offset + len(page.Results)
	fmt.Fprintf(out, "\nShowing %d-%d of %d\n", params.Offset+1, shown, page.Count)
}

func (res resource[T]) getCmd(opts []Option) *cobra.Command {
	return &cobra.Command{
		Use:     "get <id>",
		Aliases: []string{"show"},
		Short:   fmt.Sprintf("Show one %s", res.singular),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			r, err := newEnv(opts)
			if err != nil {
				return err
			}
			defer r.close()

			api, err := r.session(cmd.Context())
			if err != nil {
				return err
			}

			item, err := res.get(api, cmd.Context(), ids[0])
			if err != nil {
				return apiError(fmt.Sprintf("failed to get %s", res.singular), err)
			}

			printFields(r.out, res.detail(item))
			return nil
		},
	}
}

func printFields(out io.Writer, fields []field) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(w, "%s:\t%s\n", f.label, f.value)
	}
	w.Flush()
}

func (res resource[T]) removeCmd(opts []Option) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   fmt.Sprintf("Delete %s by id", res.name),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			r, err := newEnv(opts)
			if err != nil {
				return err
			}
			defer r.close()

			api, err := r.session(cmd.Context())
			if err != nil {
				return err
			}

			noun := res.singular
			if len(ids) > 1 {
				noun = res.name
			}
			if !yes {
				ok, err := r.confirm(fmt.Sprintf("Delete %d %s", len(ids), noun))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(r.out, "Aborted.")
					return nil
				}
			}

			if len(ids) == 1 {
				err = res.remove(api, cmd.Context(), ids[0])
			} else {
				err = res.bulkRemove(api, cmd.Context(), ids)
			}
			if err != nil {
				return apiError(fmt.Sprintf("failed to delete %s", noun), err)
			}

			fmt.Fprintf(r.out, "✓ Deleted %d %s\n", len(ids), noun)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

// editor describes the add and edit subcommands of one API resource. In is
// the resource's write payload.
type editor[T, In any] struct {
	singular string
	addUse   string
	addArgs  int

	// blank returns the payload add starts from
	blank func(args []string) In
	// flags registers the payload flags on cmd and returns a func copying
	// the ones the user set onto a payload
	flags    func(cmd *cobra.Command) func(*In)
	input    func(*T) In
	describe func(*T) string

	get    func(*client.AuthClient, context.Context, int) (*T, error)
	create func(*client.AuthClient, context.Context, In) (*T, error)
	update func(*client.AuthClient, context.Context, int, In) (*T, error)
}

func (e editor[T, In]) addCmd(opts []Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   e.addUse,
		Short: fmt.Sprintf("Create a %s", e.singular),
		Args:  cobra.ExactArgs(e.addArgs),
	}
	apply := e.flags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		in := e.blank(args)
		apply(&in)

		r, err := newEnv(opts)
		if err != nil {
			return err
		}
		defer r.close()

		api, err := r.session(cmd.Context())
		if err != nil {
			return err
		}

		item, err := e.create(api, cmd.Context(), in)
		if err != nil {
			return apiError(fmt.Sprintf("failed to create %s", e.singular), err)
		}
		fmt.Fprintf(r.out, "✓ Created %s %s\n", e.singular, e.describe(item))
		return nil
	}
	return cmd
}

func (e editor[T, In]) editCmd(opts []Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: fmt.Sprintf("Change fields of a %s", e.singular),
		Args:  cobra.ExactArgs(1),
	}
	apply := e.flags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		if cmd.Flags().NFlag() == 0 {
			return errors.New("nothing to change: pass at least one field flag")
		}

		r, err := newEnv(opts)
		if err != nil {
			return err
		}
		defer r.close()

		api, err := r.session(cmd.Context())
		if err != nil {
			return err
		}

		current, err := e.get(api, cmd.Context(), ids[0])
		if err != nil {
			return apiError(fmt.Sprintf("failed to get %s", e.singular), err)
		}

		in := e.input(current)
		apply(&in)

		item, err := e.update(api, cmd.Context(), ids[0], in)
		if err != nil {
			return apiError(fmt.Sprintf("failed to update %s", e.singular), err)
		}
		fmt.Fprintf(r.out, "✓ Updated %s %s\n", e.singular, e.describe(item))
		return nil
	}
	return cmd
}

// attach adds the add and edit subcommands to cmd
func (e editor[T, In]) attach(cmd *cobra.Command, opts []Option) *cobra.Command {
	cmd.AddCommand(e.addCmd(opts), e.editCmd(opts))
	return cmd
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// NewProductsCmd creates the products command
func NewProductsCmd(opts ...Option) *cobra.Command {
	cmd := resource[models.Product]{
		name:     "products",
		singular: "product",
		header:   []string{"ID", "NAME", "CATEGORY", "VARIANTS", "ACTIVE", "UPDATED"},
		row: func(p models.Product) []string {
			return []string{strconv.Itoa(p.ID), p.Name, deref(p.CategoryName), strconv.Itoa(p.VariantCount), yesNo(p.IsActive), p.Updated}
		},
		detail: func(p *models.Product) []field {
			return []field{
				{"ID", strconv.Itoa(p.ID)},
				{"Name", p.Name},
				{"Slug", p.Slug},
				{"Unit", strconv.Itoa(p.Unit)},
				{"Category", optionalName(p.CategoryName, p.Category)},
				{"Tags", strings.Join(p.Tags, ", ")},
				{"Description", deref(p.Description)},
				{"Variants", strconv.Itoa(p.VariantCount)},
				{"Active", yesNo(p.IsActive)},
				{"Updated", p.Updated},
				{"Created", p.Created},
			}
		},
		list:       (*client.AuthClient).ListProducts,
		get:        (*client.AuthClient).GetProduct,
		remove:     (*client.AuthClient).DeleteProduct,
		bulkRemove: (*client.AuthClient).BulkDeleteProducts,
	}.command(opts)

	return editor[models.Product, models.ProductInput]{
		singular: "product",
		addUse:   "add <name>",
		addArgs:  1,
		blank: func(args []string) models.ProductInput {
			return models.ProductInput{Name: args[0], IsActive: true}
		},
		flags:    productFlags,
		input:    (*models.Product).Input,
		describe: func(p *models.Product) string { return fmt.Sprintf("%s (id %d)", p.Name, p.ID) },
		get:      (*client.AuthClient).GetProduct,
		create:   (*client.AuthClient).CreateProduct,
		update:   (*client.AuthClient).UpdateProduct,
	}.attach(cmd, opts)
}

func productFlags(cmd *cobra.Command) func(*models.ProductInput) {
	var (
		name, description string
		unit, category    int
		tags              []string
		active            bool
	)
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "Product name")
	f.IntVar(&unit, "unit", 0, "Unit id")
	f.IntVar(&category, "category", 0, "Category id, 0 for none")
	f.StringVarP(&description, "description", "d", "", "Description")
	f.StringSliceVar(&tags, "tags", nil, "Comma separated tags")
	f.BoolVar(&active, "active", true, "List the product")

	return func(in *models.ProductInput) {
		if f.Changed("name") {
			in.Name = name
		}
		if f.Changed("unit") {
			in.Unit = unit
		}
		if f.Changed("category") {
			in.Category = nil
			if category > 0 {
				in.Category = &category
			}
		}
		if f.Changed("description") {
			in.Description = description
		}
		if f.Changed("tags") {
			in.Tags = tags
		}
		if f.Changed("active") {
			in.IsActive = active
		}
	}
}

// NewVariantsCmd creates the variants command
func NewVariantsCmd(opts ...Option) *cobra.Command {
	cmd := resource[models.ProductVariant]{
		name:     "variants",
		singular: "variant",
		header:   []string{"ID", "SKU", "NAME", "SIZE", "UNIT", "PRICE", "ACTIVE"},
		row: func(v models.ProductVariant) []string {
			return []string{strconv.Itoa(v.ID), v.SKU, v.Name, v.Size, v.Unit, v.Price, yesNo(v.IsActive)}
		},
		detail: func(v *models.ProductVariant) []field {
			product := ""
			if v.Product != nil {
				product = fmt.Sprintf("%s (id %d)", v.Product.Name, v.Product.ID)
			}
			return []field{
				{"ID", strconv.Itoa(v.ID)},
				{"SKU", v.SKU},
				{"Name", v.Name},
				{"Product", product},
				{"Size", v.Size},
				{"Unit", v.Unit},
				{"Price", v.Price},
				{"Brand", deref(v.Brand)},
				{"Flavor", deref(v.Flavor)},
				{"Description", deref(v.Description)},
				{"Active", yesNo(v.IsActive)},
				{"Updated", v.Updated},
			}
		},
		list:       (*client.AuthClient).ListVariants,
		get:        (*client.AuthClient).GetVariant,
		remove:     (*client.AuthClient).DeleteVariant,
		bulkRemove: (*client.AuthClient).BulkDeleteVariants,
	}.command(opts)

	return editor[models.ProductVariant, models.VariantInput]{
		singular: "variant",
		addUse:   "add",
		blank: func([]string) models.VariantInput {
			return models.VariantInput{IsActive: true}
		},
		flags:    variantFlags,
		input:    (*models.ProductVariant).Input,
		describe: func(v *models.ProductVariant) string { return fmt.Sprintf("%s (id %d)", v.SKU, v.ID) },
		get:      (*client.AuthClient).GetVariant,
		create:   (*client.AuthClient).CreateVariant,
		update:   (*client.AuthClient).UpdateVariant,
	}.attach(cmd, opts)
}

func variantFlags(cmd *cobra.Command) func(*models.VariantInput) {
	var (
		product                    int
		size, price                string
		brand, flavor, description string
		active                     bool
	)
	f := cmd.Flags()
	f.IntVar(&product, "product", 0, "Product id")
	f.StringVar(&size, "size", "", "Size, e.g. 500g")
	f.StringVar(&price, "price", "", "Price, e.g. 4.20")
	f.StringVar(&brand, "brand", "", "Brand")
	f.StringVar(&flavor, "flavor", "", "Flavor")
	f.StringVarP(&description, "description", "d", "", "Description")
	f.BoolVar(&active, "active", true, "List the variant")

	return func(in *models.VariantInput) {
		if f.Changed("product") {
			in.Product = product
		}
		if f.Changed("size") {
			in.Size = size
		}
		if f.Changed("price") {
			in.Price = price
		}
		if f.Changed("brand") {
			in.Brand = brand
		}
		if f.Changed("flavor") {
			in.Flavor = flavor
		}
		if f.Changed("description") {
			in.Description = description
		}
		if f.Changed("active") {
			in.IsActive = active
		}
	}
}

// NewCategoriesCmd creates the categories command
func NewCategoriesCmd(opts ...Option) *cobra.Command {
	cmd := resource[models.Category]{
		name:     "categories",
		singular: "category",
		header:   []string{"ID", "NAME", "PRODUCTS", "SLUG"},
		row: func(c models.Category) []string {
			return []string{strconv.Itoa(c.ID), c.Name, strconv.Itoa(c.ProductCount), c.Slug}
		},
		detail: func(c *models.Category) []field {
			return []field{
				{"ID", strconv.Itoa(c.ID)},
				{"Name", c.Name},
				{"Slug", c.Slug},
				{"Description", c.Description},
				{"Products", strconv.Itoa(c.ProductCount)},
				{"Updated", c.Updated},
			}
		},
		list:       (*client.AuthClient).ListCategories,
		get:        (*client.AuthClient).GetCategory,
		remove:     (*client.AuthClient).DeleteCategory,
		bulkRemove: (*client.AuthClient).BulkDeleteCategories,
	}.command(opts)

	return editor[models.Category, models.CategoryInput]{
		singular: "category",
		addUse:   "add <name>",
		addArgs:  1,
		blank: func(args []string) models.CategoryInput {
			return models.CategoryInput{Name: args[0]}
		},
		flags: func(cmd *cobra.Command) func(*models.CategoryInput) {
			var name, description string
			f := cmd.Flags()
			f.StringVar(&name, "name", "", "Category name")
			f.StringVarP(&description, "description", "d", "", "Category description")
			return func(in *models.CategoryInput) {
				if f.Changed("name") {
					in.Name = name
				}
				if f.Changed("description") {
					in.Description = description
				}
			}
		},
		input:    (*models.Category).Input,
		describe: func(c *models.Category) string { return fmt.Sprintf("%s (id %d)", c.Name, c.ID) },
		get:      (*client.AuthClient).GetCategory,
		create:   (*client.AuthClient).CreateCategory,
		update:   (*client.AuthClient).UpdateCategory,
	}.attach(cmd, opts)
}

// NewUnitsCmd creates the units command
func NewUnitsCmd(opts ...Option) *cobra.Command {
	cmd := resource[models.Unit]{
		name:     "units",
		singular: "unit",
		header:   []string{"ID", "NAME", "SYMBOL"},
		row: func(u models.Unit) []string {
			return []string{strconv.Itoa(u.ID), u.Name, u.Symbol}
		},
		detail: func(u *models.Unit) []field {
			return []field{
				{"ID", strconv.Itoa(u.ID)},
				{"Name", u.Name},
				{"Symbol", u.Symbol},
			}
		},
		list:       (*client.AuthClient).ListUnits,
		get:        (*client.AuthClient).GetUnit,
		remove:     (*client.AuthClient).DeleteUnit,
		bulkRemove: (*client.AuthClient).BulkDeleteUnits,
	}.command(opts)

	return editor[models.Unit, models.UnitInput]{
		singular: "unit",
		addUse:   "add <name> <symbol>",
		addArgs:  2,
		blank: func(args []string) models.UnitInput {
			return models.UnitInput{Name: args[0], Symbol: args[1]}
		},
		flags: func(cmd *cobra.Command) func(*models.UnitInput) {
			var name, symbol string
			f := cmd.Flags()
			f.StringVar(&name, "name", "", "Unit name")
			f.StringVar(&symbol, "symbol", "", "Unit symbol")
			return func(in *models.UnitInput) {
				if f.Changed("name") {
					in.Name = name
				}
				if f.Changed("symbol") {
					in.Symbol = symbol
				}
			}
		},
		input:    (*models.Unit).Input,
		describe: func(u *models.Unit) string { return fmt.Sprintf("%s (%s)", u.Name, u.Symbol) },
		get:      (*client.AuthClient).GetUnit,
		create:   (*client.AuthClient).CreateUnit,
		update:   (*client.AuthClient).UpdateUnit,
	}.attach(cmd, opts)
}

// optionalName prefers the related record's name and falls back to its id
func optionalName(name *string, id *int) string {
	switch {
	case name != nil && *name != "":
		return *name
	case id != nil:
		return strconv.Itoa(*id)
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
