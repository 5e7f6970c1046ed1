package dash

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/stockpile-dev/stockpile/internal/client"
	"github.com/stockpile-dev/stockpile/internal/models"
)

// formField is one input of a create or edit form
type formField struct {
	Name     string
	Label    string
	Type     string
	Required bool
}

// listing is one fetched page of a resource, ready to render
type listing struct {
	Count int
	Rows  []tableRow
}

type tableRow struct {
	ID    int
	Cells []string
}

// record is one fetched item, ready to show and edit
type record struct {
	ID     int
	Title  string
	Rows   []detailRow
	Values url.Values
}

type detailRow struct {
	Label string
	Value string
}

// resourceView describes how the console lists and edits one resource
type resourceView struct {
	Name    string
	Title   string
	Columns []string
	Fields  []formField

	// Defaults prefill the create form
	Defaults url.Values

	fetch      func(ctx context.Context, api *client.AuthClient, p models.ListParams) (*listing, error)
	detail     func(ctx context.Context, api *client.AuthClient, id int) (*record, error)
	create     func(ctx context.Context, api *client.AuthClient, form url.Values) error
	update     func(ctx context.Context, api *client.AuthClient, id int, form url.Values) error
	remove     func(ctx context.Context, api *client.AuthClient, id int) error
	bulkRemove func(ctx context.Context, api *client.AuthClient, ids []int) error
}

// Path is the list route of the resource
func (v *resourceView) Path() string {
	return "/" + v.Name
}

// ItemPath is the detail route of one item
func (v *resourceView) ItemPath(id int) string {
	return fmt.Sprintf("/%s/%d", v.Name, id)
}

// viewDef binds a resource's model and payload types to its API calls
type viewDef[T, In any] struct {
	name     string
	title    string
	columns  []string
	fields   []formField
	defaults url.Values

	row   func(T) tableRow
	show  func(*T) *record
	parse func(url.Values) In

	list       func(*client.AuthClient, context.Context, models.ListParams) (*models.Page[T], error)
	get        func(*client.AuthClient, context.Context, int) (*T, error)
	create     func(*client.AuthClient, context.Context, In) (*T, error)
	update     func(*client.AuthClient, context.Context, int, In) (*T, error)
	remove     func(*client.AuthClient, context.Context, int) error
	bulkRemove func(*client.AuthClient, context.Context, []int) error
}

func (d viewDef[T, In]) view() *resourceView {
	return &resourceView{
		Name:     d.name,
		Title:    d.title,
		Columns:  d.columns,
		Fields:   d.fields,
		Defaults: d.defaults,
		fetch: func(ctx context.Context, api *client.AuthClient, p models.ListParams) (*listing, error) {
			page, err := d.list(api, ctx, p)
			if err != nil {
				return nil, err
			}
			out := &listing{Count: page.Count, Rows: make([]tableRow, 0, len(page.Results))}
			for _, item := range page.Results {
				out.Rows = append(out.Rows, d.row(item))
			}
			return out, nil
		},
		detail: func(ctx context.Context, api *client.AuthClient, id int) (*record, error) {
			item, err := d.get(api, ctx, id)
			if err != nil {
				return nil, err
			}
			return d.show(item), nil
		},
		create: func(ctx context.Context, api *client.AuthClient, form url.Values) error {
			_, err := d.create(api, ctx, d.parse(form))
			return err
		},
		update: func(ctx context.Context, api *client.AuthClient, id int, form url.Values) error {
			_, err := d.update(api, ctx, id, d.parse(form))
			return err
		},
		remove: func(ctx context.Context, api *client.AuthClient, id int) error {
			return d.remove(api, ctx, id)
		},
		bulkRemove: func(ctx context.Context, api *client.AuthClient, ids []int) error {
			return d.bulkRemove(api, ctx, ids)
		},
	}
}

func resourceViews() []*resourceView {
	products := viewDef[models.Product, models.ProductInput]{
		name:    "products",
		title:   "Products",
		columns: []string{"ID", "Name", "Category", "Variants", "Active", "Updated"},
		fields: []formField{
			{Name: "name", Label: "Name", Type: "text", Required: true},
			{Name: "unit", Label: "Unit id", Type: "number", Required: true},
			{Name: "category", Label: "Category id", Type: "number"},
			{Name: "tags", Label: "Tags", Type: "text"},
			{Name: "description", Label: "Description", Type: "text"},
			{Name: "is_active", Label: "Active", Type: "checkbox"},
		},
		defaults: url.Values{"is_active": {"on"}},
		row: func(p models.Product) tableRow {
			return tableRow{ID: p.ID, Cells: []string{
				strconv.Itoa(p.ID), p.Name, deref(p.CategoryName), strconv.Itoa(p.VariantCount), yesNo(p.IsActive), p.Updated,
			}}
		},
		show: func(p *models.Product) *record {
			in := p.Input()
			return &record{
				ID:    p.ID,
				Title: p.Name,
				Rows: []detailRow{
					{"Slug", p.Slug},
					{"Unit", strconv.Itoa(p.Unit)},
					{"Category", deref(p.CategoryName)},
					{"Tags", strings.Join(p.Tags, ", ")},
					{"Description", in.Description},
					{"Variants", strconv.Itoa(p.VariantCount)},
					{"Active", yesNo(p.IsActive)},
					{"Updated", p.Updated},
				},
				Values: url.Values{
					"name":        {in.Name},
					"unit":        {strconv.Itoa(in.Unit)},
					"category":    {optionalID(in.Category)},
					"tags":        {strings.Join(in.Tags, ", ")},
					"description": {in.Description},
					"is_active":   {checked(in.IsActive)},
				},
			}
		},
		parse: func(form url.Values) models.ProductInput {
			in := models.ProductInput{
				Name:        text(form, "name"),
				Unit:        number(form, "unit"),
				Description: text(form, "description"),
				IsActive:    form.Get("is_active") != "",
			}
			if category := number(form, "category"); category > 0 {
				in.Category = &category
			}
			for _, tag := range strings.Split(form.Get("tags"), ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					in.Tags = append(in.Tags, tag)
				}
			}
			return in
		},
		list:       (*client.AuthClient).ListProducts,
		get:        (*client.AuthClient).GetProduct,
		create:     (*client.AuthClient).CreateProduct,
		update:     (*client.AuthClient).UpdateProduct,
		remove:     (*client.AuthClient).DeleteProduct,
		bulkRemove: (*client.AuthClient).BulkDeleteProducts,
	}

	variants := viewDef[models.ProductVariant, models.VariantInput]{
		name:    "variants",
		title:   "Variants",
		columns: []string{"ID", "SKU", "Name", "Size", "Unit", "Price", "Active"},
		fields: []formField{
			{Name: "product", Label: "Product id", Type: "number", Required: true},
			{Name: "size", Label: "Size", Type: "text", Required: true},
			{Name: "price", Label: "Price", Type: "text", Required: true},
			{Name: "brand", Label: "Brand", Type: "text"},
			{Name: "flavor", Label: "Flavor", Type: "text"},
			{Name: "description", Label: "Description", Type: "text"},
			{Name: "is_active", Label: "Active", Type: "checkbox"},
		},
		defaults: url.Values{"is_active": {"on"}},
		row: func(v models.ProductVariant) tableRow {
			return tableRow{ID: v.ID, Cells: []string{
				strconv.Itoa(v.ID), v.SKU, v.Name, v.Size, v.Unit, v.Price, yesNo(v.IsActive),
			}}
		},
		show: func(v *models.ProductVariant) *record {
			in := v.Input()
			title := v.SKU
			if v.Name != "" {
				title = v.Name
			}
			return &record{
				ID:    v.ID,
				Title: title,
				Rows: []detailRow{
					{"SKU", v.SKU},
					{"Product", strconv.Itoa(in.Product)},
					{"Size", v.Size},
					{"Unit", v.Unit},
					{"Price", v.Price},
					{"Brand", in.Brand},
					{"Flavor", in.Flavor},
					{"Active", yesNo(v.IsActive)},
					{"Updated", v.Updated},
				},
				Values: url.Values{
					"product":     {strconv.Itoa(in.Product)},
					"size":        {in.Size},
					"price":       {in.Price},
					"brand":       {in.Brand},
					"flavor":      {in.Flavor},
					"description": {in.Description},
					"is_active":   {checked(in.IsActive)},
				},
			}
		},
		parse: func(form url.Values) models.VariantInput {
			return models.VariantInput{
				Product:     number(form, "product"),
				Size:        text(form, "size"),
				Price:       text(form, "price"),
				Brand:       text(form, "brand"),
				Flavor:      text(form, "flavor"),
				Description: text(form, "description"),
				IsActive:    form.Get("is_active") != "",
			}
		},
		list:       (*client.AuthClient).ListVariants,
		get:        (*client.AuthClient).GetVariant,
		create:     (*client.AuthClient).CreateVariant,
		update:     (*client.AuthClient).UpdateVariant,
		remove:     (*client.AuthClient).DeleteVariant,
		bulkRemove: (*client.AuthClient).BulkDeleteVariants,
	}

	categories := viewDef[models.Category, models.CategoryInput]{
		name:    "categories",
		title:   "Categories",
		columns: []string{"ID", "Name", "Products", "Slug", "Updated"},
		fields: []formField{
			{Name: "name", Label: "Name", Type: "text", Required: true},
			{Name: "description", Label: "Description", Type: "text"},
		},
		row: func(c models.Category) tableRow {
			return tableRow{ID: c.ID, Cells: []string{
				strconv.Itoa(c.ID), c.Name, strconv.Itoa(c.ProductCount), c.Slug, c.Updated,
			}}
		},
		show: func(c *models.Category) *record {
			return &record{
				ID:    c.ID,
				Title: c.Name,
				Rows: []detailRow{
					{"Slug", c.Slug},
					{"Description", c.Description},
					{"Products", strconv.Itoa(c.ProductCount)},
					{"Updated", c.Updated},
				},
				Values: url.Values{
					"name":        {c.Name},
					"description": {c.Description},
				},
			}
		},
		parse: func(form url.Values) models.CategoryInput {
			return models.CategoryInput{
				Name:        text(form, "name"),
				Description: text(form, "description"),
			}
		},
		list:       (*client.AuthClient).ListCategories,
		get:        (*client.AuthClient).GetCategory,
		create:     (*client.AuthClient).CreateCategory,
		update:     (*client.AuthClient).UpdateCategory,
		remove:     (*client.AuthClient).DeleteCategory,
		bulkRemove: (*client.AuthClient).BulkDeleteCategories,
	}

	units := viewDef[models.Unit, models.UnitInput]{
		name:    "units",
		title:   "Units",
		columns: []string{"ID", "Name", "Symbol"},
		fields: []formField{
			{Name: "name", Label: "Name", Type: "text", Required: true},
			{Name: "symbol", Label: "Symbol", Type: "text", Required: true},
		},
		row: func(u models.Unit) tableRow {
			return tableRow{ID: u.ID, Cells: []string{strconv.Itoa(u.ID), u.Name, u.Symbol}}
		},
		show: func(u *models.Unit) *record {
			return &record{
				ID:     u.ID,
				Title:  u.Name,
				Rows:   []detailRow{{"Symbol", u.Symbol}},
				Values: url.Values{"name": {u.Name}, "symbol": {u.Symbol}},
			}
		},
		parse: func(form url.Values) models.UnitInput {
			return models.UnitInput{
				Name:   text(form, "name"),
				Symbol: text(form, "symbol"),
			}
		},
		list:       (*client.AuthClient).ListUnits,
		get:        (*client.AuthClient).GetUnit,
		create:     (*client.AuthClient).CreateUnit,
		update:     (*client.AuthClient).UpdateUnit,
		remove:     (*client.AuthClient).DeleteUnit,
		bulkRemove: (*client.AuthClient).BulkDeleteUnits,
	}

	return []*resourceView{products.view(), variants.view(), categories.view(), units.view()}
}

func text(form url.Values, key string) string {
	return strings.TrimSpace(form.Get(key))
}

// number reads an integer field; blank or malformed input reads as zero
// and is reported by validation
func number(form url.Values, key string) int {
	n, err := strconv.Atoi(text(form, key))
	if err != nil {
		return 0
	}
	return n
}

func optionalID(id *int) string {
	if id == nil {
		return ""
	}
	return strconv.Itoa(*id)
}

func checked(b bool) string {
	if b {
		return "on"
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
