package models

import (
	"net/url"
	"strconv"
)

// User is the profile returned by GET /v1/users/me/
type User struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	IsStaff   bool   `json:"is_staff,omitempty"`
}

// DisplayName returns the user's full name, falling back to the email
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}

// Unit is a unit of measure (kg, l, pcs)
type Unit struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Category groups products
type Category struct {
	ID           int     `json:"id"`
	ProductCount int     `json:"product_count"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Image        *string `json:"image"`
	Slug         string  `json:"slug"`
	Updated      string  `json:"updated"`
	Created      string  `json:"created"`
}

// Product is an inventory item
type Product struct {
	ID           int      `json:"id"`
	Author       int      `json:"author"`
	Name         string   `json:"name"`
	VariantCount int      `json:"variant_count"`
	Category     *int     `json:"category,omitempty"`
	CategoryName *string  `json:"category_name"`
	Description  *string  `json:"description,omitempty"`
	Slug         string   `json:"slug"`
	Unit         int      `json:"unit"`
	Tags         []string `json:"tags,omitempty"`
	Image        *string  `json:"image,omitempty"`
	IsActive     bool     `json:"is_active"`
	Updated      string   `json:"updated"`
	Created      string   `json:"created"`
}

// Input returns the product's editable fields
func (p *Product) Input() ProductInput {
	return ProductInput{
		Name:        p.Name,
		Unit:        p.Unit,
		Category:    p.Category,
		Description: deref(p.Description),
		Tags:        p.Tags,
		IsActive:    p.IsActive,
	}
}

// ProductVariant is a sellable variant (size, flavor) of a product
type ProductVariant struct {
	ID          int      `json:"id"`
	SKU         string   `json:"sku"`
	Name        string   `json:"name"`
	Size        string   `json:"size"`
	Unit        string   `json:"unit"`
	Slug        string   `json:"slug"`
	Price       string   `json:"price"`
	Product     *Product `json:"product,omitempty"`
	IsActive    bool     `json:"is_active"`
	IsDeleted   bool     `json:"is_deleted"`
	Image       *string  `json:"image,omitempty"`
	Brand       *string  `json:"brand,omitempty"`
	Flavor      *string  `json:"flavor,omitempty"`
	Description *string  `json:"description,omitempty"`
	Updated     string   `json:"updated"`
	Created     string   `json:"created"`
}

// Input returns the variant's editable fields
func (v *ProductVariant) Input() VariantInput {
	in := VariantInput{
		Size:        v.Size,
		Price:       v.Price,
		Brand:       deref(v.Brand),
		Flavor:      deref(v.Flavor),
		Description: deref(v.Description),
		IsActive:    v.IsActive,
	}
	if v.Product != nil {
		in.Product = v.Product.ID
	}
	return in
}

// Input returns the category's editable fields
func (c *Category) Input() CategoryInput {
	return CategoryInput{Name: c.Name, Description: c.Description}
}

// Input returns the unit's editable fields
func (u *Unit) Input() UnitInput {
	return UnitInput{Name: u.Name, Symbol: u.Symbol}
}

// ProductInput is the payload for creating or updating a product. A nil
// Category clears it.
type ProductInput struct {
	Name        string   `json:"name" validate:"required,min=3,max=200"`
	Unit        int      `json:"unit" validate:"required,gt=0"`
	Category    *int     `json:"category" validate:"omitempty,gt=0"`
	Description string   `json:"description,omitempty" validate:"max=1000"`
	Tags        []string `json:"tags,omitempty" validate:"dive,required,max=50"`
	IsActive    bool     `json:"is_active"`
}

// VariantInput is the payload for creating or updating a product variant
type VariantInput struct {
	Product     int    `json:"product" validate:"required,gt=0"`
	Size        string `json:"size" validate:"required,min=3,max=100"`
	Price       string `json:"price" validate:"required,numeric"`
	Brand       string `json:"brand,omitempty" validate:"max=100"`
	Flavor      string `json:"flavor,omitempty" validate:"max=100"`
	Description string `json:"description,omitempty" validate:"max=1000"`
	IsActive    bool   `json:"is_active"`
}

// CategoryInput is the payload for creating or updating a category
type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"max=1000"`
}

// UnitInput is the payload for creating or updating a unit
type UnitInput struct {
	Name   string `json:"name" validate:"required,max=100"`
	Symbol string `json:"symbol" validate:"required,max=20"`
}

// Page is a limit/offset paginated list response
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// ListParams controls pagination, search and ordering of list calls
type ListParams struct {
	Limit  int
	Offset int
	Search string
	// Ordering is a field name, prefixed with "-" for descending order
	Ordering string
	Category int
}

// Query encodes the params as a URL query, omitting zero values
func (p ListParams) Query() url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if p.Ordering != "" {
		q.Set("ordering", p.Ordering)
	}
	if p.Category > 0 {
		q.Set("category", strconv.Itoa(p.Category))
	}
	return q
}

// BulkDeleteRequest is the body of the bulk-delete endpoints
type BulkDeleteRequest struct {
	IDs []int `json:"ids"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
