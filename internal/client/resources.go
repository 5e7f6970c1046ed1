package client

import (
	"context"
	"fmt"

	"github.com/stockpile-dev/stockpile/internal/models"
)

// Me returns the profile of the user owning the current credential
func (a *AuthClient) Me(ctx context.Context) (*models.User, error) {
	return get[models.User](ctx, a, "/v1/users/me/")
}

// Logout invalidates the server-side refresh state
func (a *AuthClient) Logout(ctx context.Context) error {
	return a.Post(ctx, "/token/logout/", nil, nil)
}

// ListProducts returns a page of products
func (a *AuthClient) ListProducts(ctx context.Context, p models.ListParams) (*models.Page[models.Product], error) {
	return list[models.Product](ctx, a, "/v1/products/", p)
}

// GetProduct returns one product
func (a *AuthClient) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	return get[models.Product](ctx, a, fmt.Sprintf("/v1/products/%d/", id))
}

// CreateProduct creates a product
func (a *AuthClient) CreateProduct(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	return create[models.Product](ctx, a, "product", "/v1/products/", in)
}

// UpdateProduct patches a product
func (a *AuthClient) UpdateProduct(ctx context.Context, id int, in models.ProductInput) (*models.Product, error) {
	return update[models.Product](ctx, a, "product", fmt.Sprintf("/v1/products/%d/", id), in)
}

// DeleteProduct deletes one product
func (a *AuthClient) DeleteProduct(ctx context.Context, id int) error {
	return a.Delete(ctx, fmt.Sprintf("/v1/products/%d/", id))
}

// BulkDeleteProducts deletes several products in one call
func (a *AuthClient) BulkDeleteProducts(ctx context.Context, ids []int) error {
	return bulkDelete(ctx, a, "/v1/products/bulk-delete/", ids)
}

// ListVariants returns a page of product variants
func (a *AuthClient) ListVariants(ctx context.Context, p models.ListParams) (*models.Page[models.ProductVariant], error) {
	return list[models.ProductVariant](ctx, a, "/v1/variants/", p)
}

// GetVariant returns one product variant
func (a *AuthClient) GetVariant(ctx context.Context, id int) (*models.ProductVariant, error) {
	return get[models.ProductVariant](ctx, a, fmt.Sprintf("/v1/variants/%d/", id))
}

// CreateVariant creates a product variant
func (a *AuthClient) CreateVariant(ctx context.Context, in models.VariantInput) (*models.ProductVariant, error) {
	return create[models.ProductVariant](ctx, a, "variant", "/v1/variants/", in)
}

// UpdateVariant patches a product variant
func (a *AuthClient) UpdateVariant(ctx context.Context, id int, in models.VariantInput) (*models.ProductVariant, error) {
	return update[models.ProductVariant](ctx, a, "variant", fmt.Sprintf("/v1/variants/%d/", id), in)
}

// DeleteVariant deletes one product variant
func (a *AuthClient) DeleteVariant(ctx context.Context, id int) error {
	return a.Delete(ctx, fmt.Sprintf("/v1/variants/%d/", id))
}

// BulkDeleteVariants deletes several product variants in one call
func (a *AuthClient) BulkDeleteVariants(ctx context.Context, ids []int) error {
	return bulkDelete(ctx, a, "/v1/variants/bulk-delete/", ids)
}

// ListCategories returns a page of categories
func (a *AuthClient) ListCategories(ctx context.Context, p models.ListParams) (*models.Page[models.Category], error) {
	return list[models.Category](ctx, a, "/v1/categories/", p)
}

// GetCategory returns one category
func (a *AuthClient) GetCategory(ctx context.Context, id int) (*models.Category, error) {
	return get[models.Category](ctx, a, fmt.Sprintf("/v1/categories/%d/", id))
}

// CreateCategory creates a category
func (a *AuthClient) CreateCategory(ctx context.Context, in models.CategoryInput) (*models.Category, error) {
	return create[models.Category](ctx, a, "category", "/v1/categories/", in)
}

// UpdateCategory patches a category
func (a *AuthClient) UpdateCategory(ctx context.Context, id int, in models.CategoryInput) (*models.Category, error) {
	return update[models.Category](ctx, a, "category", fmt.Sprintf("/v1/categories/%d/", id), in)
}

// DeleteCategory deletes one category
func (a *AuthClient) DeleteCategory(ctx context.Context, id int) error {
	return a.Delete(ctx, fmt.Sprintf("/v1/categories/%d/", id))
}

// BulkDeleteCategories deletes several categories in one call
func (a *AuthClient) BulkDeleteCategories(ctx context.Context, ids []int) error {
	return bulkDelete(ctx, a, "/v1/categories/bulk-delete/", ids)
}

// ListUnits returns a page of units
func (a *AuthClient) ListUnits(ctx context.Context, p models.ListParams) (*models.Page[models.Unit], error) {
	return list[models.Unit](ctx, a, "/v1/units/", p)
}

// GetUnit returns one unit
func (a *AuthClient) GetUnit(ctx context.Context, id int) (*models.Unit, error) {
	return get[models.Unit](ctx, a, fmt.Sprintf("/v1/units/%d/", id))
}

// CreateUnit creates a unit
func (a *AuthClient) CreateUnit(ctx context.Context, in models.UnitInput) (*models.Unit, error) {
	return create[models.Unit](ctx, a, "unit", "/v1/units/", in)
}

// UpdateUnit patches a unit
func (a *AuthClient) UpdateUnit(ctx context.Context, id int, in models.UnitInput) (*models.Unit, error) {
	return update[models.Unit](ctx, a, "unit", fmt.Sprintf("/v1/units/%d/", id), in)
}

// DeleteUnit deletes one unit
func (a *AuthClient) DeleteUnit(ctx context.Context, id int) error {
	return a.Delete(ctx, fmt.Sprintf("/v1/units/%d/", id))
}

// BulkDeleteUnits deletes several units in one call
func (a *AuthClient) BulkDeleteUnits(ctx context.Context, ids []int) error {
	return bulkDelete(ctx, a, "/v1/units/bulk-delete/", ids)
}

func list[T any](ctx context.Context, a *AuthClient, path string, p models.ListParams) (*models.Page[T], error) {
	var page models.Page[T]
	if err := a.Get(ctx, path, p.Query(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func get[T any](ctx context.Context, a *AuthClient, path string) (*T, error) {
	var out T
	if err := a.Get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// create validates in and posts it to path
func create[T any](ctx context.Context, a *AuthClient, resource, path string, in any) (*T, error) {
	if err := validateInput(resource, in); err != nil {
		return nil, err
	}
	var out T
	if err := a.Post(ctx, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// update validates in and patches path with it
func update[T any](ctx context.Context, a *AuthClient, resource, path string, in any) (*T, error) {
	if err := validateInput(resource, in); err != nil {
		return nil, err
	}
	var out T
	if err := a.Patch(ctx, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func bulkDelete(ctx context.Context, a *AuthClient, path string, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	return a.Post(ctx, path, models.BulkDeleteRequest{IDs: ids}, nil)
}
