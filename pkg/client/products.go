package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/nkkko/lista/pkg/proto"
)

// SearchProducts finds catalog and custom products whose title matches query
func (c *Client) SearchProducts(ctx context.Context, query string) ([]proto.Product, error) {
	path := "/api/v1/products?search=" + url.QueryEscape(query)

	var products []proto.Product
	if err := c.do(ctx, "search_products", http.MethodGet, path, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// CreateProduct creates a product
func (c *Client) CreateProduct(ctx context.Context, req *proto.CreateProductRequest) (*proto.Product, error) {
	var product proto.Product
	if err := c.do(ctx, "create_product", http.MethodPost, "/api/v1/products", req, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProduct renames a product
func (c *Client) UpdateProduct(ctx context.Context, id proto.ID, req *proto.CreateProductRequest) (*proto.Product, error) {
	var product proto.Product
	if err := c.do(ctx, "update_product", http.MethodPatch, idPath("/api/v1/products/%s", id), req, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// DeleteProduct deletes a product
func (c *Client) DeleteProduct(ctx context.Context, id proto.ID) error {
	return c.do(ctx, "delete_product", http.MethodDelete, idPath("/api/v1/products/%s", id), nil, nil)
}

// ListProducts returns the products placed on a list
func (c *Client) ListProducts(ctx context.Context, listID proto.ID) ([]proto.ListProduct, error) {
	var items []proto.ListProduct
	if err := c.do(ctx, "list_products", http.MethodGet, idPath("/api/v1/lists/%s/products", listID), nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// AddProductToList places a product on a list
func (c *Client) AddProductToList(ctx context.Context, listID proto.ID, req *proto.AddProductRequest) (*proto.ListProduct, error) {
	var item proto.ListProduct
	if err := c.do(ctx, "add_product", http.MethodPost, idPath("/api/v1/lists/%s/products", listID), req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// RemoveProductFromList takes a product off a list
func (c *Client) RemoveProductFromList(ctx context.Context, listID, productID proto.ID) error {
	return c.do(ctx, "remove_product", http.MethodDelete, idPath("/api/v1/lists/%s/products/%s", listID, productID), nil, nil)
}

// UpdateListProduct changes quantity, checked or bagged state of a product on a list
func (c *Client) UpdateListProduct(ctx context.Context, listID, productID proto.ID, req *proto.UpdateListProductRequest) (*proto.ListProduct, error) {
	var item proto.ListProduct
	path := idPath("/api/v1/lists/%s/products/%s", listID, productID)
	if err := c.do(ctx, "update_list_product", http.MethodPatch, path, req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}
