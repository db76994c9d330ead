package models

import (
	"strconv"

	apierrors "github.com/nkkko/lista/internal/api/errors"
	"github.com/nkkko/lista/internal/validation"
	"github.com/nkkko/lista/pkg/proto"
)

// CreateListRequest is the request to create a list
type CreateListRequest struct {
	proto.CreateListRequest
}

// Validate validates the request
func (r *CreateListRequest) Validate() error {
	return validation.ValidateListTitle(r.Title)
}

// UpdateListRequest is the request to rename a list
type UpdateListRequest struct {
	proto.UpdateListRequest
}

// Validate validates the request
func (r *UpdateListRequest) Validate() error {
	return validation.ValidateListTitle(r.Title)
}

// ReorderRequest is the batch of new menu positions
type ReorderRequest []proto.ReorderItem

// Validate validates the request
func (r *ReorderRequest) Validate() error {
	if len(*r) == 0 {
		return apierrors.ValidationError("empty_reorder", "At least one list is required")
	}
	seen := make(map[proto.ID]bool, len(*r))
	for i, item := range *r {
		if item.Id.IsZero() {
			return apierrors.ValidationError("missing_id", "Item "+strconv.Itoa(i)+" has no id")
		}
		if seen[item.Id] {
			return apierrors.ValidationError("duplicate_id", "List "+item.Id.String()+" appears twice")
		}
		seen[item.Id] = true
	}
	return nil
}

// AcceptShareRequest is the request to join a list by share code
type AcceptShareRequest struct {
	proto.AcceptShareRequest
}

// Validate validates the request
func (r *AcceptShareRequest) Validate() error {
	return validation.ValidateShareCode(r.Code)
}

// ProductRequest creates or renames a product
type ProductRequest struct {
	proto.CreateProductRequest
}

// Validate validates the request
func (r *ProductRequest) Validate() error {
	return validation.ValidateProductName(r.Title)
}

// AddProductRequest places a product on a list
type AddProductRequest struct {
	proto.AddProductRequest
}

// Validate validates the request
func (r *AddProductRequest) Validate() error {
	if r.ProductId.IsZero() {
		return apierrors.ValidationError("missing_product_id", "Product ID is required")
	}
	if r.Quantity != 0 {
		return validation.ValidateQuantity(r.Quantity)
	}
	return nil
}

// UpdateListProductRequest changes a product on a list
type UpdateListProductRequest struct {
	proto.UpdateListProductRequest
}

// Validate validates the request
func (r *UpdateListProductRequest) Validate() error {
	if r.Quantity == nil && r.Checked == nil && r.Bagged == nil {
		return apierrors.ValidationError("empty_update", "Nothing to update")
	}
	if r.Quantity != nil {
		return validation.ValidateQuantity(*r.Quantity)
	}
	return nil
}

// DevLoginRequest asks for a development token
type DevLoginRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Validate validates the request
func (r *DevLoginRequest) Validate() error {
	return validation.First(
		validation.Required("name", r.Name),
		validation.MaxLength("name", r.Name, validation.MaxProductNameLength),
	)
}
