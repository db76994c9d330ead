// Package store holds the client-side state the presentation layer renders:
// lists, the open list's products, the signed-in user, overlays,
// notifications and form validation errors.
//
// Mutators apply their change optimistically, call the content API and revert
// to the pre-mutation snapshot when the call fails.
package store

import (
	"context"

	"github.com/nkkko/lista/pkg/client"
	"github.com/nkkko/lista/pkg/proto"
)

// ListGateway is the part of the content API the list store calls
type ListGateway interface {
	ListLists(ctx context.Context) ([]proto.List, error)
	CreateList(ctx context.Context, title string) (*proto.List, error)
	UpdateList(ctx context.Context, id proto.ID, title string) (*proto.List, error)
	DeleteList(ctx context.Context, id proto.ID) error
	ReorderLists(ctx context.Context, items []proto.ReorderItem) error
	CopyList(ctx context.Context, id proto.ID) (*proto.List, error)
	LeaveList(ctx context.Context, id proto.ID) error
	RemoveMember(ctx context.Context, listID, userID proto.ID) error
	AcceptShare(ctx context.Context, code string) (*proto.List, error)
}

// ProductGateway is the part of the content API the product store calls
type ProductGateway interface {
	SearchProducts(ctx context.Context, query string) ([]proto.Product, error)
	CreateProduct(ctx context.Context, req *proto.CreateProductRequest) (*proto.Product, error)
	ListProducts(ctx context.Context, listID proto.ID) ([]proto.ListProduct, error)
	AddProductToList(ctx context.Context, listID proto.ID, req *proto.AddProductRequest) (*proto.ListProduct, error)
	RemoveProductFromList(ctx context.Context, listID, productID proto.ID) error
	UpdateListProduct(ctx context.Context, listID, productID proto.ID, req *proto.UpdateListProductRequest) (*proto.ListProduct, error)
}

// UserGateway is the part of the content API the user store calls
type UserGateway interface {
	Me(ctx context.Context) (*proto.User, error)
	SetToken(token string)
}

// Gateway is the whole content API
type Gateway interface {
	ListGateway
	ProductGateway
	UserGateway
}

// Ensure the REST client satisfies Gateway
var _ Gateway = (*client.Client)(nil)
