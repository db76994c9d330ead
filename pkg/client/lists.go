package client

import (
	"context"
	"net/http"

	"github.com/nkkko/lista/pkg/proto"
)

// ListLists returns the lists owned by or shared with the user
func (c *Client) ListLists(ctx context.Context) ([]proto.List, error) {
	var lists []proto.List
	if err := c.do(ctx, "list_lists", http.MethodGet, "/api/v1/lists", nil, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// GetList retrieves a list by ID
func (c *Client) GetList(ctx context.Context, id proto.ID) (*proto.List, error) {
	var list proto.List
	if err := c.do(ctx, "get_list", http.MethodGet, idPath("/api/v1/lists/%s", id), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateList creates a new list
func (c *Client) CreateList(ctx context.Context, title string) (*proto.List, error) {
	var list proto.List
	req := &proto.CreateListRequest{Title: title}
	if err := c.do(ctx, "create_list", http.MethodPost, "/api/v1/lists", req, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// UpdateList renames a list
func (c *Client) UpdateList(ctx context.Context, id proto.ID, title string) (*proto.List, error) {
	var list proto.List
	req := &proto.UpdateListRequest{Title: title}
	if err := c.do(ctx, "update_list", http.MethodPatch, idPath("/api/v1/lists/%s", id), req, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// DeleteList deletes a list
func (c *Client) DeleteList(ctx context.Context, id proto.ID) error {
	return c.do(ctx, "delete_list", http.MethodDelete, idPath("/api/v1/lists/%s", id), nil, nil)
}

// ReorderLists stores a new menu order for the given lists in one request
func (c *Client) ReorderLists(ctx context.Context, items []proto.ReorderItem) error {
	return c.do(ctx, "reorder_lists", http.MethodPost, "/api/v1/lists/reorder", items, nil)
}

// CopyList duplicates a list with its products
func (c *Client) CopyList(ctx context.Context, id proto.ID) (*proto.List, error) {
	var list proto.List
	if err := c.do(ctx, "copy_list", http.MethodPost, idPath("/api/v1/lists/%s/copy", id), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// LeaveList removes the user from a list shared with them
func (c *Client) LeaveList(ctx context.Context, id proto.ID) error {
	return c.do(ctx, "leave_list", http.MethodPost, idPath("/api/v1/lists/%s/leave", id), nil, nil)
}

// RemoveMember removes another user from a list the user owns
func (c *Client) RemoveMember(ctx context.Context, listID, userID proto.ID) error {
	return c.do(ctx, "remove_member", http.MethodDelete, idPath("/api/v1/lists/%s/members/%s", listID, userID), nil, nil)
}

// AcceptShare joins a list by its share code
func (c *Client) AcceptShare(ctx context.Context, code string) (*proto.List, error) {
	var list proto.List
	req := &proto.AcceptShareRequest{Code: code}
	if err := c.do(ctx, "accept_share", http.MethodPost, "/api/v1/shares/accept", req, &list); err != nil {
		return nil, err
	}
	return &list, nil
}
