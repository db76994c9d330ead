package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID is a resource identifier issued by the content API.
// The API is inconsistent about quoting ids, so both 42 and "42" decode.
type ID int64

// UnmarshalJSON accepts a JSON number, a quoted number or null
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", data, err)
	}
	*id = ID(v)
	return nil
}

// String returns the decimal form of the id
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// IsZero reports whether the id is absent
func (id ID) IsZero() bool {
	return id == 0
}

// ParseID parses a decimal id; the empty string yields the zero id
func ParseID(s string) (ID, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ID(v), nil
}

// NotificationType classifies a user-facing notification
type NotificationType string

const (
	NotificationType_INFO    NotificationType = "info"
	NotificationType_SUCCESS NotificationType = "success"
	NotificationType_WARNING NotificationType = "warning"
	NotificationType_ERROR   NotificationType = "error"
)

// Member is a user a list is shared with
type Member struct {
	Id    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// List is a named collection of products owned by one user
type List struct {
	Id                  ID        `json:"id"`
	Title               string    `json:"title"`
	MenuOrder           int       `json:"menu_order"`
	Owner               ID        `json:"owner"`
	SharedWith          []Member  `json:"shared_with,omitempty"`
	ShareCode           string    `json:"share_code,omitempty"`
	ProductCount        int       `json:"product_count"`
	BaggedProductCount  int       `json:"bagged_product_count"`
	CheckedProductCount int       `json:"checked_product_count"`
	UpdatedAt           time.Time `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of the list
func (l List) Clone() List {
	if l.SharedWith != nil {
		members := make([]Member, len(l.SharedWith))
		copy(members, l.SharedWith)
		l.SharedWith = members
	}
	return l
}

// Product is a catalog entry; custom products are created ad hoc by users
type Product struct {
	Id       ID     `json:"id"`
	Title    string `json:"title"`
	Custom   bool   `json:"custom,omitempty"`
	Category string `json:"category,omitempty"`
}

// ListProduct is a product placed on a list
type ListProduct struct {
	ProductId ID     `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	Checked   bool   `json:"checked"`
	Bagged    bool   `json:"bagged"`
	MenuOrder int    `json:"menu_order"`
}

// User is an authenticated account
type User struct {
	Id    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// ReorderItem is one element of a batch reorder request
type ReorderItem struct {
	Id        ID  `json:"id"`
	MenuOrder int `json:"menu_order"`
}

// Notification is a transient user-facing message
type Notification struct {
	Message string           `json:"message"`
	Type    NotificationType `json:"type"`
	Timeout time.Duration    `json:"timeout"`
}

// CreateListRequest creates a new list
type CreateListRequest struct {
	Title string `json:"title"`
}

// UpdateListRequest renames a list
type UpdateListRequest struct {
	Title string `json:"title"`
}

// AcceptShareRequest joins a shared list by its share code
type AcceptShareRequest struct {
	Code string `json:"code"`
}

// CreateProductRequest creates a catalog or custom product
type CreateProductRequest struct {
	Title    string `json:"title"`
	Custom   bool   `json:"custom,omitempty"`
	Category string `json:"category,omitempty"`
}

// AddProductRequest places a product on a list
type AddProductRequest struct {
	ProductId ID  `json:"product_id"`
	Quantity  int `json:"quantity,omitempty"`
}

// UpdateListProductRequest changes the state of a product on a list.
// Nil fields are left unchanged.
type UpdateListProductRequest struct {
	Quantity *int  `json:"quantity,omitempty"`
	Checked  *bool `json:"checked,omitempty"`
	Bagged   *bool `json:"bagged,omitempty"`
}

// Error wraps an error message for consistent error handling
type Error struct {
	Message string
}

// NewError creates a new Error
func NewError(msg string) error {
	return &Error{Message: msg}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("lista: %s", e.Message)
}
