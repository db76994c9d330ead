package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nkkko/lista/internal/storage"
	"github.com/nkkko/lista/internal/validation"
	"github.com/nkkko/lista/pkg/proto"
)

// SearchProducts returns products whose title contains query, case-insensitively.
// An empty query returns the whole catalog.
func (s *Store) SearchProducts(ctx context.Context, query string) ([]proto.Product, error) {
	prefix := storage.Key("product") + ":"
	entries, err := s.storage.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	products := make([]proto.Product, 0, len(entries))
	for _, entry := range entries {
		var p proto.Product
		if err := json.Unmarshal(entry.Value, &p); err != nil {
			s.logger.Warn().Err(err).Str("key", entry.Key).Msg("Skipping unreadable product")
			continue
		}
		if query == "" || strings.Contains(strings.ToLower(p.Title), query) {
			products = append(products, p)
		}
	}

	sort.Slice(products, func(i, j int) bool {
		return strings.ToLower(products[i].Title) < strings.ToLower(products[j].Title)
	})
	return products, nil
}

// Product returns a product by id
func (s *Store) Product(ctx context.Context, id proto.ID) (*proto.Product, error) {
	var p proto.Product
	if err := s.get(ctx, idKey("product", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProduct adds a product to the catalog
func (s *Store) CreateProduct(ctx context.Context, req *proto.CreateProductRequest) (*proto.Product, error) {
	title := strings.TrimSpace(req.Title)
	if err := validation.ValidateProductName(title); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.nextID(ctx, "product")
	if err != nil {
		return nil, err
	}
	p := &proto.Product{Id: id, Title: title, Custom: req.Custom, Category: req.Category}
	if err := storage.SetJSON(ctx, s.storage, idKey("product", id), p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProduct renames a product; empty category leaves it unchanged
func (s *Store) UpdateProduct(ctx context.Context, id proto.ID, req *proto.CreateProductRequest) (*proto.Product, error) {
	title := strings.TrimSpace(req.Title)
	if err := validation.ValidateProductName(title); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.Product(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Title = title
	if req.Category != "" {
		p.Category = req.Category
	}
	if err := storage.SetJSON(ctx, s.storage, idKey("product", id), p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProduct removes a product from the catalog. Lists keep their copies.
func (s *Store) DeleteProduct(ctx context.Context, id proto.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Product(ctx, id); err != nil {
		return err
	}
	return s.storage.Delete(ctx, idKey("product", id))
}

func (s *Store) items(ctx context.Context, listID proto.ID) ([]proto.ListProduct, error) {
	entries, err := s.storage.List(ctx, idKey("item", listID)+":")
	if err != nil {
		return nil, err
	}

	items := make([]proto.ListProduct, 0, len(entries))
	for _, entry := range entries {
		var item proto.ListProduct
		if err := json.Unmarshal(entry.Value, &item); err != nil {
			s.logger.Warn().Err(err).Str("key", entry.Key).Msg("Skipping unreadable list product")
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].MenuOrder != items[j].MenuOrder {
			return items[i].MenuOrder < items[j].MenuOrder
		}
		return items[i].ProductId < items[j].ProductId
	})
	return items, nil
}

func (s *Store) saveItem(ctx context.Context, listID proto.ID, item *proto.ListProduct) error {
	return storage.SetJSON(ctx, s.storage, idKey("item", listID, item.ProductId), item)
}

// recount refreshes the counters and timestamp of list and persists it
func (s *Store) recount(ctx context.Context, list *proto.List) error {
	items, err := s.items(ctx, list.Id)
	if err != nil {
		return err
	}

	list.ProductCount = len(items)
	list.CheckedProductCount = 0
	list.BaggedProductCount = 0
	for _, item := range items {
		if item.Checked {
			list.CheckedProductCount++
		}
		if item.Bagged {
			list.BaggedProductCount++
		}
	}
	list.UpdatedAt = s.now()
	return s.saveList(ctx, list)
}

// ListProducts returns the products on a list visible to the user
func (s *Store) ListProducts(ctx context.Context, userID, listID proto.ID) ([]proto.ListProduct, error) {
	if _, err := s.visibleList(ctx, userID, listID); err != nil {
		return nil, err
	}
	return s.items(ctx, listID)
}

// AddProduct places a catalog product on a list. The updated list is returned with the item.
func (s *Store) AddProduct(ctx context.Context, userID, listID proto.ID, req *proto.AddProductRequest) (*proto.ListProduct, *proto.List, error) {
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if err := validation.ValidateQuantity(quantity); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.visibleList(ctx, userID, listID)
	if err != nil {
		return nil, nil, err
	}
	product, err := s.Product(ctx, req.ProductId)
	if err != nil {
		return nil, nil, fmt.Errorf("product %s: %w", req.ProductId, err)
	}

	items, err := s.items(ctx, listID)
	if err != nil {
		return nil, nil, err
	}
	order := 1
	for _, item := range items {
		if item.ProductId == product.Id {
			return nil, nil, fmt.Errorf("product %s already on list: %w", product.Id, ErrConflict)
		}
		if item.MenuOrder >= order {
			order = item.MenuOrder + 1
		}
	}

	item := &proto.ListProduct{
		ProductId: product.Id,
		Title:     product.Title,
		Quantity:  quantity,
		MenuOrder: order,
	}
	if err := s.saveItem(ctx, listID, item); err != nil {
		return nil, nil, err
	}
	if err := s.recount(ctx, list); err != nil {
		return nil, nil, err
	}
	return item, list, nil
}

// UpdateListProduct changes the quantity, checked or bagged state of a product on a list
func (s *Store) UpdateListProduct(ctx context.Context, userID, listID, productID proto.ID, req *proto.UpdateListProductRequest) (*proto.ListProduct, *proto.List, error) {
	if req.Quantity != nil {
		if err := validation.ValidateQuantity(*req.Quantity); err != nil {
			return nil, nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.visibleList(ctx, userID, listID)
	if err != nil {
		return nil, nil, err
	}

	var item proto.ListProduct
	if err := s.get(ctx, idKey("item", listID, productID), &item); err != nil {
		return nil, nil, err
	}
	if req.Quantity != nil {
		item.Quantity = *req.Quantity
	}
	if req.Checked != nil {
		item.Checked = *req.Checked
	}
	if req.Bagged != nil {
		item.Bagged = *req.Bagged
	}

	if err := s.saveItem(ctx, listID, &item); err != nil {
		return nil, nil, err
	}
	if err := s.recount(ctx, list); err != nil {
		return nil, nil, err
	}
	return &item, list, nil
}

// RemoveListProduct takes a product off a list
func (s *Store) RemoveListProduct(ctx context.Context, userID, listID, productID proto.ID) (*proto.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.visibleList(ctx, userID, listID)
	if err != nil {
		return nil, err
	}
	key := idKey("item", listID, productID)
	if _, err := s.storage.Get(ctx, key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.storage.Delete(ctx, key); err != nil {
		return nil, err
	}
	if err := s.recount(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}
