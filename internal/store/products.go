package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/validation"
	"github.com/nkkko/lista/pkg/proto"
)

// ErrNoActiveList is returned by product mutators when no list is open
var ErrNoActiveList = errors.New("no list is open")

// ErrUnknownProduct is returned for a product that is not on the open list
var ErrUnknownProduct = errors.New("product not on list")

// Products holds the contents of the list currently open.
//
// Every Open or CloseList starts a new generation; responses and reverts that
// belong to an older generation are discarded.
type Products struct {
	gw     ProductGateway
	forms  *Validation
	mutate mutator

	mu        sync.RWMutex
	listID    proto.ID
	title     string
	items     []proto.ListProduct
	gen       uint64
	observers []func(listID proto.ID, items []proto.ListProduct)
}

// NewProducts creates a store with no list open. forms may be nil.
func NewProducts(gw ProductGateway, notifier Notifier, forms *Validation) *Products {
	if forms == nil {
		forms = NewValidation()
	}
	return &Products{
		gw:     gw,
		forms:  forms,
		mutate: newMutator("products", notifier, logging.Component("store.products")),
	}
}

// Open makes listID the active list and loads its products
func (s *Products) Open(ctx context.Context, listID proto.ID, title string) error {
	if listID.IsZero() {
		s.CloseList()
		return nil
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.listID = listID
	s.title = title
	s.items = nil
	s.mu.Unlock()
	s.changed()

	return s.load(ctx, gen, listID)
}

// Refresh reloads the products of the active list
func (s *Products) Refresh(ctx context.Context) error {
	s.mu.RLock()
	gen, listID := s.gen, s.listID
	s.mu.RUnlock()

	if listID.IsZero() {
		return ErrNoActiveList
	}
	return s.load(ctx, gen, listID)
}

func (s *Products) load(ctx context.Context, gen uint64, listID proto.ID) error {
	items, err := s.gw.ListProducts(ctx, listID)
	if err != nil {
		return s.mutate.fail(ctx, "load", "Could not load the list", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.update(gen, func([]proto.ListProduct) []proto.ListProduct {
		return append([]proto.ListProduct(nil), items...)
	})
	return nil
}

// CloseList clears the active list
func (s *Products) CloseList() {
	s.mu.Lock()
	s.gen++
	s.listID = 0
	s.title = ""
	s.items = nil
	s.mu.Unlock()
	s.changed()
}

// ActiveListID returns the id of the open list, or zero
func (s *Products) ActiveListID() proto.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listID
}

// SetActiveTitle changes the title shown for the open list
func (s *Products) SetActiveTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
	s.changed()
}

// Title returns the title of the open list
func (s *Products) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// Items returns a copy of the open list's products
func (s *Products) Items() []proto.ListProduct {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]proto.ListProduct(nil), s.items...)
}

// Search finds products to add; a blank query returns nothing
func (s *Products) Search(ctx context.Context, query string) ([]proto.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	products, err := s.gw.SearchProducts(ctx, query)
	if err != nil {
		return nil, s.mutate.fail(ctx, "search", "Search failed", err)
	}
	return products, nil
}

// Add places product on the open list
func (s *Products) Add(ctx context.Context, product proto.Product, quantity int) error {
	if quantity == 0 {
		quantity = 1
	}
	if err := s.forms.validate(FormItem, validation.ValidateQuantity(quantity)); err != nil {
		return err
	}

	gen, listID, err := s.active()
	if err != nil {
		return err
	}
	if s.has(product.Id) {
		s.mutate.notify(product.Title+" is already on the list", proto.NotificationType_INFO)
		return nil
	}

	var added *proto.ListProduct
	return s.mutate.run(ctx, mutation{
		op: "add",
		apply: func() {
			s.update(gen, func(items []proto.ListProduct) []proto.ListProduct {
				return append(items, proto.ListProduct{ProductId: product.Id, Title: product.Title, Quantity: quantity})
			})
		},
		call: func(ctx context.Context) (err error) {
			added, err = s.gw.AddProductToList(ctx, listID, &proto.AddProductRequest{ProductId: product.Id, Quantity: quantity})
			return err
		},
		commit: func() {
			if added == nil || added.ProductId != product.Id {
				return
			}
			s.update(gen, func(items []proto.ListProduct) []proto.ListProduct {
				if i := productIndex(items, product.Id); i >= 0 {
					items[i] = *added
				}
				return items
			})
		},
		revert: func() {
			s.update(gen, func(items []proto.ListProduct) []proto.ListProduct {
				if i := productIndex(items, product.Id); i >= 0 {
					return append(items[:i], items[i+1:]...)
				}
				return items
			})
		},
		failure: "Could not add " + product.Title,
	})
}

// AddCustom creates a custom product named name and places it on the open list
func (s *Products) AddCustom(ctx context.Context, name string) (*proto.Product, error) {
	if err := s.forms.validate(FormProduct, validation.ValidateProductName(name)); err != nil {
		return nil, err
	}
	if _, _, err := s.active(); err != nil {
		return nil, err
	}

	product, err := s.gw.CreateProduct(ctx, &proto.CreateProductRequest{Title: strings.TrimSpace(name), Custom: true})
	if err != nil {
		return nil, s.mutate.fail(ctx, "create_product", "Could not create the product", err)
	}
	if err := s.Add(ctx, *product, 1); err != nil {
		return nil, err
	}
	return product, nil
}

// Remove takes a product off the open list
func (s *Products) Remove(ctx context.Context, productID proto.ID) error {
	gen, listID, err := s.active()
	if err != nil {
		return err
	}

	snapshot, ok := s.snapshotIfPresent(productID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}

	return s.mutate.run(ctx, mutation{
		op: "remove",
		apply: func() {
			s.update(gen, func(items []proto.ListProduct) []proto.ListProduct {
				if i := productIndex(items, productID); i >= 0 {
					return append(items[:i], items[i+1:]...)
				}
				return items
			})
		},
		call:    func(ctx context.Context) error { return s.gw.RemoveProductFromList(ctx, listID, productID) },
		revert:  func() { s.restore(gen, snapshot) },
		failure: "Could not remove the product",
	})
}

// SetChecked marks a product as checked or unchecked
func (s *Products) SetChecked(ctx context.Context, productID proto.ID, checked bool) error {
	return s.change(ctx, productID, "set_checked", &proto.UpdateListProductRequest{Checked: &checked}, func(p *proto.ListProduct) {
		p.Checked = checked
	})
}

// SetBagged marks a product as bagged or not
func (s *Products) SetBagged(ctx context.Context, productID proto.ID, bagged bool) error {
	return s.change(ctx, productID, "set_bagged", &proto.UpdateListProductRequest{Bagged: &bagged}, func(p *proto.ListProduct) {
		p.Bagged = bagged
	})
}

// SetQuantity changes how many of a product are needed
func (s *Products) SetQuantity(ctx context.Context, productID proto.ID, quantity int) error {
	if err := s.forms.validate(FormItem, validation.ValidateQuantity(quantity)); err != nil {
		return err
	}
	return s.change(ctx, productID, "set_quantity", &proto.UpdateListProductRequest{Quantity: &quantity}, func(p *proto.ListProduct) {
		p.Quantity = quantity
	})
}

func (s *Products) change(ctx context.Context, productID proto.ID, op string, req *proto.UpdateListProductRequest, edit func(*proto.ListProduct)) error {
	gen, listID, err := s.active()
	if err != nil {
		return err
	}

	snapshot, ok := s.snapshotIfPresent(productID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}

	return s.mutate.run(ctx, mutation{
		op: op,
		apply: func() {
			s.update(gen, func(items []proto.ListProduct) []proto.ListProduct {
				if i := productIndex(items, productID); i >= 0 {
					edit(&items[i])
				}
				return items
			})
		},
		call: func(ctx context.Context) error {
			_, err := s.gw.UpdateListProduct(ctx, listID, productID, req)
			return err
		},
		revert:  func() { s.restore(gen, snapshot) },
		failure: "Could not update the product",
	})
}

// OnChange registers fn to be called with the active list and a copy of its
// products after every change
func (s *Products) OnChange(fn func(listID proto.ID, items []proto.ListProduct)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers[:len(s.observers):len(s.observers)], fn)
}

func (s *Products) active() (uint64, proto.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listID.IsZero() {
		return 0, 0, ErrNoActiveList
	}
	return s.gen, s.listID, nil
}

func (s *Products) has(productID proto.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return productIndex(s.items, productID) >= 0
}

func (s *Products) snapshotIfPresent(productID proto.ID) ([]proto.ListProduct, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if productIndex(s.items, productID) < 0 {
		return nil, false
	}
	return append([]proto.ListProduct(nil), s.items...), true
}

func (s *Products) restore(gen uint64, snapshot []proto.ListProduct) {
	s.update(gen, func([]proto.ListProduct) []proto.ListProduct {
		return append([]proto.ListProduct(nil), snapshot...)
	})
}

// update applies fn if gen is still current
func (s *Products) update(gen uint64, fn func([]proto.ListProduct) []proto.ListProduct) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.items = fn(s.items)
	s.mu.Unlock()
	s.changed()
}

func (s *Products) changed() {
	s.mu.RLock()
	listID := s.listID
	items := append([]proto.ListProduct(nil), s.items...)
	observers := s.observers
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(listID, items)
	}
}

func productIndex(items []proto.ListProduct, productID proto.ID) int {
	for i := range items {
		if items[i].ProductId == productID {
			return i
		}
	}
	return -1
}
