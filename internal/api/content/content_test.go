package content

import (
	"context"
	"testing"

	"github.com/nkkko/lista/internal/storage"
	"github.com/nkkko/lista/internal/validation"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	config := storage.DefaultConfig()
	config.InMemory = true
	s, err := storage.NewStorage(config)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewStore(s)
}

func login(t *testing.T, s *Store, name string) *proto.User {
	t.Helper()
	user, err := s.Login(context.Background(), name, "")
	require.NoError(t, err)
	return user
}

func TestLoginIsIdempotentByName(t *testing.T) {
	s := newTestStore(t)

	ana := login(t, s, "Ana")
	again := login(t, s, "ana")
	bo := login(t, s, "Bo")

	assert.Equal(t, ana.Id, again.Id)
	assert.Equal(t, "Ana", again.Name)
	assert.NotEqual(t, ana.Id, bo.Id)

	_, err := s.Login(context.Background(), "  ", "")
	assert.ErrorIs(t, err, validation.ErrValidation)
}

func TestListLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := login(t, s, "Ana")

	groceries, err := s.CreateList(ctx, ana.Id, " Groceries ")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", groceries.Title)
	assert.Equal(t, 1, groceries.MenuOrder)
	assert.Len(t, groceries.ShareCode, validation.ShareCodeLength)
	assert.NoError(t, validation.ValidateShareCode(groceries.ShareCode))

	hardware, err := s.CreateList(ctx, ana.Id, "Hardware")
	require.NoError(t, err)
	assert.Equal(t, 2, hardware.MenuOrder)

	_, err = s.CreateList(ctx, ana.Id, "")
	assert.ErrorIs(t, err, validation.ErrValidation)

	renamed, err := s.RenameList(ctx, ana.Id, groceries.Id, "Food")
	require.NoError(t, err)
	assert.Equal(t, "Food", renamed.Title)

	require.NoError(t, s.Reorder(ctx, ana.Id, []proto.ReorderItem{
		{Id: hardware.Id, MenuOrder: 1},
		{Id: groceries.Id, MenuOrder: 2},
	}))
	lists, err := s.Lists(ctx, ana.Id)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, hardware.Id, lists[0].Id)
	assert.Equal(t, "Food", lists[1].Title)

	err = s.Reorder(ctx, ana.Id, []proto.ReorderItem{{Id: 99, MenuOrder: 1}})
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err := s.DeleteList(ctx, ana.Id, hardware.Id)
	require.NoError(t, err)
	assert.Equal(t, hardware.Id, deleted.Id)

	_, err = s.List(ctx, ana.Id, hardware.Id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.AcceptShare(ctx, ana, hardware.ShareCode)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSharing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := login(t, s, "Ana")
	bo := login(t, s, "Bo")

	list, err := s.CreateList(ctx, ana.Id, "Party")
	require.NoError(t, err)

	_, err = s.List(ctx, bo.Id, list.Id)
	assert.ErrorIs(t, err, ErrNotFound, "non-members cannot see a list")

	joined, ok, err := s.AcceptShare(ctx, bo, "  "+list.ShareCode[:4]+"-"+list.ShareCode[4:])
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, joined.SharedWith, 1)
	assert.Equal(t, bo.Id, joined.SharedWith[0].Id)
	assert.Equal(t, []proto.ID{ana.Id, bo.Id}, Members(joined))

	_, ok, err = s.AcceptShare(ctx, bo, list.ShareCode)
	require.NoError(t, err)
	assert.False(t, ok, "accepting twice is a no-op")

	_, err = s.DeleteList(ctx, bo.Id, list.Id)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.RemoveMember(ctx, bo.Id, list.Id, ana.Id)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.LeaveList(ctx, ana.Id, list.Id)
	assert.ErrorIs(t, err, ErrConflict)

	left, err := s.LeaveList(ctx, bo.Id, list.Id)
	require.NoError(t, err)
	assert.Empty(t, left.SharedWith)
	lists, err := s.Lists(ctx, bo.Id)
	require.NoError(t, err)
	assert.Empty(t, lists)

	_, _, err = s.AcceptShare(ctx, bo, list.ShareCode)
	require.NoError(t, err)
	removed, err := s.RemoveMember(ctx, ana.Id, list.Id, bo.Id)
	require.NoError(t, err)
	assert.Empty(t, removed.SharedWith)

	_, err = s.RemoveMember(ctx, ana.Id, list.Id, bo.Id)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.AcceptShare(ctx, bo, "bad")
	assert.ErrorIs(t, err, validation.ErrValidation)
}

func TestProductsOnList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := login(t, s, "Ana")

	added, err := s.Seed(ctx, []string{"Milk", "Oat milk", "Bread"})
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	added, err = s.Seed(ctx, []string{"milk", "Eggs"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	found, err := s.SearchProducts(ctx, "MILK")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Milk", found[0].Title)
	assert.Equal(t, "Oat milk", found[1].Title)

	list, err := s.CreateList(ctx, ana.Id, "Groceries")
	require.NoError(t, err)

	item, updated, err := s.AddProduct(ctx, ana.Id, list.Id, &proto.AddProductRequest{ProductId: found[0].Id})
	require.NoError(t, err)
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, "Milk", item.Title)
	assert.Equal(t, 1, updated.ProductCount)

	_, _, err = s.AddProduct(ctx, ana.Id, list.Id, &proto.AddProductRequest{ProductId: found[0].Id})
	assert.ErrorIs(t, err, ErrConflict)
	_, _, err = s.AddProduct(ctx, ana.Id, list.Id, &proto.AddProductRequest{ProductId: 404})
	assert.ErrorIs(t, err, ErrNotFound)

	second, _, err := s.AddProduct(ctx, ana.Id, list.Id, &proto.AddProductRequest{ProductId: found[1].Id, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, second.MenuOrder)

	checked := true
	quantity := 5
	item, updated, err = s.UpdateListProduct(ctx, ana.Id, list.Id, found[0].Id, &proto.UpdateListProductRequest{
		Checked:  &checked,
		Quantity: &quantity,
	})
	require.NoError(t, err)
	assert.True(t, item.Checked)
	assert.Equal(t, 5, item.Quantity)
	assert.False(t, item.Bagged)
	assert.Equal(t, 2, updated.ProductCount)
	assert.Equal(t, 1, updated.CheckedProductCount)

	bad := 0
	_, _, err = s.UpdateListProduct(ctx, ana.Id, list.Id, found[0].Id, &proto.UpdateListProductRequest{Quantity: &bad})
	assert.ErrorIs(t, err, validation.ErrValidation)

	copied, err := s.CopyList(ctx, ana.Id, list.Id)
	require.NoError(t, err)
	assert.Equal(t, "Groceries (copy)", copied.Title)
	assert.Equal(t, 2, copied.ProductCount)
	assert.Equal(t, 1, copied.CheckedProductCount)

	updated, err = s.RemoveListProduct(ctx, ana.Id, list.Id, found[0].Id)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ProductCount)
	assert.Equal(t, 0, updated.CheckedProductCount)

	_, err = s.RemoveListProduct(ctx, ana.Id, list.Id, found[0].Id)
	assert.ErrorIs(t, err, ErrNotFound)

	items, err := s.ListProducts(ctx, copied.Owner, copied.Id)
	require.NoError(t, err)
	assert.Len(t, items, 2, "the copy keeps its own products")
}

func TestProductCatalog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.CreateProduct(ctx, &proto.CreateProductRequest{Title: "Tofu", Custom: true, Category: "Protein"})
	require.NoError(t, err)
	assert.True(t, p.Custom)

	p, err = s.UpdateProduct(ctx, p.Id, &proto.CreateProductRequest{Title: "Smoked tofu"})
	require.NoError(t, err)
	assert.Equal(t, "Smoked tofu", p.Title)
	assert.Equal(t, "Protein", p.Category)

	_, err = s.CreateProduct(ctx, &proto.CreateProductRequest{Title: "x"})
	assert.ErrorIs(t, err, validation.ErrValidation)

	require.NoError(t, s.DeleteProduct(ctx, p.Id))
	assert.ErrorIs(t, s.DeleteProduct(ctx, p.Id), ErrNotFound)
	_, err = s.UpdateProduct(ctx, p.Id, &proto.CreateProductRequest{Title: "Tempeh"})
	assert.ErrorIs(t, err, ErrNotFound)
}
