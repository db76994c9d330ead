package store

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nkkko/lista/internal/validation"
	"github.com/nkkko/lista/pkg/client"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func newListsFixture(t *testing.T, lists ...proto.List) (*Lists, *fakeGateway, *recordingNotifier) {
	t.Helper()
	gw := newFakeGateway()
	gw.lists = lists
	notifier := &recordingNotifier{}
	s := NewLists(gw, notifier, nil)
	if len(lists) > 0 {
		require.NoError(t, s.Fetch(context.Background()))
	}
	return s, gw, notifier
}

func titles(lists []proto.List) []string {
	out := make([]string, len(lists))
	for i, l := range lists {
		out[i] = l.Title
	}
	return out
}

func TestLists_FetchSortsAndDedupes(t *testing.T) {
	s, _, _ := newListsFixture(t,
		proto.List{Id: 2, Title: "B", MenuOrder: 2},
		proto.List{Id: 1, Title: "A", MenuOrder: 1},
		proto.List{Id: 2, Title: "B2", MenuOrder: 2},
		proto.List{Id: 3, Title: "C", MenuOrder: 3},
	)

	assert.Equal(t, []string{"A", "B2", "C"}, titles(s.Lists()))
	assert.Equal(t, []proto.ID{1, 2, 3}, s.IDs())
}

func TestLists_FetchFailureNotifies(t *testing.T) {
	s, gw, notifier := newListsFixture(t)
	gw.failOp("list_lists", errServer)

	assert.ErrorIs(t, s.Fetch(context.Background()), errServer)
	assert.Equal(t, 1, notifier.ofType(proto.NotificationType_ERROR))
	assert.Empty(t, s.Lists())
}

func TestLists_ReorderMovesAndRenumbers(t *testing.T) {
	s, gw, _ := newListsFixture(t,
		proto.List{Id: 1, Title: "A", MenuOrder: 1},
		proto.List{Id: 2, Title: "B", MenuOrder: 2},
	)

	require.NoError(t, s.Reorder(context.Background(), 1, 0))

	lists := s.Lists()
	assert.Equal(t, []string{"B", "A"}, titles(lists))
	assert.Equal(t, 1, lists[0].MenuOrder)
	assert.Equal(t, 2, lists[1].MenuOrder)

	require.Len(t, gw.reorder, 1, "one batch request")
	assert.Equal(t, []proto.ReorderItem{{Id: 2, MenuOrder: 1}, {Id: 1, MenuOrder: 2}}, gw.reorder[0])
}

func TestLists_ReorderFailureReverts(t *testing.T) {
	s, gw, notifier := newListsFixture(t,
		proto.List{Id: 1, Title: "A", MenuOrder: 1},
		proto.List{Id: 2, Title: "B", MenuOrder: 2},
	)
	gw.failOp("reorder_lists", errServer)

	var seen [][]string
	s.OnChange(func(lists []proto.List) { seen = append(seen, titles(lists)) })

	err := s.Reorder(context.Background(), 1, 0)
	assert.ErrorIs(t, err, errServer)

	assert.Equal(t, []string{"A", "B"}, titles(s.Lists()))
	assert.Equal(t, [][]string{{"B", "A"}, {"A", "B"}}, seen, "optimistic order is shown, then reverted")
	assert.Equal(t, 1, notifier.ofType(proto.NotificationType_ERROR))
}

func TestLists_ReorderLongerList(t *testing.T) {
	s, gw, _ := newListsFixture(t,
		proto.List{Id: 1, Title: "A", MenuOrder: 1},
		proto.List{Id: 2, Title: "B", MenuOrder: 5},
		proto.List{Id: 3, Title: "C", MenuOrder: 9},
		proto.List{Id: 4, Title: "D", MenuOrder: 12},
	)

	require.NoError(t, s.Reorder(context.Background(), 0, 2))
	assert.Equal(t, []string{"B", "C", "A", "D"}, titles(s.Lists()))
	assert.Equal(t, []proto.ReorderItem{
		{Id: 2, MenuOrder: 1}, {Id: 3, MenuOrder: 2}, {Id: 1, MenuOrder: 3}, {Id: 4, MenuOrder: 4},
	}, gw.reorder[0])
}

func TestLists_ReorderBounds(t *testing.T) {
	s, gw, _ := newListsFixture(t, proto.List{Id: 1, Title: "A", MenuOrder: 1})

	assert.ErrorIs(t, s.Reorder(context.Background(), 0, 1), ErrOutOfRange)
	assert.ErrorIs(t, s.Reorder(context.Background(), -1, 0), ErrOutOfRange)
	assert.NoError(t, s.Reorder(context.Background(), 0, 0))
	assert.Empty(t, gw.reorder)
}

func TestPlanReorderChecksBoundsAgainstSnapshot(t *testing.T) {
	// A removal shrank the view after the caller saw three lists
	lists := []proto.List{{Id: 1, Title: "A"}, {Id: 2, Title: "B"}}

	_, _, err := planReorder(lists, 2, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)

	reordered, items, err := planReorder(lists, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, titles(reordered))
	assert.Equal(t, []proto.ReorderItem{{Id: 2, MenuOrder: 1}, {Id: 1, MenuOrder: 2}}, items)
}

func TestLists_ReorderRacingRemovalNeverPanics(t *testing.T) {
	for i := 0; i < 200; i++ {
		s, _, _ := newListsFixture(t,
			proto.List{Id: 1, Title: "A", MenuOrder: 1},
			proto.List{Id: 2, Title: "B", MenuOrder: 2},
			proto.List{Id: 3, Title: "C", MenuOrder: 3},
		)

		done := make(chan struct{})
		go func() {
			defer close(done)
			s.RemoveList(3)
		}()

		err := s.Reorder(context.Background(), 2, 0)
		if err != nil {
			assert.ErrorIs(t, err, ErrOutOfRange)
		}
		<-done
	}
}

func TestLists_CancelledMutationRevertsSilently(t *testing.T) {
	s, gw, notifier := newListsFixture(t,
		proto.List{Id: 1, Title: "A", MenuOrder: 1},
		proto.List{Id: 2, Title: "B", MenuOrder: 2},
	)
	release := gw.blockOp("delete_list")
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Delete(ctx, 1) }()

	require.Eventually(t, func() bool { return !s.Contains(1) }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("delete did not return after cancel")
	}

	assert.Equal(t, []string{"A", "B"}, titles(s.Lists()))
	assert.Empty(t, notifier.all())
}

func TestLists_RenameValidatesBeforeCalling(t *testing.T) {
	s, gw, _ := newListsFixture(t, proto.List{Id: 1, Title: "A", MenuOrder: 1})

	err := s.Rename(context.Background(), 1, "  ")
	assert.ErrorIs(t, err, validation.ErrValidation)
	assert.Zero(t, gw.called("update_list"))
	assert.NotEmpty(t, s.forms.FieldError(FormList, "title"))

	require.NoError(t, s.Rename(context.Background(), 1, " Groceries "))
	l, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Groceries", l.Title)
	assert.True(t, s.forms.Valid(FormList))

	assert.ErrorIs(t, s.Rename(context.Background(), 9, "X"), ErrUnknownList)
}

func TestLists_RenameFailureShowsServerMessage(t *testing.T) {
	s, gw, notifier := newListsFixture(t, proto.List{Id: 1, Title: "A", MenuOrder: 1})
	gw.failOp("update_list", &client.APIError{StatusCode: http.StatusForbidden, Message: "not the owner"})

	err := s.Rename(context.Background(), 1, "B")
	assert.True(t, client.IsStatus(err, http.StatusForbidden))

	l, _ := s.Get(1)
	assert.Equal(t, "A", l.Title)

	shown := notifier.all()
	require.Len(t, shown, 1)
	assert.Equal(t, proto.NotificationType_ERROR, shown[0].Type)
	assert.Equal(t, "Could not rename the list: not the owner", shown[0].Message)
}

func TestLists_CreateCopyAndAcceptShare(t *testing.T) {
	s, gw, notifier := newListsFixture(t, proto.List{Id: 1, Title: "A", MenuOrder: 1})
	ctx := context.Background()

	created, err := s.Create(ctx, "Party")
	require.NoError(t, err)
	assert.Equal(t, proto.ID(100), created.Id)

	copied, err := s.Copy(ctx, 1)
	require.NoError(t, err)
	assert.True(t, s.Contains(copied.Id))

	_, err = s.AcceptShare(ctx, "abc")
	assert.ErrorIs(t, err, validation.ErrValidation)
	assert.Zero(t, gw.called("accept_share"))

	joined, err := s.AcceptShare(ctx, "ab12-cd34")
	require.NoError(t, err)
	assert.Equal(t, "Shared AB12CD34", joined.Title)

	assert.Equal(t, []proto.ID{1, 100, 1001, 77}, s.IDs())
	assert.Equal(t, 3, notifier.ofType(proto.NotificationType_SUCCESS))

	gw.failOp("copy_list", errors.New("boom"))
	_, err = s.Copy(ctx, 1)
	assert.Error(t, err)
	assert.Len(t, s.IDs(), 4)
}

func TestLists_LeaveAndRemoveMember(t *testing.T) {
	s, gw, _ := newListsFixture(t,
		proto.List{Id: 1, Title: "A", MenuOrder: 1, SharedWith: []proto.Member{{Id: 7, Name: "Bo"}, {Id: 8, Name: "Cy"}}},
		proto.List{Id: 2, Title: "B", MenuOrder: 2},
	)
	ctx := context.Background()

	gw.failOp("remove_member", errServer)
	assert.Error(t, s.RemoveMember(ctx, 1, 7))
	l, _ := s.Get(1)
	assert.Len(t, l.SharedWith, 2)

	gw.failOp("remove_member", nil)
	require.NoError(t, s.RemoveMember(ctx, 1, 7))
	l, _ = s.Get(1)
	assert.Equal(t, []proto.Member{{Id: 8, Name: "Cy"}}, l.SharedWith)

	require.NoError(t, s.Leave(ctx, 2))
	assert.False(t, s.Contains(2))
	assert.ErrorIs(t, s.Leave(ctx, 2), ErrUnknownList)
}

func TestLists_RealtimeAppliers(t *testing.T) {
	s, _, _ := newListsFixture(t,
		proto.List{Id: 5, Title: "Old", MenuOrder: 1, ProductCount: 1},
	)

	applied := s.ApplySummary(&proto.ListSummaryUpdated{ListId: 5, Title: "New", ProductCount: intPtr(4), CheckedProductCount: intPtr(2)})
	assert.True(t, applied)
	l, _ := s.Get(5)
	assert.Equal(t, "New", l.Title)
	assert.Equal(t, 4, l.ProductCount)
	assert.Equal(t, 2, l.CheckedProductCount)
	assert.Zero(t, l.BaggedProductCount)

	assert.False(t, s.ApplySummary(&proto.ListSummaryUpdated{ListId: 6, Title: "X"}))
	assert.False(t, s.DropMember(5, 1))
	assert.True(t, s.RemoveList(5))
	assert.False(t, s.RemoveList(5))
	assert.False(t, s.Contains(5))
}

func TestLists_ReturnedCopiesAreIndependent(t *testing.T) {
	s, _, _ := newListsFixture(t,
		proto.List{Id: 1, Title: "A", MenuOrder: 1, SharedWith: []proto.Member{{Id: 7}}},
	)

	lists := s.Lists()
	lists[0].Title = "changed"
	lists[0].SharedWith[0].Id = 99

	l, _ := s.Get(1)
	assert.Equal(t, "A", l.Title)
	assert.Equal(t, proto.ID(7), l.SharedWith[0].Id)
}
