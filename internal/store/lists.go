package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/validation"
	"github.com/nkkko/lista/pkg/proto"
)

// ErrOutOfRange is returned by Reorder for a position outside the view
var ErrOutOfRange = errors.New("position out of range")

// ErrUnknownList is returned for a list that is not in the view
var ErrUnknownList = errors.New("list not in view")

// Lists is the locally cached set of list summaries, ordered by menu order.
// It holds at most one entry per list id.
type Lists struct {
	gw     ListGateway
	forms  *Validation
	mutate mutator

	mu        sync.RWMutex
	lists     []proto.List
	observers []func([]proto.List)
}

// NewLists creates an empty list view. forms may be nil.
func NewLists(gw ListGateway, notifier Notifier, forms *Validation) *Lists {
	if forms == nil {
		forms = NewValidation()
	}
	return &Lists{
		gw:     gw,
		forms:  forms,
		mutate: newMutator("lists", notifier, logging.Component("store.lists")),
	}
}

// Fetch replaces the view with the lists returned by the content API
func (s *Lists) Fetch(ctx context.Context) error {
	lists, err := s.gw.ListLists(ctx)
	if err != nil {
		return s.mutate.fail(ctx, "fetch", "Could not load your lists", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	seen := make(map[proto.ID]int, len(lists))
	out := make([]proto.List, 0, len(lists))
	for _, l := range lists {
		if i, dup := seen[l.Id]; dup {
			out[i] = l.Clone()
			continue
		}
		seen[l.Id] = len(out)
		out = append(out, l.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MenuOrder < out[j].MenuOrder })

	s.set(out)
	return nil
}

// Create creates a list and appends it to the view
func (s *Lists) Create(ctx context.Context, title string) (*proto.List, error) {
	if err := s.forms.validate(FormList, validation.ValidateListTitle(title)); err != nil {
		return nil, err
	}

	var created *proto.List
	err := s.mutate.run(ctx, mutation{
		op: "create",
		call: func(ctx context.Context) (err error) {
			created, err = s.gw.CreateList(ctx, strings.TrimSpace(title))
			return err
		},
		commit: func() {
			s.update(func(lists []proto.List) []proto.List {
				return upsert(lists, *created)
			})
		},
		success: "List created",
		failure: "Could not create the list",
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Rename changes the title of a list
func (s *Lists) Rename(ctx context.Context, id proto.ID, title string) error {
	if err := s.forms.validate(FormList, validation.ValidateListTitle(title)); err != nil {
		return err
	}
	if !s.Contains(id) {
		return fmt.Errorf("%w: %s", ErrUnknownList, id)
	}

	snapshot := s.snapshot()
	var updated *proto.List
	return s.mutate.run(ctx, mutation{
		op: "rename",
		apply: func() {
			s.update(func(lists []proto.List) []proto.List {
				if i := indexOf(lists, id); i >= 0 {
					lists[i].Title = strings.TrimSpace(title)
				}
				return lists
			})
		},
		call: func(ctx context.Context) (err error) {
			updated, err = s.gw.UpdateList(ctx, id, strings.TrimSpace(title))
			return err
		},
		commit: func() {
			if updated == nil || updated.Id != id {
				return
			}
			s.update(func(lists []proto.List) []proto.List {
				if i := indexOf(lists, id); i >= 0 && updated.Title != "" {
					lists[i].Title = updated.Title
				}
				return lists
			})
		},
		revert:  func() { s.set(snapshot) },
		failure: "Could not rename the list",
	})
}

// Delete removes a list the user owns
func (s *Lists) Delete(ctx context.Context, id proto.ID) error {
	return s.removeWith(ctx, id, "delete", "List deleted", "Could not delete the list", s.gw.DeleteList)
}

// Leave removes the user from a list shared with them
func (s *Lists) Leave(ctx context.Context, id proto.ID) error {
	return s.removeWith(ctx, id, "leave", "You left the list", "Could not leave the list", s.gw.LeaveList)
}

func (s *Lists) removeWith(ctx context.Context, id proto.ID, op, success, failure string, call func(context.Context, proto.ID) error) error {
	if !s.Contains(id) {
		return fmt.Errorf("%w: %s", ErrUnknownList, id)
	}

	snapshot := s.snapshot()
	return s.mutate.run(ctx, mutation{
		op:      op,
		apply:   func() { s.RemoveList(id) },
		call:    func(ctx context.Context) error { return call(ctx, id) },
		revert:  func() { s.set(snapshot) },
		success: success,
		failure: failure,
	})
}

// Copy duplicates a list and appends the copy to the view
func (s *Lists) Copy(ctx context.Context, id proto.ID) (*proto.List, error) {
	var copied *proto.List
	err := s.mutate.run(ctx, mutation{
		op: "copy",
		call: func(ctx context.Context) (err error) {
			copied, err = s.gw.CopyList(ctx, id)
			return err
		},
		commit: func() {
			s.update(func(lists []proto.List) []proto.List {
				return upsert(lists, *copied)
			})
		},
		success: "List copied",
		failure: "Could not copy the list",
	})
	if err != nil {
		return nil, err
	}
	return copied, nil
}

// Reorder moves the list at position from to position to, renumbers every
// list's menu order from 1 and stores the new order in one request.
func (s *Lists) Reorder(ctx context.Context, from, to int) error {
	snapshot := s.snapshot()
	if from == to && from >= 0 && from < len(snapshot) {
		return nil
	}
	reordered, items, err := planReorder(snapshot, from, to)
	if err != nil {
		return err
	}

	return s.mutate.run(ctx, mutation{
		op:      "reorder",
		apply:   func() { s.set(reordered) },
		call:    func(ctx context.Context) error { return s.gw.ReorderLists(ctx, items) },
		revert:  func() { s.set(snapshot) },
		failure: "Could not save the new order",
	})
}

// AcceptShare joins a list by its share code and adds it to the view
func (s *Lists) AcceptShare(ctx context.Context, code string) (*proto.List, error) {
	if err := s.forms.validate(FormShare, validation.ValidateShareCode(code)); err != nil {
		return nil, err
	}

	var joined *proto.List
	err := s.mutate.run(ctx, mutation{
		op: "accept_share",
		call: func(ctx context.Context) (err error) {
			joined, err = s.gw.AcceptShare(ctx, validation.NormalizeShareCode(code))
			return err
		},
		commit: func() {
			s.update(func(lists []proto.List) []proto.List {
				return upsert(lists, *joined)
			})
		},
		success: "You joined the list",
		failure: "Could not join the list",
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}

// RemoveMember removes another user from a list the user owns
func (s *Lists) RemoveMember(ctx context.Context, listID, userID proto.ID) error {
	if !s.Contains(listID) {
		return fmt.Errorf("%w: %s", ErrUnknownList, listID)
	}

	snapshot := s.snapshot()
	return s.mutate.run(ctx, mutation{
		op:      "remove_member",
		apply:   func() { s.DropMember(listID, userID) },
		call:    func(ctx context.Context) error { return s.gw.RemoveMember(ctx, listID, userID) },
		revert:  func() { s.set(snapshot) },
		success: "Member removed",
		failure: "Could not remove the member",
	})
}

// RemoveList drops a list from the view
func (s *Lists) RemoveList(id proto.ID) bool {
	var removed bool
	s.update(func(lists []proto.List) []proto.List {
		i := indexOf(lists, id)
		if i < 0 {
			return lists
		}
		removed = true
		return append(lists[:i], lists[i+1:]...)
	})
	return removed
}

// ApplySummary merges the title and counters of ev into the matching list
func (s *Lists) ApplySummary(ev *proto.ListSummaryUpdated) bool {
	var applied bool
	s.update(func(lists []proto.List) []proto.List {
		i := indexOf(lists, ev.ListId)
		if i < 0 {
			return lists
		}
		applied = true
		l := &lists[i]
		if ev.Title != "" {
			l.Title = ev.Title
		}
		if ev.ProductCount != nil {
			l.ProductCount = *ev.ProductCount
		}
		if ev.BaggedProductCount != nil {
			l.BaggedProductCount = *ev.BaggedProductCount
		}
		if ev.CheckedProductCount != nil {
			l.CheckedProductCount = *ev.CheckedProductCount
		}
		if !ev.UpdatedAt.IsZero() {
			l.UpdatedAt = ev.UpdatedAt
		}
		return lists
	})
	return applied
}

// DropMember removes a user from a list's shared members
func (s *Lists) DropMember(listID, userID proto.ID) bool {
	var dropped bool
	s.update(func(lists []proto.List) []proto.List {
		i := indexOf(lists, listID)
		if i < 0 {
			return lists
		}
		members := make([]proto.Member, 0, len(lists[i].SharedWith))
		for _, m := range lists[i].SharedWith {
			if m.Id == userID {
				dropped = true
				continue
			}
			members = append(members, m)
		}
		lists[i].SharedWith = members
		return lists
	})
	return dropped
}

// Clear empties the view
func (s *Lists) Clear() {
	s.set(nil)
}

// Contains reports whether a list is in the view
func (s *Lists) Contains(id proto.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.lists, id) >= 0
}

// Get returns a copy of a list in the view
func (s *Lists) Get(id proto.ID) (proto.List, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.lists, id); i >= 0 {
		return s.lists[i].Clone(), true
	}
	return proto.List{}, false
}

// Lists returns a copy of the view in display order
func (s *Lists) Lists() []proto.List {
	return s.snapshot()
}

// IDs returns the ids in display order
func (s *Lists) IDs() []proto.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]proto.ID, len(s.lists))
	for i, l := range s.lists {
		ids[i] = l.Id
	}
	return ids
}

// OnChange registers fn to be called with a copy of the view after every change.
// fn must not call back into the store's mutators.
func (s *Lists) OnChange(fn func([]proto.List)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers[:len(s.observers):len(s.observers)], fn)
}

// snapshot returns a deep copy of the view
func (s *Lists) snapshot() []proto.List {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLists(s.lists)
}

// set replaces the view with a copy of lists
func (s *Lists) set(lists []proto.List) {
	s.update(func([]proto.List) []proto.List { return cloneLists(lists) })
}

// update applies fn to the view under the lock and notifies observers
func (s *Lists) update(fn func([]proto.List) []proto.List) {
	s.mu.Lock()
	s.lists = fn(s.lists)
	view := cloneLists(s.lists)
	observers := s.observers
	s.mu.Unlock()

	for _, o := range observers {
		o(view)
	}
}

func cloneLists(lists []proto.List) []proto.List {
	out := make([]proto.List, len(lists))
	for i := range lists {
		out[i] = lists[i].Clone()
	}
	return out
}

func indexOf(lists []proto.List, id proto.ID) int {
	for i := range lists {
		if lists[i].Id == id {
			return i
		}
	}
	return -1
}

// upsert replaces the list with the same id or appends l
func upsert(lists []proto.List, l proto.List) []proto.List {
	if i := indexOf(lists, l.Id); i >= 0 {
		lists[i] = l.Clone()
		return lists
	}
	return append(lists, l.Clone())
}

// splice returns a copy of lists with the element at from moved to to
// planReorder moves from to to in a copy of lists and renumbers the result.
// Bounds are checked against lists itself, which realtime removals may have
// shortened since the caller looked.
func planReorder(lists []proto.List, from, to int) ([]proto.List, []proto.ReorderItem, error) {
	n := len(lists)
	if from < 0 || from >= n || to < 0 || to >= n {
		return nil, nil, fmt.Errorf("%w: move %d to %d of %d", ErrOutOfRange, from, to, n)
	}
	reordered := splice(lists, from, to)
	items := make([]proto.ReorderItem, len(reordered))
	for i := range reordered {
		reordered[i].MenuOrder = i + 1
		items[i] = proto.ReorderItem{Id: reordered[i].Id, MenuOrder: i + 1}
	}
	return reordered, items, nil
}

func splice(lists []proto.List, from, to int) []proto.List {
	out := cloneLists(lists)
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]proto.List{moved}, out[to:]...)...)
	return out
}
