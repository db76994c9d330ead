package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nkkko/lista/pkg/proto"
)

// ListView is the locally cached set of list summaries shown on the home view
type ListView interface {
	// RemoveList drops a list; it reports whether the list was present
	RemoveList(id proto.ID) bool

	// ApplySummary merges title and counters into the matching list
	ApplySummary(ev *proto.ListSummaryUpdated) bool

	// DropMember removes a user from a list's shared members
	DropMember(listID, userID proto.ID) bool

	// Contains reports whether a list is present
	Contains(id proto.ID) bool
}

// ActiveList is the list currently open, if any
type ActiveList interface {
	ActiveListID() proto.ID
	SetActiveTitle(title string)
}

// ListDeletedHook watches the open list and calls back when it is deleted
type ListDeletedHook struct {
	*Hook
}

// NewListDeletedHook creates a hook that calls onDeleted with the id of the deleted list
func NewListDeletedHook(opts HookOptions, onDeleted func(listID proto.ID)) *ListDeletedHook {
	return &ListDeletedHook{Hook: newHook(hookSpec{
		name:    "list-deleted",
		channel: proto.ListChannel,
		events:  []string{proto.EventListDeleted},
		apply: func(listID proto.ID, ev proto.Event) {
			if onDeleted != nil {
				onDeleted(ev.(*proto.ListDeleted).ListId)
			}
		},
	}, opts)}
}

// ListUpdatedHook forwards content changes of the open list untouched
type ListUpdatedHook struct {
	*Hook
}

// NewListUpdatedHook creates a hook that calls onUpdated with the raw event payload
func NewListUpdatedHook(opts HookOptions, onUpdated func(listID proto.ID, payload json.RawMessage)) *ListUpdatedHook {
	return &ListUpdatedHook{Hook: newHook(hookSpec{
		name:    "list-updated",
		channel: proto.ListChannel,
		events:  []string{proto.EventListUpdated},
		apply: func(listID proto.ID, ev proto.Event) {
			if onUpdated != nil {
				onUpdated(listID, ev.(*proto.ListUpdated).Raw)
			}
		},
	}, opts)}
}

// SummaryHook keeps list tiles and the open list's title in sync
type SummaryHook struct {
	*Hook
}

// NewSummaryHook creates a hook on the user channel merging summary updates into view.
// active may be nil.
func NewSummaryHook(opts HookOptions, view ListView, active ActiveList) *SummaryHook {
	return &SummaryHook{Hook: newHook(hookSpec{
		name:    "summary",
		channel: proto.UserChannel,
		events:  []string{proto.EventListSummaryUpdated},
		apply: func(userID proto.ID, ev proto.Event) {
			summary := ev.(*proto.ListSummaryUpdated)
			view.ApplySummary(summary)
			if active != nil && summary.Title != "" && active.ActiveListID() == summary.ListId {
				active.SetActiveTitle(summary.Title)
			}
		},
	}, opts)}
}

// ShareHook applies membership changes of the user's lists
type ShareHook struct {
	*Hook
}

// NewShareHook creates a hook on the user channel. When the local user is the
// one removed, the list is dropped and redirect is called if that list is open.
// When another user leaves or is removed, they are dropped from the list's members.
// active and redirect may be nil.
func NewShareHook(opts HookOptions, view ListView, active ActiveList, redirect func(listID proto.ID)) *ShareHook {
	return &ShareHook{Hook: newHook(hookSpec{
		name:    "share",
		channel: proto.UserChannel,
		events:  []string{proto.EventShareUpdate},
		apply: func(userID proto.ID, ev proto.Event) {
			share := ev.(*proto.ShareUpdate)

			if share.UserId == userID {
				if share.Action == proto.ShareActionJoined {
					return
				}
				view.RemoveList(share.ListId)
				if active != nil && redirect != nil && active.ActiveListID() == share.ListId {
					redirect(share.ListId)
				}
				return
			}

			if share.Action != proto.ShareActionJoined {
				view.DropMember(share.ListId, share.UserId)
			}
		},
	}, opts)}
}

// ListsDeletedHook watches every list on the home view and drops the ones deleted elsewhere
type ListsDeletedHook struct {
	opts HookOptions
	view ListView

	mu     sync.Mutex
	hooks  map[proto.ID]*Hook
	closed bool
}

// NewListsDeletedHook creates a hook with no lists watched
func NewListsDeletedHook(opts HookOptions, view ListView) *ListsDeletedHook {
	return &ListsDeletedHook{
		opts:  opts,
		view:  view,
		hooks: make(map[proto.ID]*Hook),
	}
}

// SetListIDs subscribes the lists in ids and releases every other one
func (l *ListsDeletedHook) SetListIDs(ctx context.Context, ids []proto.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	want := make(map[proto.ID]struct{}, len(ids))
	for _, id := range ids {
		if !id.IsZero() {
			want[id] = struct{}{}
		}
	}

	for id, hook := range l.hooks {
		if _, ok := want[id]; !ok {
			hook.Close()
			delete(l.hooks, id)
		}
	}

	for id := range want {
		if _, ok := l.hooks[id]; ok {
			continue
		}
		hook := newHook(hookSpec{
			name:    "lists-deleted",
			channel: proto.ListChannel,
			events:  []string{proto.EventListDeleted},
			apply: func(listID proto.ID, ev proto.Event) {
				l.view.RemoveList(ev.(*proto.ListDeleted).ListId)
			},
		}, l.opts)
		hook.SetID(ctx, id)
		l.hooks[id] = hook
	}
}

// Watched returns the number of lists currently subscribed
func (l *ListsDeletedHook) Watched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hooks)
}

// Close releases every list subscription
func (l *ListsDeletedHook) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true

	for id, hook := range l.hooks {
		hook.Close()
		delete(l.hooks, id)
	}
}
