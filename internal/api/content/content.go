// Package content persists the resources served by the dev content API:
// users, lists with their members, catalog products and the products placed
// on each list.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/storage"
	"github.com/nkkko/lista/internal/validation"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned for resources that do not exist or are not visible to the user
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the user may see a resource but not change it this way
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when the change clashes with existing state
	ErrConflict = errors.New("conflict")
)

// Store is the resource repository of the dev content API.
// Mutations are serialized; reads go straight to storage.
type Store struct {
	storage storage.Storage
	mu      sync.Mutex
	now     func() time.Time
	logger  zerolog.Logger
}

// NewStore creates a store on top of s
func NewStore(s storage.Storage) *Store {
	return &Store{
		storage: s,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logging.Component("content"),
	}
}

func idKey(kind string, ids ...proto.ID) string {
	parts := make([]string, 0, len(ids)+1)
	parts = append(parts, kind)
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return storage.Key(parts...)
}

func (s *Store) nextID(ctx context.Context, kind string) (proto.ID, error) {
	n, err := s.storage.Increment(ctx, storage.Key("seq", kind))
	if err != nil {
		return 0, fmt.Errorf("allocate %s id: %w", kind, err)
	}
	return proto.ID(n), nil
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	err := storage.GetJSON(ctx, s.storage, key, v)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Login returns the user with the given name, creating it on first use
func (s *Store) Login(ctx context.Context, name, email string) (*proto.User, error) {
	name = strings.TrimSpace(name)
	if err := validation.First(
		validation.Required("name", name),
		validation.MaxLength("name", name, validation.MaxProductNameLength),
	); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nameKey := storage.Key("username", strings.ToLower(name))
	raw, err := s.storage.Get(ctx, nameKey)
	switch {
	case err == nil:
		id, err := proto.ParseID(string(raw))
		if err != nil {
			return nil, err
		}
		return s.User(ctx, id)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	id, err := s.nextID(ctx, "user")
	if err != nil {
		return nil, err
	}
	user := &proto.User{Id: id, Name: name, Email: email}
	if err := storage.SetJSON(ctx, s.storage, idKey("user", id), user); err != nil {
		return nil, err
	}
	if err := s.storage.Set(ctx, nameKey, []byte(id.String())); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", id.String()).Str("name", name).Msg("Created user")
	return user, nil
}

// User returns a user by id
func (s *Store) User(ctx context.Context, id proto.ID) (*proto.User, error) {
	var user proto.User
	if err := s.get(ctx, idKey("user", id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// membership records where a list sits in one member's menu
type membership struct {
	MenuOrder int `json:"menu_order"`
}

func memberPrefix(userID proto.ID) string {
	return idKey("member", userID) + ":"
}

// memberships returns the user's list ids mapped to their menu order
func (s *Store) memberships(ctx context.Context, userID proto.ID) (map[proto.ID]int, error) {
	prefix := memberPrefix(userID)
	entries, err := s.storage.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	out := make(map[proto.ID]int, len(entries))
	for _, entry := range entries {
		id, err := proto.ParseID(strings.TrimPrefix(entry.Key, prefix))
		if err != nil {
			continue
		}
		var m membership
		if err := json.Unmarshal(entry.Value, &m); err != nil {
			continue
		}
		out[id] = m.MenuOrder
	}
	return out, nil
}

func (s *Store) setMembership(ctx context.Context, userID, listID proto.ID, order int) error {
	return storage.SetJSON(ctx, s.storage, idKey("member", userID, listID), membership{MenuOrder: order})
}

// appendMembership puts the list at the end of the user's menu
func (s *Store) appendMembership(ctx context.Context, userID, listID proto.ID) (int, error) {
	existing, err := s.memberships(ctx, userID)
	if err != nil {
		return 0, err
	}
	order := 1
	for _, o := range existing {
		if o >= order {
			order = o + 1
		}
	}
	return order, s.setMembership(ctx, userID, listID, order)
}

func (s *Store) loadList(ctx context.Context, id proto.ID) (*proto.List, error) {
	var list proto.List
	if err := s.get(ctx, idKey("list", id), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (s *Store) saveList(ctx context.Context, list *proto.List) error {
	stored := list.Clone()
	stored.MenuOrder = 0
	return storage.SetJSON(ctx, s.storage, idKey("list", list.Id), &stored)
}

// visibleList loads a list and applies the user's menu order; non-members get ErrNotFound
func (s *Store) visibleList(ctx context.Context, userID, listID proto.ID) (*proto.List, error) {
	var m membership
	if err := s.get(ctx, idKey("member", userID, listID), &m); err != nil {
		return nil, err
	}
	list, err := s.loadList(ctx, listID)
	if err != nil {
		return nil, err
	}
	list.MenuOrder = m.MenuOrder
	return list, nil
}

// Members returns the ids of everyone who sees the list, owner first
func Members(list *proto.List) []proto.ID {
	ids := make([]proto.ID, 0, len(list.SharedWith)+1)
	ids = append(ids, list.Owner)
	for _, m := range list.SharedWith {
		ids = append(ids, m.Id)
	}
	return ids
}

// Lists returns the lists the user owns or was shared, in the user's menu order
func (s *Store) Lists(ctx context.Context, userID proto.ID) ([]proto.List, error) {
	orders, err := s.memberships(ctx, userID)
	if err != nil {
		return nil, err
	}

	lists := make([]proto.List, 0, len(orders))
	for id, order := range orders {
		list, err := s.loadList(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		list.MenuOrder = order
		lists = append(lists, *list)
	}

	sort.Slice(lists, func(i, j int) bool {
		if lists[i].MenuOrder != lists[j].MenuOrder {
			return lists[i].MenuOrder < lists[j].MenuOrder
		}
		return lists[i].Id < lists[j].Id
	})
	return lists, nil
}

// List returns one list visible to the user
func (s *Store) List(ctx context.Context, userID, listID proto.ID) (*proto.List, error) {
	return s.visibleList(ctx, userID, listID)
}

func newShareCode() string {
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return code[:validation.ShareCodeLength]
}

// CreateList creates a list owned by the user
func (s *Store) CreateList(ctx context.Context, userID proto.ID, title string) (*proto.List, error) {
	title = strings.TrimSpace(title)
	if err := validation.ValidateListTitle(title); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createList(ctx, userID, title)
}

func (s *Store) createList(ctx context.Context, userID proto.ID, title string) (*proto.List, error) {
	id, err := s.nextID(ctx, "list")
	if err != nil {
		return nil, err
	}

	list := &proto.List{
		Id:        id,
		Title:     title,
		Owner:     userID,
		ShareCode: newShareCode(),
		UpdatedAt: s.now(),
	}
	if err := s.saveList(ctx, list); err != nil {
		return nil, err
	}
	if err := s.storage.Set(ctx, storage.Key("share", list.ShareCode), []byte(id.String())); err != nil {
		return nil, err
	}
	order, err := s.appendMembership(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	list.MenuOrder = order

	s.logger.Debug().Str("list_id", id.String()).Str("owner", userID.String()).Msg("Created list")
	return list, nil
}

// RenameList changes the title of a list the user is a member of
func (s *Store) RenameList(ctx context.Context, userID, listID proto.ID, title string) (*proto.List, error) {
	title = strings.TrimSpace(title)
	if err := validation.ValidateListTitle(title); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.visibleList(ctx, userID, listID)
	if err != nil {
		return nil, err
	}
	list.Title = title
	list.UpdatedAt = s.now()
	if err := s.saveList(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteList removes a list with everything on it. Only the owner may delete.
// The deleted list is returned so callers can notify its former members.
func (s *Store) DeleteList(ctx context.Context, userID, listID proto.ID) (*proto.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.visibleList(ctx, userID, listID)
	if err != nil {
		return nil, err
	}
	if list.Owner != userID {
		return nil, ErrForbidden
	}

	items, err := s.storage.List(ctx, idKey("item", listID)+":")
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := s.storage.Delete(ctx, item.Key); err != nil {
			return nil, err
		}
	}
	for _, member := range Members(list) {
		if err := s.storage.Delete(ctx, idKey("member", member, listID)); err != nil {
			return nil, err
		}
	}
	if list.ShareCode != "" {
		if err := s.storage.Delete(ctx, storage.Key("share", list.ShareCode)); err != nil {
			return nil, err
		}
	}
	if err := s.storage.Delete(ctx, idKey("list", listID)); err != nil {
		return nil, err
	}

	s.logger.Debug().Str("list_id", listID.String()).Msg("Deleted list")
	return list, nil
}

// Reorder stores the user's menu order. Every id must be one of the user's lists.
func (s *Store) Reorder(ctx context.Context, userID proto.ID, items []proto.ReorderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.memberships(ctx, userID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, ok := orders[item.Id]; !ok {
			return fmt.Errorf("list %s: %w", item.Id, ErrNotFound)
		}
	}
	for _, item := range items {
		if err := s.setMembership(ctx, userID, item.Id, item.MenuOrder); err != nil {
			return err
		}
	}
	return nil
}

// CopyList creates a new list owned by the user with the title and products of another
func (s *Store) CopyList(ctx context.Context, userID, listID proto.ID) (*proto.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, err := s.visibleList(ctx, userID, listID)
	if err != nil {
		return nil, err
	}

	title := source.Title + " (copy)"
	if validation.ValidateListTitle(title) != nil {
		title = source.Title
	}

	list, err := s.createList(ctx, userID, title)
	if err != nil {
		return nil, err
	}

	items, err := s.items(ctx, listID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if err := s.saveItem(ctx, list.Id, &items[i]); err != nil {
			return nil, err
		}
	}
	if err := s.recount(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// AcceptShare adds the user to the list carrying the share code.
// joined is false when the user already was a member.
func (s *Store) AcceptShare(ctx context.Context, user *proto.User, code string) (list *proto.List, joined bool, err error) {
	if err := validation.ValidateShareCode(code); err != nil {
		return nil, false, err
	}
	code = validation.NormalizeShareCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.storage.Get(ctx, storage.Key("share", code))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("share code %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, false, err
	}
	listID, err := proto.ParseID(string(raw))
	if err != nil {
		return nil, false, err
	}

	if existing, err := s.visibleList(ctx, user.Id, listID); err == nil {
		return existing, false, nil
	}

	list, err = s.loadList(ctx, listID)
	if err != nil {
		return nil, false, err
	}
	list.SharedWith = append(list.SharedWith, proto.Member{Id: user.Id, Name: user.Name, Email: user.Email})
	list.UpdatedAt = s.now()
	if err := s.saveList(ctx, list); err != nil {
		return nil, false, err
	}
	order, err := s.appendMembership(ctx, user.Id, listID)
	if err != nil {
		return nil, false, err
	}
	list.MenuOrder = order
	return list, true, nil
}

// LeaveList removes the user from a list shared with them
func (s *Store) LeaveList(ctx context.Context, userID, listID proto.ID) (*proto.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.visibleList(ctx, userID, listID)
	if err != nil {
		return nil, err
	}
	if list.Owner == userID {
		return nil, fmt.Errorf("owner cannot leave own list: %w", ErrConflict)
	}
	return list, s.dropMember(ctx, list, userID)
}

// RemoveMember removes another user from a list the user owns
func (s *Store) RemoveMember(ctx context.Context, userID, listID, memberID proto.ID) (*proto.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.visibleList(ctx, userID, listID)
	if err != nil {
		return nil, err
	}
	if list.Owner != userID {
		return nil, ErrForbidden
	}
	if memberID == userID {
		return nil, fmt.Errorf("owner cannot be removed: %w", ErrConflict)
	}

	found := false
	for _, m := range list.SharedWith {
		if m.Id == memberID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("member %s: %w", memberID, ErrNotFound)
	}
	return list, s.dropMember(ctx, list, memberID)
}

// dropMember updates list in place
func (s *Store) dropMember(ctx context.Context, list *proto.List, memberID proto.ID) error {
	kept := list.SharedWith[:0:0]
	for _, m := range list.SharedWith {
		if m.Id != memberID {
			kept = append(kept, m)
		}
	}
	list.SharedWith = kept
	list.UpdatedAt = s.now()

	if err := s.saveList(ctx, list); err != nil {
		return err
	}
	return s.storage.Delete(ctx, idKey("member", memberID, list.Id))
}

// Seed adds catalog products that are not present yet, matched by title
func (s *Store) Seed(ctx context.Context, titles []string) (int, error) {
	existing, err := s.SearchProducts(ctx, "")
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[strings.ToLower(p.Title)] = true
	}

	added := 0
	for _, title := range titles {
		if have[strings.ToLower(title)] {
			continue
		}
		if _, err := s.CreateProduct(ctx, &proto.CreateProductRequest{Title: title}); err != nil {
			return added, fmt.Errorf("seed %q: %w", title, err)
		}
		have[strings.ToLower(title)] = true
		added++
	}
	return added, nil
}
