package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nkkko/lista/pkg/proto"
)

var errServer = errors.New("server unavailable")

// fakeGateway records calls; a nil hook means success
type fakeGateway struct {
	mu      sync.Mutex
	calls   []string
	reorder [][]proto.ReorderItem
	token   string

	lists    []proto.List
	products map[proto.ID][]proto.ListProduct
	me       *proto.User

	// fail makes every call with a matching op fail
	fail map[string]error
	// block makes the op wait until its context is done or the channel is closed
	block map[string]chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		products: make(map[proto.ID][]proto.ListProduct),
		fail:     make(map[string]error),
		block:    make(map[string]chan struct{}),
	}
}

func (g *fakeGateway) enter(ctx context.Context, op string) error {
	g.mu.Lock()
	g.calls = append(g.calls, op)
	err := g.fail[op]
	wait := g.block[op]
	g.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *fakeGateway) failOp(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[op] = err
}

func (g *fakeGateway) blockOp(op string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.block[op] = ch
	return ch
}

func (g *fakeGateway) called(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (g *fakeGateway) ListLists(ctx context.Context) ([]proto.List, error) {
	if err := g.enter(ctx, "list_lists"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]proto.List(nil), g.lists...), nil
}

func (g *fakeGateway) CreateList(ctx context.Context, title string) (*proto.List, error) {
	if err := g.enter(ctx, "create_list"); err != nil {
		return nil, err
	}
	return &proto.List{Id: 100, Title: title, MenuOrder: 99}, nil
}

func (g *fakeGateway) UpdateList(ctx context.Context, id proto.ID, title string) (*proto.List, error) {
	if err := g.enter(ctx, "update_list"); err != nil {
		return nil, err
	}
	return &proto.List{Id: id, Title: title}, nil
}

func (g *fakeGateway) DeleteList(ctx context.Context, id proto.ID) error {
	return g.enter(ctx, "delete_list")
}

func (g *fakeGateway) ReorderLists(ctx context.Context, items []proto.ReorderItem) error {
	g.mu.Lock()
	g.reorder = append(g.reorder, append([]proto.ReorderItem(nil), items...))
	g.mu.Unlock()
	return g.enter(ctx, "reorder_lists")
}

func (g *fakeGateway) CopyList(ctx context.Context, id proto.ID) (*proto.List, error) {
	if err := g.enter(ctx, "copy_list"); err != nil {
		return nil, err
	}
	return &proto.List{Id: id + 1000, Title: "Copy"}, nil
}

func (g *fakeGateway) LeaveList(ctx context.Context, id proto.ID) error {
	return g.enter(ctx, "leave_list")
}

func (g *fakeGateway) RemoveMember(ctx context.Context, listID, userID proto.ID) error {
	return g.enter(ctx, "remove_member")
}

func (g *fakeGateway) AcceptShare(ctx context.Context, code string) (*proto.List, error) {
	if err := g.enter(ctx, "accept_share"); err != nil {
		return nil, err
	}
	return &proto.List{Id: 77, Title: "Shared " + code}, nil
}

func (g *fakeGateway) SearchProducts(ctx context.Context, query string) ([]proto.Product, error) {
	if err := g.enter(ctx, "search_products"); err != nil {
		return nil, err
	}
	return []proto.Product{{Id: 1, Title: query}}, nil
}

func (g *fakeGateway) CreateProduct(ctx context.Context, req *proto.CreateProductRequest) (*proto.Product, error) {
	if err := g.enter(ctx, "create_product"); err != nil {
		return nil, err
	}
	return &proto.Product{Id: 500, Title: req.Title, Custom: req.Custom}, nil
}

func (g *fakeGateway) ListProducts(ctx context.Context, listID proto.ID) ([]proto.ListProduct, error) {
	if err := g.enter(ctx, "list_products"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]proto.ListProduct(nil), g.products[listID]...), nil
}

func (g *fakeGateway) AddProductToList(ctx context.Context, listID proto.ID, req *proto.AddProductRequest) (*proto.ListProduct, error) {
	if err := g.enter(ctx, "add_product"); err != nil {
		return nil, err
	}
	return &proto.ListProduct{ProductId: req.ProductId, Title: "server", Quantity: req.Quantity, MenuOrder: 1}, nil
}

func (g *fakeGateway) RemoveProductFromList(ctx context.Context, listID, productID proto.ID) error {
	return g.enter(ctx, "remove_product")
}

func (g *fakeGateway) UpdateListProduct(ctx context.Context, listID, productID proto.ID, req *proto.UpdateListProductRequest) (*proto.ListProduct, error) {
	if err := g.enter(ctx, "update_list_product"); err != nil {
		return nil, err
	}
	return &proto.ListProduct{ProductId: productID}, nil
}

func (g *fakeGateway) Me(ctx context.Context) (*proto.User, error) {
	if err := g.enter(ctx, "me"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.me == nil {
		return &proto.User{}, nil
	}
	me := *g.me
	return &me, nil
}

func (g *fakeGateway) SetToken(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = token
}

// recordingNotifier keeps every notification shown
type recordingNotifier struct {
	mu    sync.Mutex
	shown []proto.Notification
}

func (n *recordingNotifier) Show(message string, typ proto.NotificationType, timeout time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, proto.Notification{Message: message, Type: typ, Timeout: timeout})
}

func (n *recordingNotifier) all() []proto.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]proto.Notification(nil), n.shown...)
}

func (n *recordingNotifier) ofType(typ proto.NotificationType) int {
	count := 0
	for _, s := range n.all() {
		if s.Type == typ {
			count++
		}
	}
	return count
}
