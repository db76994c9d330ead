package chi

import (
	"github.com/nkkko/lista/internal/api/content"
	"github.com/nkkko/lista/pkg/proto"
)

// Publisher delivers realtime events to push channels
type Publisher interface {
	Publish(channel, event string, data any) error
}

// List content actions carried by list-updated
const (
	ActionAdded   = "added"
	ActionUpdated = "updated"
	ActionRemoved = "removed"
)

// ListUpdatedPayload is the body of list-updated events published by this server
type ListUpdatedPayload struct {
	ListId    proto.ID           `json:"list_id"`
	Action    string             `json:"action"`
	ProductId proto.ID           `json:"product_id"`
	Product   *proto.ListProduct `json:"product,omitempty"`
	SenderId  proto.ID           `json:"sender_id"`
	Message   string             `json:"message,omitempty"`
}

func (a *ChiAPI) publish(channel, event string, data any) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(channel, event, data); err != nil {
		a.logger.Warn().Err(err).Str("channel", channel).Str("event", event).Msg("Failed to publish event")
	}
}

func (a *ChiAPI) publishDeleted(list *proto.List, actor *proto.User) {
	a.publish(proto.ListChannel(list.Id), proto.EventListDeleted, &proto.ListDeleted{
		ListId:   list.Id,
		Message:  actor.Name + ` deleted "` + list.Title + `"`,
		SenderId: actor.Id,
	})
}

// publishSummary sends the list tile state to every member
func (a *ChiAPI) publishSummary(list *proto.List, actor *proto.User, message string) {
	productCount := list.ProductCount
	baggedCount := list.BaggedProductCount
	checkedCount := list.CheckedProductCount

	summary := &proto.ListSummaryUpdated{
		ListId:              list.Id,
		Title:               list.Title,
		ProductCount:        &productCount,
		BaggedProductCount:  &baggedCount,
		CheckedProductCount: &checkedCount,
		UpdatedAt:           list.UpdatedAt,
		Message:             message,
		SenderId:            actor.Id,
	}
	for _, member := range content.Members(list) {
		a.publish(proto.UserChannel(member), proto.EventListSummaryUpdated, summary)
	}
}

func (a *ChiAPI) publishContent(list *proto.List, actor *proto.User, action string, productID proto.ID, item *proto.ListProduct) {
	a.publish(proto.ListChannel(list.Id), proto.EventListUpdated, &ListUpdatedPayload{
		ListId:    list.Id,
		Action:    action,
		ProductId: productID,
		Product:   item,
		SenderId:  actor.Id,
	})
	a.publishSummary(list, actor, "")
}

// publishShare tells the affected user and every remaining member about a membership change
func (a *ChiAPI) publishShare(list *proto.List, actor *proto.User, userID proto.ID, action, message string) {
	update := &proto.ShareUpdate{
		ListId:   list.Id,
		UserId:   userID,
		Action:   action,
		Message:  message,
		SenderId: actor.Id,
	}

	notified := false
	for _, member := range content.Members(list) {
		if member == userID {
			notified = true
		}
		a.publish(proto.UserChannel(member), proto.EventShareUpdate, update)
	}
	if !notified {
		a.publish(proto.UserChannel(userID), proto.EventShareUpdate, update)
	}
}
