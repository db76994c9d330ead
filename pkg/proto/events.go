package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event names published by the push service
const (
	EventListDeleted        = "list-deleted"
	EventListUpdated        = "list-updated"
	EventListSummaryUpdated = "list-summary-updated"
	EventShareUpdate        = "share-update"
)

const (
	listChannelPrefix = "shopping-list-"
	userChannelPrefix = "user-lists-"
)

// ListChannel returns the push channel carrying events for one list
func ListChannel(listID ID) string {
	return listChannelPrefix + listID.String()
}

// UserChannel returns the push channel carrying events for one user's lists
func UserChannel(userID ID) string {
	return userChannelPrefix + userID.String()
}

// ErrUnknownEvent is returned when an event name has no registered payload shape
var ErrUnknownEvent = errors.New("unknown event")

// Envelope is a single frame received from the push service
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Frame is a control message sent to the push service
type Frame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Frame types understood by the push service
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePublish     = "publish"
)

// Event is implemented by every typed realtime payload
type Event interface {
	// EventName returns the wire name of the event
	EventName() string

	// Sender returns the id of the user whose action caused the event
	Sender() ID

	// Text returns the human-readable message carried by the event, if any
	Text() string
}

// ListDeleted is published on a list channel when the list is removed
type ListDeleted struct {
	ListId   ID     `json:"list_id"`
	Message  string `json:"message,omitempty"`
	SenderId ID     `json:"sender_id,omitempty"`
}

func (e *ListDeleted) EventName() string { return EventListDeleted }
func (e *ListDeleted) Sender() ID        { return e.SenderId }
func (e *ListDeleted) Text() string      { return e.Message }

// ListUpdated carries an arbitrary content change for a list.
// The payload is forwarded untouched.
type ListUpdated struct {
	Raw      json.RawMessage `json:"-"`
	SenderId ID              `json:"sender_id,omitempty"`
	Message  string          `json:"message,omitempty"`
}

func (e *ListUpdated) EventName() string { return EventListUpdated }
func (e *ListUpdated) Sender() ID        { return e.SenderId }
func (e *ListUpdated) Text() string      { return e.Message }

// ListSummaryUpdated carries the title and counters shown on a list tile
type ListSummaryUpdated struct {
	ListId              ID        `json:"list_id"`
	Title               string    `json:"title"`
	ProductCount        *int      `json:"product_count,omitempty"`
	BaggedProductCount  *int      `json:"bagged_product_count,omitempty"`
	CheckedProductCount *int      `json:"checked_product_count,omitempty"`
	UpdatedAt           time.Time `json:"updated_at,omitempty"`
	Message             string    `json:"message,omitempty"`
	SenderId            ID        `json:"sender_id,omitempty"`
}

func (e *ListSummaryUpdated) EventName() string { return EventListSummaryUpdated }
func (e *ListSummaryUpdated) Sender() ID        { return e.SenderId }

// Text falls back to a generic line naming the list when the sender gave no message
func (e *ListSummaryUpdated) Text() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Title == "" {
		return "A list was updated"
	}
	return fmt.Sprintf("List %q was updated", e.Title)
}

// Share actions carried by ShareUpdate
const (
	ShareActionRemoved = "removed"
	ShareActionLeft    = "left"
	ShareActionJoined  = "joined"
)

// ShareUpdate is published on a user channel when list membership changes
type ShareUpdate struct {
	ListId   ID     `json:"list_id"`
	UserId   ID     `json:"user_id"`
	Action   string `json:"action,omitempty"`
	Message  string `json:"message,omitempty"`
	SenderId ID     `json:"sender_id,omitempty"`
}

func (e *ShareUpdate) EventName() string { return EventShareUpdate }
func (e *ShareUpdate) Sender() ID        { return e.SenderId }
func (e *ShareUpdate) Text() string      { return e.Message }

// DecodeEvent turns a raw payload into its typed event.
// Unknown names yield ErrUnknownEvent; payloads missing their key fields are rejected.
func DecodeEvent(name string, data []byte) (Event, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}

	switch name {
	case EventListDeleted:
		var ev ListDeleted
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if ev.ListId.IsZero() {
			return nil, fmt.Errorf("decode %s: missing list_id", name)
		}
		return &ev, nil

	case EventListUpdated:
		var ev ListUpdated
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		ev.Raw = append(json.RawMessage(nil), data...)
		return &ev, nil

	case EventListSummaryUpdated:
		var ev ListSummaryUpdated
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if ev.ListId.IsZero() {
			return nil, fmt.Errorf("decode %s: missing list_id", name)
		}
		return &ev, nil

	case EventShareUpdate:
		var ev ShareUpdate
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if ev.ListId.IsZero() || ev.UserId.IsZero() {
			return nil, fmt.Errorf("decode %s: missing list_id or user_id", name)
		}
		return &ev, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}
