// Package notify delivers server-originated events to users over MQTT.
//
// Friend requests, group invites and membership changes are pushed to each
// user's /users/{id} topic. Delivery is best-effort: a failed publish is
// logged and the triggering operation proceeds, because the client will
// reconcile state over HTTP on its next sync anyway.
package notify

import (
	"encoding/json"
	"time"

	"github.com/parley-im/parley-core/internal/infrastructure/logging"
	"github.com/parley-im/parley-core/internal/infrastructure/mqtt"
)

// Event types pushed to user topics.
const (
	EventFriendRequest  = "friend_request"
	EventFriendApproved = "friend_approved"
	EventFriendRejected = "friend_rejected"
	EventGroupInvite    = "group_invite"
	EventGroupJoined    = "group_joined"
	EventGroupRemoved   = "group_removed"
	EventRoleChanged    = "role_changed"
)

// notifyQoS is at-least-once: a dropped invite notification is worse than
// an occasional duplicate, which clients de-duplicate by payload.
const notifyQoS = 1

// Publisher is the transport the notifier publishes through.
// Satisfied by mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Event is the JSON payload delivered to /users/{id}.
type Event struct {
	Type      string         `json:"type"`
	From      string         `json:"from,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier publishes system events to per-user topics.
type Notifier struct {
	publisher Publisher
	topics    mqtt.Topics
	logger    *logging.Logger
	now       func() time.Time
}

// NewNotifier creates a Notifier. publisher may be nil when MQTT is
// disabled; all sends become no-ops.
func NewNotifier(publisher Publisher, logger *logging.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Send pushes an event to userID's topic. Errors are logged, never returned:
// notification delivery must not fail the operation that triggered it.
func (n *Notifier) Send(userID, eventType, fromUserID string, payload map[string]any) {
	if n == nil || n.publisher == nil {
		return
	}
	if !n.publisher.IsConnected() {
		n.logger.Debug("notification skipped, broker not connected",
			"user_id", userID, "type", eventType)
		return
	}

	event := Event{
		Type:      eventType,
		From:      fromUserID,
		Payload:   payload,
		Timestamp: n.now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("notification marshal failed",
			"user_id", userID, "type", eventType, "error", err)
		return
	}

	topic := n.topics.User(userID)
	if err := n.publisher.Publish(topic, data, notifyQoS, false); err != nil {
		n.logger.Error("notification publish failed",
			"topic", topic, "type", eventType, "error", err)
		return
	}

	n.logger.Debug("notification sent", "topic", topic, "type", eventType)
}

// FriendRequest notifies addresseeID of a pending request from requesterID.
func (n *Notifier) FriendRequest(requesterID, addresseeID, requesterName string) {
	n.Send(addresseeID, EventFriendRequest, requesterID, map[string]any{
		"username": requesterName,
	})
}

// FriendDecision notifies requesterID that addresseeID approved or rejected
// their request.
func (n *Notifier) FriendDecision(requesterID, addresseeID string, approved bool) {
	eventType := EventFriendRejected
	if approved {
		eventType = EventFriendApproved
	}
	n.Send(requesterID, eventType, addresseeID, nil)
}

// GroupInvite notifies userID of an invite to groupID.
func (n *Notifier) GroupInvite(userID, inviterID, groupID, groupName string) {
	n.Send(userID, EventGroupInvite, inviterID, map[string]any{
		"group_id":   groupID,
		"group_name": groupName,
	})
}

// GroupRemoved notifies userID they were removed from groupID.
func (n *Notifier) GroupRemoved(userID, removedBy, groupID string) {
	n.Send(userID, EventGroupRemoved, removedBy, map[string]any{
		"group_id": groupID,
	})
}

// RoleChanged notifies userID their role in groupID changed.
func (n *Notifier) RoleChanged(userID, changedBy, groupID, role string) {
	n.Send(userID, EventRoleChanged, changedBy, map[string]any{
		"group_id": groupID,
		"role":     role,
	})
}
