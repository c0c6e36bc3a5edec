package notify

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/parley-im/parley-core/internal/infrastructure/logging"
)

type fakePublisher struct {
	connected bool
	err       error

	topics   []string
	payloads [][]byte
	qos      []byte
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, _ bool) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	f.qos = append(f.qos, qos)
	return nil
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func testNotifier(pub *fakePublisher) *Notifier {
	n := NewNotifier(pub, logging.Default())
	n.now = func() time.Time {
		return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	}
	return n
}

func TestSend(t *testing.T) {
	pub := &fakePublisher{connected: true}
	n := testNotifier(pub)

	n.Send("user-42", EventFriendRequest, "user-7", map[string]any{"username": "alice"})

	if len(pub.topics) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.topics))
	}
	if pub.topics[0] != "/users/user-42" {
		t.Errorf("topic = %q, want /users/user-42", pub.topics[0])
	}
	if pub.qos[0] != notifyQoS {
		t.Errorf("qos = %d, want %d", pub.qos[0], notifyQoS)
	}

	var event Event
	if err := json.Unmarshal(pub.payloads[0], &event); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if event.Type != EventFriendRequest {
		t.Errorf("event type = %q, want %q", event.Type, EventFriendRequest)
	}
	if event.From != "user-7" {
		t.Errorf("event from = %q, want user-7", event.From)
	}
	if event.Payload["username"] != "alice" {
		t.Errorf("event payload = %v, want username alice", event.Payload)
	}
	if event.Timestamp.IsZero() {
		t.Error("event timestamp is zero")
	}
}

func TestSend_SkipsWhenDisconnected(t *testing.T) {
	pub := &fakePublisher{connected: false}
	n := testNotifier(pub)

	n.Send("user-42", EventGroupJoined, "", nil)

	if len(pub.topics) != 0 {
		t.Errorf("published %d messages while disconnected, want 0", len(pub.topics))
	}
}

func TestSend_NilPublisher(t *testing.T) {
	n := NewNotifier(nil, logging.Default())

	// Must not panic when MQTT is disabled.
	n.Send("user-42", EventGroupJoined, "", nil)
}

func TestSend_PublishErrorDoesNotPropagate(t *testing.T) {
	pub := &fakePublisher{connected: true, err: errors.New("broker unavailable")}
	n := testNotifier(pub)

	// Send has no error return; this must simply not panic.
	n.Send("user-42", EventRoleChanged, "user-1", nil)
}

func TestHelperEvents(t *testing.T) {
	pub := &fakePublisher{connected: true}
	n := testNotifier(pub)

	n.FriendRequest("requester", "addressee", "alice")
	n.FriendDecision("requester", "addressee", true)
	n.FriendDecision("requester", "addressee", false)
	n.GroupInvite("invitee", "inviter", "group-1", "general")
	n.GroupRemoved("member", "owner", "group-1")
	n.RoleChanged("member", "owner", "group-1", "admin")

	wantTopics := []string{
		"/users/addressee",
		"/users/requester",
		"/users/requester",
		"/users/invitee",
		"/users/member",
		"/users/member",
	}
	wantTypes := []string{
		EventFriendRequest,
		EventFriendApproved,
		EventFriendRejected,
		EventGroupInvite,
		EventGroupRemoved,
		EventRoleChanged,
	}

	if len(pub.topics) != len(wantTopics) {
		t.Fatalf("published %d messages, want %d", len(pub.topics), len(wantTopics))
	}
	for i := range wantTopics {
		if pub.topics[i] != wantTopics[i] {
			t.Errorf("message %d topic = %q, want %q", i, pub.topics[i], wantTopics[i])
		}
		var event Event
		if err := json.Unmarshal(pub.payloads[i], &event); err != nil {
			t.Fatalf("message %d payload: %v", i, err)
		}
		if event.Type != wantTypes[i] {
			t.Errorf("message %d type = %q, want %q", i, event.Type, wantTypes[i])
		}
	}
}
