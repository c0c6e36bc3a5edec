package acl

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/parley-im/parley-core/internal/infrastructure/logging"
)

// Action is a broker operation on a topic.
type Action string

const (
	ActionPublish   Action = "publish"
	ActionSubscribe Action = "subscribe"
)

// Decision is the outcome of an authorization check. Reason is safe to
// return to the broker in the webhook response.
type Decision struct {
	Allow  bool
	Reason string
}

func allow(format string, args ...any) Decision {
	return Decision{Allow: true, Reason: fmt.Sprintf(format, args...)}
}

func deny(format string, args ...any) Decision {
	return Decision{Allow: false, Reason: fmt.Sprintf(format, args...)}
}

// uuidPart matches a canonical lowercase-hex UUID; the (?i) prefix on the
// topic patterns makes the whole match case-insensitive.
const uuidPart = `([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`

var (
	groupTopicPattern = regexp.MustCompile(`(?i)^/groups/` + uuidPart + `$`)
	dmTopicPattern    = regexp.MustCompile(`(?i)^/dms/` + uuidPart + `$`)
	userTopicPattern  = regexp.MustCompile(`(?i)^/users/` + uuidPart + `$`)
)

// MembershipChecker reports raw group membership row existence.
// Satisfied by social.GroupRepository.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID, groupID string) (bool, error)
}

// FriendshipChecker reports approved friendship in either direction.
// Satisfied by social.FriendRepository.
type FriendshipChecker interface {
	HasApproved(ctx context.Context, userA, userB string) (bool, error)
}

// Engine authorizes topic actions against relationship state.
type Engine struct {
	groups  MembershipChecker
	friends FriendshipChecker
	logger  *logging.Logger
}

// NewEngine creates an ACL engine over the given relationship lookups.
func NewEngine(groups MembershipChecker, friends FriendshipChecker, logger *logging.Logger) *Engine {
	return &Engine{groups: groups, friends: friends, logger: logger}
}

// Authorize decides whether userID may perform action on topic.
//
// Lookup errors deny with a generic reason rather than surfacing: the
// caller (the broker webhook) must always receive a decision.
func (e *Engine) Authorize(ctx context.Context, userID, topic string, action Action) Decision {
	if action != ActionPublish && action != ActionSubscribe {
		return deny("unsupported action %q", action)
	}

	// Ids compare case-insensitively; lowercase the subject once so every
	// path sees the same form.
	userID = strings.ToLower(userID)

	if m := groupTopicPattern.FindStringSubmatch(topic); m != nil {
		return e.authorizeGroup(ctx, userID, strings.ToLower(m[1]))
	}
	if m := dmTopicPattern.FindStringSubmatch(topic); m != nil {
		return e.authorizeDM(ctx, userID, strings.ToLower(m[1]), action)
	}
	if m := userTopicPattern.FindStringSubmatch(topic); m != nil {
		return e.authorizeUser(userID, strings.ToLower(m[1]), action)
	}

	return deny("topic %s does not match any known pattern", topic)
}

// authorizeGroup: publish and subscribe share one rule, a membership row
// must exist. Role and invite status are not consulted.
func (e *Engine) authorizeGroup(ctx context.Context, userID, groupID string) Decision {
	isMember, err := e.groups.IsMember(ctx, userID, groupID)
	if err != nil {
		e.logger.Error("group membership lookup failed",
			"user_id", userID, "group_id", groupID, "error", err)
		return deny("unable to verify group membership")
	}

	if !isMember {
		return deny("user is not a member of group %s", groupID)
	}
	return allow("user is member of group %s", groupID)
}

func (e *Engine) authorizeDM(ctx context.Context, userID, peerID string, action Action) Decision {
	if action == ActionSubscribe {
		if strings.EqualFold(userID, peerID) {
			return allow("user can subscribe to own DM topic")
		}
		return deny("can only subscribe to own DM topic")
	}

	// Publish requires an approved friendship in either direction.
	approved, err := e.friends.HasApproved(ctx, userID, peerID)
	if err != nil {
		e.logger.Error("friendship lookup failed",
			"user_id", userID, "peer_id", peerID, "error", err)
		return deny("unable to verify friendship")
	}

	if !approved {
		return deny("user is not friend with %s", peerID)
	}
	return allow("user is friend with %s", peerID)
}

func (e *Engine) authorizeUser(userID, peerID string, action Action) Decision {
	if action == ActionSubscribe {
		if strings.EqualFold(userID, peerID) {
			return allow("user can subscribe to own user topic")
		}
		return deny("can only subscribe to own user topic")
	}

	// Only the server's own notifier publishes here.
	return deny("only system can publish to user topics")
}
