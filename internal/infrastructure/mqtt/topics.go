package mqtt

import "fmt"

// Topic prefixes for the Parley namespace.
//
// Chat topics carry a leading slash, matching what clients publish and what
// the broker sends to the ACL webhook. The system status topic lives in a
// separate parley/ namespace so it never collides with user traffic.
const (
	// TopicPrefixGroups is the base for group chat topics.
	TopicPrefixGroups = "/groups"

	// TopicPrefixDMs is the base for direct message topics.
	TopicPrefixDMs = "/dms"

	// TopicPrefixUsers is the base for per-user system event topics.
	TopicPrefixUsers = "/users"

	// TopicPrefixSystem is the base for Parley's own service topics.
	TopicPrefixSystem = "parley/system"
)

// Topics provides builders for Parley MQTT topics.
// Using these helpers keeps topic naming consistent with the ACL engine.
type Topics struct{}

// Group returns the chat topic for a group.
//
// Example: /groups/3f1c9a2e-8b4d-4f6a-9c0e-1d2b3a4c5d6e
func (Topics) Group(groupID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixGroups, groupID)
}

// DM returns the direct message inbox topic for a user.
//
// Example: /dms/3f1c9a2e-8b4d-4f6a-9c0e-1d2b3a4c5d6e
func (Topics) DM(userID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixDMs, userID)
}

// User returns the system event topic for a user. Only the server publishes
// here; clients subscribe to receive friend requests, group invites, and
// similar notifications.
//
// Example: /users/3f1c9a2e-8b4d-4f6a-9c0e-1d2b3a4c5d6e
func (Topics) User(userID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixUsers, userID)
}

// SystemStatus returns the service liveness topic.
//
// Example: parley/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
