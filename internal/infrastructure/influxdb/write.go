package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteAuthEvent records an authentication event (login, refresh, webhook
// connect check). The write is non-blocking; data is batched and sent
// asynchronously.
//
// Tags are low-cardinality by design: event names the operation, outcome is
// "allow"/"deny" or "success"/"failure". User identifiers go in fields so
// they never explode the tag index.
func (c *Client) WriteAuthEvent(event, outcome, reason string, userID string) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"count": 1,
	}
	if userID != "" {
		fields["user_id"] = userID
	}
	if reason != "" {
		fields["reason"] = reason
	}

	point := write.NewPoint(
		"auth_events",
		map[string]string{
			"event":   event,
			"outcome": outcome,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteACLDecision records a topic authorization decision from the webhook
// façade.
//
// topicClass is the topic family ("groups", "dms", "users", "unknown"), not
// the full topic, keeping tag cardinality bounded.
func (c *Client) WriteACLDecision(action, topicClass, result string, durationMs float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"acl_decisions",
		map[string]string{
			"action":      action,
			"topic_class": topicClass,
			"result":      result,
		},
		map[string]interface{}{
			"count":       1,
			"duration_ms": durationMs,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTokenSweep records the outcome of an expired-token cleanup pass.
func (c *Client) WriteTokenSweep(removed int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"token_sweeps",
		nil,
		map[string]interface{}{
			"removed": removed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point for measurements that don't fit the
// helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
