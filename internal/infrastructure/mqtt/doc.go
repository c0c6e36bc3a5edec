// Package mqtt provides Parley's connection to the message broker.
//
// The connection is publish-only: Parley uses it to deliver system events
// (friend requests, group invites, membership changes) to per-user topics
// and to announce its own liveness. Chat traffic between clients flows
// through the broker directly, authorized by the webhook façade, and never
// passes through this client.
//
// The client handles automatic reconnection with backoff and configures a
// Last Will and Testament so subscribers can detect an unclean shutdown.
package mqtt
