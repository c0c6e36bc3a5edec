// Package acl decides whether a user may publish or subscribe on a topic.
//
// The engine is a pure decision function over relationship state: it reads
// memberships and friendships and writes nothing. Malformed topics, unknown
// actions, and lookup failures all degrade to deny, so every call yields
// allow or deny with a reason.
//
// Recognized topic shapes (uuid ids, matched case-insensitively):
//
//	/groups/{id}  pub+sub for group members
//	/dms/{id}     sub for the owner, pub for approved friends
//	/users/{id}   sub for the owner, pub always denied (system reserved)
//
// Anything else is denied as unrecognized.
package acl
