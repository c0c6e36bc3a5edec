// Package social persists the relationship state that topic authorization
// decisions are made from: groups, group memberships, and friendships.
//
// Invariants maintained here rather than by the schema:
//   - exactly one owner per group, preserved by running ownership transfer
//     as a single transaction (new owner promoted, old owner demoted)
//   - one friendship row per user pair, stored in whichever direction the
//     request was made; lookups always check both orderings
package social
