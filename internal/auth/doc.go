// Package auth provides authentication and session lifecycle for Parley Core.
//
// It implements a 2-tier role model (default → admin) with:
//   - Argon2id credential hashing (OWASP 2025 recommendation), used for
//     both login passwords and refresh-token secrets
//   - Short-lived HS256 JWT access tokens, unrevokable before expiry
//   - Long-lived rotating refresh tokens with breach detection: a failed
//     secret verification against a live row revokes every refresh token
//     the user holds, forcing re-authentication
//
// The admin role is derived from the presence of an admins row at issuance
// time, never cached beyond a token's TTL. Refresh tokens rotate in place:
// the row id survives each rotation while the secret digest and expiry are
// overwritten, forming a logical one-time-use chain.
package auth
