// Package session persists conversations between turns. The continuation
// token issued with an assistant message is stored on that message, so the
// next request built from the history echoes it back to the provider.
//
// InMemoryStore is the bundled Store. Add additional backends (Redis,
// Postgres, etc.) in sub-packages without changing calling code.
package session
