// Package session keeps bounded, in-memory conversation history per session id.
//
// Invariants:
// - A session never holds more than MaxTurns turns; the oldest are dropped first.
// - A Store belongs to exactly one provider; history never migrates between stores.
// - Entries live until cleared explicitly or pruned by an externally driven Cleanup.
//
// Usage:
//
//	store := session.NewStore(session.DefaultMaxTurns)
//	store.Append("s-1", session.Turn{Role: session.RoleUser, Content: "hello"})
//	turns := store.History("s-1")
//	_ = turns
package session
