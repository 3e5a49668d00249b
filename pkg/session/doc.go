// Package session defines the session record and the persistence contract
// used by the dispatch engine.
//
// A session is created on first contact, persisted whenever it becomes dirty,
// and rotated (new id, old entry deleted) on login, logout and privilege
// changes. Two stores are provided: [github.com/tonyluong2025/verp-sub017/pkg/session/filestore]
// (default, one JSON file per session) and
// [github.com/tonyluong2025/verp-sub017/pkg/session/redisstore].
package session
