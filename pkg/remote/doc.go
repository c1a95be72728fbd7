// Package remote defines the remote copy of a user's data and the session
// source that decides whose data it is. MongoBackend stores records in
// per-kind collections with snake_case documents; RedisSessions resolves a
// session token stored in Redis; MemoryBackend and StaticSession back the
// in-process "memory" driver.
package remote
