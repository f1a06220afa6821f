// Package docstore is the document store behind every collection labkit
// reads and writes: users, roles, laboratories and the tenant-scoped
// business collections.
//
// A Store offers get-by-id, filtered queries, top-level merge writes and
// deletes. Backends:
//
//   - MemoryStore for tests and single-process development
//   - SQLStore on one documents(collection, id, data) table, with Postgres
//     (JSONB) and SQLite (json_extract) dialects
//   - MongoStore with one Mongo collection per store collection
//
// CachedStore adds an in-process LRU and an optional Redis layer in front
// of Get, and Instrument records Prometheus metrics for any backend.
//
// Filters compare top-level fields only. Field names must be plain
// identifiers; values are always bound as parameters.
package docstore
