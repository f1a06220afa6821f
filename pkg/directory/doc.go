// Package directory reads and administers the users, roles and
// laboratories collections.
//
// The getters are the record loaders used during tenant context
// resolution. The administration operations take the caller's laboratory
// id and never touch records of another laboratory: foreign users and
// roles are reported as ErrNotFound.
package directory
