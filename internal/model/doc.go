// Package model defines the entities shared by both stores.
//
// A Project, Goal or Task is a single Go type per class. Which store a value
// came from is encoded as a tagged union: exactly one of the Source or Target
// origin pointers is set. The origin tag carries the store-native identifiers
// and metadata that the other store has no use for, while the remaining
// fields are the business fields compared during diffing.
//
// SyncID is the store-agnostic identity. It is always the Target record's id;
// the Source record stores a copy of it once linked. An empty SyncID means the
// entity has never been linked and can never be paired.
package model
