// Package store is the document database the rest of the service talks to.
//
// Documents live in named collections and are addressed by id. The only
// write guarantee is single-document atomicity: Create, Set, Merge, Delete
// and Increment each touch exactly one document. There are no transactions
// spanning documents, so callers that keep denormalized data consistent
// (vote tallies, for example) must tolerate partially applied sequences.
//
// Subscriptions push the complete current result set of a query whenever a
// document in the queried collection changes. They never deliver deltas.
//
// Three backends implement DocumentStore:
//   - PostgresStore keeps every document as a JSONB row and fans out
//     LISTEN/NOTIFY events.
//   - MongoStore maps collections one to one and watches change streams.
//   - MemoryStore is in-process, used by tests and the dev mode.
package store
