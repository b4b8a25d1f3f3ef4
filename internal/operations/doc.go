// Package operations runs the consolidation pipeline and keeps its ledger.
//
// A run moves through fixed phases:
//
//   - ingest: every object under the prefix is fetched, decoded, reduced to
//     the configured attributes and merged into its entity file
//   - route: once ingest has drained, every entity file is fanned out into
//     the datamart categories
//   - summarize: the corpus summary is recomputed from the entity files
//   - export and publish: the optional workbook, and uploads of the outputs
//
// Units (objects, entity files, artifacts) fail on their own; the failure is
// recorded on the run and the phase carries on. Only a failure to list the
// source or to create a storage root aborts a run.
//
// Coordinator allows a single active run. Progress is published as
// domain.RunEvent values to an EventSink, typically an EventBroadcaster that
// fans out to the websocket hub and a notifier. Runs are kept in a RunStore:
// MemoryRunStore for tests and short-lived processes, SQLiteRunStore for the
// durable ledger.
package operations
