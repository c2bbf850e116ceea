// Package core is the catalog synchronization engine.
//
// It ingests a restaurant's product catalog from uploaded or scheduled
// sources, reconciles it against the stored catalog and runs that work on
// demand or on recurring schedules. Nothing here knows about HTTP; the web
// package and the CLI both drive it through [Service].
//
// # Pipeline
//
// One sync job runs three stages:
//
//  1. A [Parser], chosen from the registry by file extension, turns raw bytes
//     into [RawRow]s keyed by canonical [Column].
//  2. [Normalize] validates and coerces each row into a [CatalogRecord]; a bad
//     row becomes a [ParseError] and never stops the batch.
//  3. [Reconciler.Reconcile] diffs records against the tenant's catalog by
//     normalized name and writes creates and updates as one atomic
//     [ChangeSet], holding the tenant lock throughout.
//
// Parsers register themselves from package formats:
//
//	func init() {
//	    core.RegisterParser(core.FormatCSV, core.ParserFunc(parseCSV))
//	}
//
// # Jobs and schedules
//
// Every job, whether from an upload, a manual trigger or a cron fire, goes
// through [JobManager] onto one bounded FIFO [WorkerPool]. A schedule slot
// (tenant, channel) has at most one job in flight; overlapping requests are
// coalesced. [Scheduler] keeps one cron entry per slot and runs a single
// catch-up job at startup for slots that missed a fire.
//
// # Error Handling
//
// Failures carry an [ErrorKind] through [SyncError]. Input and schedule
// errors are shown to users as-is; everything else is mapped to a message
// with a support code by [MapError]:
//
//   - DB001-DB006: store failures
//   - VAL001-VAL003: validation
//   - FILE001-FILE006: sources and decoding
//   - SYNC001-SYNC005: jobs
//   - SCH001: schedules
package core
