// Package sync reconciles source calendars into destination calendars.
//
// A Reconciler processes each sync rule in turn. For a rule it fetches the
// source calendar's events in a time window, then for every enabled
// destination it:
//   - drops source events that are themselves mirrors of this instance
//   - creates or updates one mirror per source event, applying the
//     destination's privacy mode
//   - deletes mirrors whose source event no longer exists
//
// Mirrors are identified only by provenance stored in the event's private
// extended properties, never by title or time:
//
//	<identifier>_synced=true
//	<identifier>_<rule>=true
//	source_event_id=<id>
//	source_calendar_id=<id>
//
// # Dry Run
//
// With dryRun set, the reconciler performs the same reads and reports the
// planned actions through RuleResult.Plan without calling any mutating
// session method.
//
// # Errors
//
// Failures are classified by Kind. A KindConfig or KindAuth error on the
// source fails the rule; on a destination it skips only that target. A
// degraded fetch leaves the source empty and suppresses the deletion pass.
// KindApply errors are recorded per event and the loop continues.
package sync
