// Package notify implements the notification orchestrator.
//
// A Send renders the optional template, resolves the user's channel
// preferences, dispatches one attempt per channel concurrently through the
// delivery adapters and aggregates the outcomes into a single Event. After
// each notification completes, active rules for the user and for SYSTEM are
// evaluated in ascending priority and may fan out further notifications,
// broadcasts or audit entries.
//
// Status aggregation:
//
//	any channel sent or delivered  -> delivered
//	no channels resolved           -> sent
//	every attempted channel failed -> failed
//
// Batches run their members sequentially and always finish as "completed".
package notify
