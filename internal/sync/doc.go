// Package sync is the orchestration core of the catalog mirror.
//
// # Strategies
//
// A Strategy is one unit of synchronisation logic, such as the daily
// incremental window or the monthly rotation. Runner implements the shared
// run lifecycle: it rejects overlapping executions, resets progress, captures
// errors and panics into the Result and honours cooperative stop requests.
// Concrete strategies only supply a WorkFunc; see the strategies subpackage.
//
// # Manager
//
// Manager is the registry of named strategies. It keeps its own in-flight set
// on top of each strategy's running flag, so two invocations of the same name
// never overlap even when callers race. Different names may run concurrently.
//
// # Subjects
//
// SubjectSyncer stores a subject's metadata without touching its character
// list, then replaces the list and refreshes characters whose local copy is
// older than the cooldown. Character failures are collected, not returned.
//
// The coordinator subpackage runs strategies on configured intervals.
package sync
