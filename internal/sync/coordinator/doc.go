// Package coordinator runs sync strategies on fixed intervals.
//
// Each Schedule names a registered strategy and an interval. The coordinator
// polls on a jittered ticker and starts, through the sync.Manager, every
// schedule whose interval has elapsed since its last attempt. Runs proceed in
// the background so schedules for different strategies overlap; the Manager
// rejects a second run of a strategy that is still in flight, in which case
// the schedule is simply retried on a later poll.
//
// # Status Persistence
//
// The outcome of every scheduled run is stored as a status.RunStatus in the
// key/value store. The last attempt time is what decides whether a schedule is
// due, so a restarted process does not re-run every job at once. A status left
// "Running" by a process that died mid-run is marked failed on startup.
//
// # Usage Example
//
//	coord := coordinator.New(manager, status.NewKVPersistence(kv, prefix), schedules)
//	go func() {
//	    if err := coord.Start(ctx); err != nil {
//	        slog.Error("coordinator exited", "error", err)
//	    }
//	}()
//	defer coord.Stop()
package coordinator
