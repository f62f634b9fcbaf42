// Package retention prunes the turn journal by age and by size.
//
// Pruner.Prune runs two phases: records older than RetentionDays are
// deleted, then the oldest records beyond MaxRecords. Scheduler runs Prune
// on a standard five-field cron expression.
package retention
