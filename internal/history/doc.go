// Package history persists dualbuild run reports in SQLite.
//
// Each completed run (build or recover) is stored as one row with its entry
// outcomes serialized as JSON. The database lives in the state directory and
// is opened in WAL mode so `dualbuild history` can read while a build writes.
package history
