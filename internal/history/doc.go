// Package history records conversion runs in a local SQLite database.
//
// Each run is inserted as running when the converter starts and updated with
// its outcome when it exits. Rows still marked running while the job lock
// is held belong to a process that died mid-run; MarkInterrupted closes them
// out as interrupted.
package history
