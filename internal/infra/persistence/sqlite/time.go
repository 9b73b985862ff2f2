package sqlite

import "time"

// Timestamps are stored as RFC 3339 text so rows stay readable in the sqlite
// shell.
func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }
