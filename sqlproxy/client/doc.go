// Package client is the HTTP transport used by the remote and embedded-replica
// engines to reach a primary served by sqlproxy/host.
//
// Every SQL call is serialised as a JSON `SQLRequest` and answered with a
// `Response` holding the complete result: columns, all rows, and the
// last_insert_rowid / rows_affected counters. There is no server-side cursor.
//
// Usage:
//
//	c := client.NewClient("http://localhost:8080", client.WithAuthToken(token))
//	resp, err := c.Do(ctx, types.SQLRequest{Command: types.CommandQuery, SQL: "SELECT 1"})
//
// Replicas pull the primary's database image with Snapshot, which streams the
// zstd-compressed body into a writer and verifies its xxh3 checksum.
//
// Errors:
//
// Transport failures, HTTP status errors and SQL errors reported by the primary
// are all returned as *Error; use IsHostError, IsNetworkError, etc. to tell
// them apart. A host error carries the primary's message unchanged, so
// message-based classifiers (unique constraint detection) keep working.
package client
