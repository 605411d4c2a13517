package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across packages so log aggregation and querying stay uniform.
const (
	KeyRequestID = "request_id" // correlates a mutation with its audit event
	KeyUserID    = "user_id"    // owning user of the affected tree
	KeyAction    = "action"     // engine operation: upload, move, copy, ...
	KeyClientIP  = "client_ip"  // client IP address (without port)

	KeyFileID   = "file_id"   // file row id
	KeyParentID = "parent_id" // parent folder id
	KeyPath     = "path"      // stored path (storage key or absolute)
	KeyName     = "name"      // display name
	KeySize     = "size"      // byte size
	KeyKey      = "key"       // blob storage key
	KeyBucket   = "bucket"    // S3 bucket
	KeyDriver   = "driver"    // storage driver: local, s3

	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyCount      = "count"       // generic item count
)

// Err returns a slog.Attr for an error, or the empty Attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
