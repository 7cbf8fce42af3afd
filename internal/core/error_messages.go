package core

// error_messages.go maps technical errors to messages with support codes.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this key already exists
//	        SQLSTATE 23505, patterns: "duplicate key"
//	DB002 - Unique constraint: This value must be unique but already exists
//	        Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key: Referenced record does not exist
//	        SQLSTATE 23503, patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection: Unable to connect to database
//	        *pool.ConnectionError, patterns: "connection refused"
//	DB005 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset"
//	DB006 - Timeout: Operation timed out or was cancelled by the server
//	        SQLSTATE 57014, patterns: "timeout"
//	DB007 - Deadlock: Database was busy with conflicting operations
//	        SQLSTATE 40P01, patterns: "deadlock"
//	DB008 - Table not found: The table does not exist
//	        SQLSTATE 42P01
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid input: Statement could not be built from the input
//	         fragment.ValidationError (a value type)
//	VAL002 - Invalid value: A value does not match the column type
//	         SQLSTATE 22P02, 22003
//	VAL003 - Required field: A NOT NULL column received no value
//	         SQLSTATE 23502
//	VAL004 - Invalid date: A date or time value is malformed
//	         SQLSTATE 22007, 22008
//	VAL005 - Column not found: A column in the statement does not exist
//	         SQLSTATE 42703
//	VAL006 - Row width: A CSV row does not match the header
//	         Patterns: "columns, header has"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File not found: The file does not exist
//	          fs.ErrNotExist
//	FILE002 - Invalid CSV: File is not a valid CSV
//	          Patterns: "parse csv"
//	FILE003 - Compression: The gzip stream is corrupt
//	          Patterns: "gzip"
//	FILE005 - Empty file: The file has no header row
//	          Patterns: "empty file"
//	FILE006 - Export failed: The export stream failed
//	          *StreamError not caused by a database error
//
// # Pool Errors (POOL001-POOL099)
//
//	POOL001 - Teardown: The old pool did not drain in time
//	          *pool.PoolTeardownError
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: check the logs for the original error
//
// Typed errors are matched first, then SQLSTATE codes, then patterns.
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins.

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/sqlpipe/internal/fragment"
	"github.com/JonMunkholm/sqlpipe/internal/pool"
)

// UserMessage provides readable error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgDuplicateKey = UserMessage{
		Message: "A record with this key already exists",
		Action:  "Remove duplicates or import with ignore mode",
		Code:    "DB001",
	}
	msgUnique = UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check for duplicate entries in your data",
		Code:    "DB002",
	}
	msgForeignKey = UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Load parent tables first",
		Code:    "DB003",
	}
	msgConnection = UserMessage{
		Message: "Unable to connect to database",
		Action:  "Check DATABASE_URL and that the server is reachable",
		Code:    "DB004",
	}
	msgConnReset = UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}
	msgTimeout = UserMessage{
		Message: "Operation timed out",
		Action:  "Use smaller batches or try again later",
		Code:    "DB006",
	}
	msgDeadlock = UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}
	msgTableNotFound = UserMessage{
		Message: "Table not found",
		Action:  "Verify the table name is correct",
		Code:    "DB008",
	}
	msgBuilder = UserMessage{
		Message: "Statement could not be built from the input",
		Action:  "Check that rows and fields were supplied",
		Code:    "VAL001",
	}
	msgInvalidValue = UserMessage{
		Message: "A value does not match the column type",
		Action:  "Check numeric and boolean columns for stray text",
		Code:    "VAL002",
	}
	msgNotNull = UserMessage{
		Message: "Required field is empty",
		Action:  "Ensure all required columns have values",
		Code:    "VAL003",
	}
	msgInvalidDate = UserMessage{
		Message: "Invalid date format detected",
		Action:  "Use YYYY-MM-DD or an ISO 8601 timestamp",
		Code:    "VAL004",
	}
	msgColumnNotFound = UserMessage{
		Message: "Column not found",
		Action:  "Verify the header matches the table columns",
		Code:    "VAL005",
	}
	msgFileNotFound = UserMessage{
		Message: "File not found",
		Action:  "Check the file path",
		Code:    "FILE001",
	}
	msgExport = UserMessage{
		Message: "Export failed while writing the file",
		Action:  "Check disk space and permissions",
		Code:    "FILE006",
	}
	msgTeardown = UserMessage{
		Message: "Connection pool could not be replaced",
		Action:  "Wait for running queries to finish and retry",
		Code:    "POOL001",
	}
)

// sqlStateMessages maps PostgreSQL SQLSTATE codes to messages.
var sqlStateMessages = map[string]UserMessage{
	"23505": msgDuplicateKey,
	"23503": msgForeignKey,
	"23502": msgNotNull,
	"40P01": msgDeadlock,
	"57014": msgTimeout,
	"42P01": msgTableNotFound,
	"42703": msgColumnNotFound,
	"22P02": msgInvalidValue,
	"22003": msgInvalidValue,
	"22007": msgInvalidDate,
	"22008": msgInvalidDate,
}

// errorPattern defines a pattern to match and its corresponding message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps error text (case-insensitive) to messages. Order
// matters: specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{pattern: "duplicate key", msg: msgDuplicateKey},
	{pattern: "unique constraint", msg: msgUnique},
	{pattern: "violates unique", msg: msgUnique},
	{pattern: "foreign key constraint", msg: msgForeignKey},
	{pattern: "violates foreign key", msg: msgForeignKey},
	{pattern: "connection refused", msg: msgConnection},
	{pattern: "connection reset", msg: msgConnReset},
	{pattern: "timeout", msg: msgTimeout},
	{pattern: "deadlock", msg: msgDeadlock},
	{
		pattern: "columns, header has",
		msg: UserMessage{
			Message: "A row has a different number of columns than the header",
			Action:  "Fix the ragged row or re-export the file",
			Code:    "VAL006",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with consistent quoting",
			Code:    "FILE002",
		},
	},
	{
		pattern: "gzip",
		msg: UserMessage{
			Message: "Compressed file is corrupt",
			Action:  "Re-create the .gz file",
			Code:    "FILE003",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file is empty",
			Action:  "Provide a CSV file with a header row",
			Code:    "FILE005",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a readable message with a support code.
//
// Example:
//
//	_, err := svc.QueryInsertObject(ctx, "users", rec, fragment.InsertPlain)
//	msg := MapError(err)
//	// msg.Code == "DB001" for a duplicate primary key
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := sqlStateMessages[pgErr.Code]; ok {
			return msg
		}
	}

	var (
		connErr     *pool.ConnectionError
		teardownErr *pool.PoolTeardownError
		validErr    fragment.ValidationError
		streamErr   *StreamError
		queryErr    *QueryError
	)
	switch {
	case errors.As(err, &teardownErr):
		return msgTeardown
	case errors.As(err, &connErr):
		return msgConnection
	case errors.As(err, &validErr):
		if strings.Contains(validErr.Message, "header has") {
			return matchPattern(validErr.Error())
		}
		return msgBuilder
	case errors.Is(err, fs.ErrNotExist):
		return msgFileNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	case errors.As(err, &streamErr) && !errors.As(err, &queryErr):
		return msgExport
	}

	return matchPattern(err.Error())
}

func matchPattern(s string) UserMessage {
	s = strings.ToLower(s)
	for _, ep := range errorPatterns {
		if strings.Contains(s, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
