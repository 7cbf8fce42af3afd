// Package core is the data-access layer: it runs statements against the
// pooled database and moves bulk data between tables and CSV files.
//
// All operations hang off a [Service] built from a [pool.Manager]. They take
// a context.Context, which also carries optional settings:
//
//   - [WithConn] pins an already-acquired connection. Statements issued with
//     that context run on it in issue order, so a caller can wrap several
//     operations in BEGIN/COMMIT on one connection.
//   - [WithDebug] logs the resolved statement text before running it.
//   - [WithLogMessage] replaces the message [Service.QuerySilent] logs on
//     failure.
//
// # Query Contract
//
// [Service.Query] is the only method that executes a statement and reads
// its result. The narrowing variants delegate to it:
//
//   - [Service.QueryJSON]: rows as JSON-safe maps
//   - [Service.QueryRow]: first row or nil
//   - [Service.QueryValue]: first column of first row or nil
//   - [Service.QueryMessage]: the command tag, e.g. "UPDATE 3"
//   - [Service.QuerySilent]: logs failures and returns nil instead
//
// # Bulk Pipelines
//
// [Service.ExportToFile] streams a result set into a CSV file through a small
// bounded buffer, so a slow disk holds back the database read.
// [Service.ImportFromFile] reads a whole CSV file, splits it into batches
// that each repeat the header, and inserts the batches one after another.
// [Service.LoadFile] streams a file through COPY FROM STDIN instead.
//
// None of the multi-statement operations are transactional. A failed
// import leaves earlier batches in place and a failed [Service.CopyTable]
// can leave the target table empty or missing.
//
// # Error Handling
//
// Failures are returned as typed errors: [pool.ConnectionError],
// [QueryError], [fragment.ValidationError], [pool.PoolTeardownError] and
// [StreamError]. All are pointers except [fragment.ValidationError], which
// is a value. [MapError] turns any of them into a [UserMessage] with a
// support code:
//
//   - DB001-DB008: Database errors (constraints, connections, cancellation)
//   - VAL001-VAL006: Input errors (builder validation, bad values)
//   - FILE001-FILE006: File errors (missing, empty, invalid CSV, export stream)
//   - POOL001: Pool recreation failed
//   - ERR000: Unknown errors
package core
