/*
Package sink records benchmark samples into a gzip compressed CSV file.

The file layout follows k6's CSV output: one row per metric sample with the
columns listed in Header. A run produces exactly one file and every request
contributes one batch of rows (http_reqs, http_req_duration, checks, ...).

# Concurrency

Any number of virtual users may call Write concurrently. Batches travel over a
bounded channel to a single writer goroutine, which is the only code touching
the CSV and gzip streams. A full channel blocks the producer.

# Failure

An I/O error in the writer is fatal: Failed is closed, every later Write
returns an error wrapping ErrSinkFailed and Close reports it. Callers are
expected to abort the run, since a partially recorded run cannot be trusted.
*/
package sink
