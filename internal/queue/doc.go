// Package queue stores batch jobs as plain files in a single directory.
//
// Every entry whose name is a decimal integer is one job descriptor: two
// text lines holding the submitter's working directory and the command
// line. Entries whose names begin with the reserved "." marker are control
// files (the submission lock, the daemon lock, the quarantine directory,
// in-flight temporary writes) and are never treated as jobs. The file's
// owner is the job's owner; nothing else about identity is stored.
//
// Ordering comes solely from Scan: the oldest job is the smallest ID
// present and the next ID to hand out is the largest plus one. Callers that
// allocate IDs must hold the submission lock while they Scan and Write.
package queue
