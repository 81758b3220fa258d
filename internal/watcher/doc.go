// Package watcher re-digests a fixed set of resources on a cron schedule.
//
// Each cycle fetches every resource with settled semantics through a
// bounded fetcher, compares the new MD5 with the expected digest or the
// previous cycle's digest, and writes one [store.DigestRecord] per resource.
// Cycles never overlap; a tick that fires while a cycle is still running is
// skipped.
package watcher
