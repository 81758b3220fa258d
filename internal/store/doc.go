// Package store keeps the latest digest record per resource and publishes
// updates to subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [DigestRecord]: The outcome of digesting one resource in a watch cycle
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the watcher).
package store
