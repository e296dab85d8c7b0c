// Package stores holds the Redis persistence for recovery codes. Records are
// stored as versioned binary blobs so the layout can evolve without breaking
// in-flight recoveries, and consumption runs under an optimistic WATCH
// transaction so two racing submissions cannot both succeed on one code.
package stores
