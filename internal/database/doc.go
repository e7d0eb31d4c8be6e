/*
Package database is the durable store for the playlist resolver: the
persisted track index (tier 1 of resolution), the playlist registry, and the
playlist snapshots that let a fully resolved playlist be served without
re-running the pipeline.

Snapshots are replaced wholesale, never patched: a refresh writes the new
item rows under a fresh snapshot id and repoints the playlist's active
pointer inside the same transaction, so concurrent readers always see either
the old complete snapshot or the new complete one. Writes to a given
playlist's snapshot are additionally serialized with a per-playlist lock.
*/
package database
