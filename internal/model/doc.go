// Package model defines the shared domain types for the playlist resolver:
// remote item references, resolved tracks, resolution outcomes, and episode
// groupings. It has no dependencies on other internal packages so that the
// extractor, resolver, cache, and store can all share one vocabulary.
package model
