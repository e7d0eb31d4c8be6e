// Package handlers implements the HTTP API of the playlist resolver.
//
// The playlist endpoints cover registration, listing, and deletion; the
// playlist detail endpoint runs the full resolution pipeline (or serves the
// stored snapshot) and returns the ordered, playable track list.
package handlers
