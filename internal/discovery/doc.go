/*
Package discovery is the client for the external podcast index service, the
only component permitted to make network calls during resolution's final
tier. It answers two questions: which feed does a feedGuid belong to, and
which items does that feed contain.

Requests are authenticated with the index's time-based signature: the api key
and unix timestamp travel as headers and the Authorization header carries
sha1hex(key + secret + timestamp). Failures are classified per call so the
resolver can record per-item outcomes instead of aborting a batch.
*/
package discovery
