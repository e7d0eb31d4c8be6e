/*
Package resolver implements tiered resolution of remote item references.

A resolution pass checks the cheapest sources first: one batch query against
the persisted track index, then the ephemeral cache, and only then the
external discovery service. The external tier is orchestrated in chunks with
a concurrency cap, a minimum inter-call delay, and capped exponential backoff
on rate limits, and it performs at most one feed lookup per distinct feedGuid
per pass no matter how many references share the feed.

Item-level failures never abort a pass: every input key gets exactly one
outcome, resolved or unresolved with a reason. A caller deadline turns the
not-yet-resolved remainder into timeout outcomes rather than an error.
*/
package resolver
