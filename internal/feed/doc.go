/*
Package feed handles playlist source documents.

A playlist source is an RSS document using the podcast namespace. The parts
this service cares about are the channel title, canonical link, artwork, and
the ordered sequence of remote item references — (feedGuid, itemGuid) pairs
pointing at tracks hosted in other feeds. References may appear directly at
the channel level (the ungrouped bucket) or inside <item> elements, which act
as episode markers grouping the references that follow their title.

The package also re-merges resolution outcomes with the parsed document,
rebuilding the curator's episode ordering independent of the order in which
individual references resolved.
*/
package feed
