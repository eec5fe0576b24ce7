// Package datasync keeps the Graph Backend's copy of identity data fresh.
//
// A sync copies every user of a scope (an identity realm) from a Source into a
// GraphStore, replacing what was there, and records a SyncMetadata node with the
// timestamp, record count and source. Freshness is the age of that metadata measured
// against a threshold. Integrity validation compares source and target counts and never
// triggers a resync.
package datasync
