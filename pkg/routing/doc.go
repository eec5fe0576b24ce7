// Package routing classifies a request into an execution strategy.
//
// A Policy is an ordered list of rules; the first rule that applies decides. The default
// keyword policy checks, in order:
//
//	write     any write keyword             -> identity_write_then_sync
//	fresh     any fresh-data keyword        -> fresh_identity_data
//	analysis  any analysis keyword          -> sync_then_analyze when the graph copy is
//	                                           stale, graph_analysis_only otherwise
//
// Requests no rule claims fall back to coordinated_multi. Keyword sets can be loaded
// from YAML and hot reloaded by a Watcher.
package routing
