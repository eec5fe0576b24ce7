// Package toolregistry discovers the tools exposed by the backends and hands the model
// the subset that fits a request's intent.
//
// Tool names are qualified with their backend ("identity_list-users",
// "graph_read_neo4j_cypher"). Discovery results are cached with a TTL, in memory or in
// Redis, and can be invalidated on demand.
package toolregistry
