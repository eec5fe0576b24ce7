// Package orchestrator runs one chat request end to end.
//
// Handle picks a strategy, offers the model the tools that fit it, runs the model, and
// executes the function calls the model asks for against the identity and graph
// backends. It feeds the results back to the model for a bounded number of extra hops
// and aggregates the tool data into the response. Identity writes schedule a
// background sync of the graph copy.
//
// Requests of one session are serialized on a command queue lane. Handle never returns
// an error: every failure is a Response with Success=false.
package orchestrator
