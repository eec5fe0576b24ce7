// Package backend provides HTTP clients for the Identity and Graph tool services.
//
// Both services speak the same wire format:
//
//	GET  /health        200 when ready
//	GET  /tools         {"tools": [name | {name, description, inputSchema}]}
//	POST /tools/{name}  {"arguments": {...}} -> {"success", "data", "error"}
//
// Every call runs through the backend's resilience guard. A response with
// success=false is a tool failure, not a dependency failure, and never trips the breaker.
package backend
