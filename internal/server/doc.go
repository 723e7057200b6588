// Package server exposes the watchlist engine as a JSON API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] registers
// method patterns ("GET /regions") on an [http.ServeMux], so a path served under another method
// answers 405 without any handler code.
//
// [Middleware] added through [BasicRouter.Use] wraps each registered handler, the first added
// outermost. [Chain] applies middleware around the router itself, which is where request logging
// and CORS belong.
//
// # Handlers
//
// Custom handlers implement [Handler], which pairs [http.Handler] with the [Route] list it serves.
// [WatchlistAPI] dispatches on the matched pattern:
//
//	GET  /                             status
//	GET  /regions                      regions with availability data
//	GET  /regions/{code}/providers     services operating in a region
//	GET  /users/{username}/providers   saved selection (?region=FR)
//	GET  /users/{username}/films       saved snapshot, filtered (?region=FR&provider=...)
//	POST /results                      full results request
//
// Errors are JSON objects with an "error" field; [StatusFor] maps sentinel errors to status codes.
package server
