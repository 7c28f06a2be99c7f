// Package source provides implementations of the notification REST collaborator.
//
// Available sources:
//   - REST: HTTP client for the production notification backend
//   - Static: In-memory list, useful for tests and demos
//
// Both return items undecoded so that polled and pushed notifications pass
// through the same decoder.
package source
