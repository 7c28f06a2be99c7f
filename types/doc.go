// Package types provides core type definitions and interfaces for the notisync library.
//
// This package contains shared types that are used across multiple packages in the
// notisync library. By keeping these types in a separate package, we avoid import cycles
// between the main notisync package and its internal implementations.
//
// Key types:
//   - Notification: Canonical notification record shared by both intake paths
//   - ReadStatus: Canonical read-state flag
//   - ConnState: Transport connection lifecycle state
//   - NotificationAPI / CredentialProvider: External collaborators
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
