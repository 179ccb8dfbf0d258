// Package events defines the typed event contract published on the bus.
//
// Event kinds are grouped by producer-facing namespaces:
//
//   - correction.*: side-path language feedback
//   - turn.*: turn lifecycle boundaries
//   - world.*: game world state changes
//
// Semantics used across the package:
//
//   - Detected: a side-path result that listeners may surface to the client;
//     never consumed by the primary response path.
//   - Completed/Failed/Cancelled: terminal turn states, published exactly once
//     per turn after the primary path finalizes.
//   - Changed: a point-in-time state patch was applied to the context store.
package events
