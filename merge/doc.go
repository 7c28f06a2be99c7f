// Package merge reconciles the polled notification snapshot with the live push
// stream into one deduplicated, newest-first view.
//
// The package includes:
//
//   - Decoder: Turns raw broker frames and REST items into types.Notification,
//     normalizing field-name variants, timestamps and identity keys
//   - Merger: Owns the snapshot set and the capped push ring, and recomputes the
//     merged view on every change
//   - Merge: The pure merge function (sticky-read overlay + stable sort)
//
// Merge rules:
//
//   - Exactly one entry per identity key
//   - Later-seen fields overlay earlier ones (snapshot first, then pushes in arrival order)
//   - READ is sticky: an entry is unread only if no contributing record marks it read
//   - Sorted by CreatedAt descending; entries without a usable timestamp sort last
package merge
