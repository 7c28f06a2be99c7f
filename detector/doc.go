// Package detector decides when a change in unread count is a genuine new arrival.
//
// # State Machine
//
//	UNINITIALIZED --(settle delay after first successful poll)--> ARMED
//
// While UNINITIALIZED every observation only moves the baseline. Once ARMED, an
// alert fires when the push arrival counter and the unread count both increased
// since the previous observation. An unread increase from a poll refresh alone
// never alerts, and neither does a decrease from mark-as-read.
//
// # Alert Side Effects
//
// Each alert carries the badge text, a shake duration and a two-tone ascending
// chime. Shaker owns the transient shaking flag and its auto-clear timer.
//
// Detector is not safe for concurrent use; the engine drives it from its event
// loop. Shaker is safe for concurrent use.
package detector
