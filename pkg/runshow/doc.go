// Package runshow is the scheduling engine for a live event's run-of-show.
//
// An Event holds an ordered list of Timers; each Timer holds ordered
// Actions (media cues) that fire at a signed minute offset from the timer:
// positive offsets count from the start, zero and negative offsets from
// the end. TimerManager and ActionManager are the only writers of
// lifecycle state. They commit through a Store first and then publish a
// notification through a Notifier; a lost notification only delays
// viewers until their next re-fetch.
//
// All instants are naive.Instant values so that every viewer computes the
// same offset from now.
package runshow
