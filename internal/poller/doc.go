// Package poller drives the periodic due-timer checks for each tracked event.
//
// A single goroutine owns a min-heap of pending checks ordered by trigger
// time. It sleeps until the earliest entry is due (never longer than
// maxSleepCap, so wall-clock jumps are noticed), runs the checks for every
// due event and re-queues each one at its next cron tick or after its fixed
// interval. Add and Remove talk to the goroutine over channels; the heap is
// never shared.
package poller
