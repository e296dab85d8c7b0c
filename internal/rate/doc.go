// Package rate implements a fixed-window request limiter on Redis counters.
// Each logical key gets one counter per window, keyed by the window start, so
// counters survive process restarts and are shared by every instance using
// the same Redis.
//
// Rejected attempts still increment the counter. Lifting a limit mid-window
// by hammering it is therefore impossible; the only ways out are the window
// boundary or an explicit Reset after a successful completion.
package rate
