// Package scheduler provides timeouts measured in inbound media frames
// rather than wall-clock time. Each telephony frame for a call advances that
// call's counters; a coarse wall-clock sweep force-fires timeouts that have
// been pending past an absolute ceiling, in case frames stop arriving.
package scheduler
