// Package stream provides the call session registry. Sessions are keyed by the
// telephony stream id, guarded by a single mutex, and retired on removal so a
// stream id is never reused. A background routine closes sessions that stop
// receiving traffic.
package stream
