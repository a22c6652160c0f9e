// Package conversation implements the per-call turn-taking state machine.
//
// A call starts in greeting and moves between speaking, listening and
// processing as the AI and the caller take turns. Only transitions in the
// fixed table are accepted. Entering speaking or processing arms a
// frame-counted liveness timeout on the scheduler, and while listening the
// machine watches per-second windows of frames for prolonged silence.
package conversation
