// Package chat ingests live chat for watched rooms and fans classified
// messages out to subscribers.
//
// A Scheduler owns one ticker and, each second, polls every room whose
// adaptive interval has elapsed. Poll results are deduplicated against a
// per-room high-water mark, classified in batches, and published through the
// Hub to all SSE subscribers of the room. Rooms are created on first
// subscribe and torn down when the last subscriber leaves, when quota errors
// become terminal, or when credentials cannot be refreshed.
package chat
