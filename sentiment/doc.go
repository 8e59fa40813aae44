// Package sentiment classifies chat message text into positive/neutral/negative
// labels with a confidence score. Results are cached by exact text so repeated
// messages (emotes, copypasta) never hit the model twice. The underlying model
// is initialized lazily and at most once per process; every failure path
// degrades to a neutral result instead of surfacing an error to callers.
package sentiment
