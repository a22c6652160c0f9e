// Package synth guarantees the caller always hears something. It generates a
// deterministic fallback tone, validates vendor-synthesized speech before
// playout, keeps a warm-up cache for the synthesis backend and caches
// rendered prompts such as greetings.
package synth
