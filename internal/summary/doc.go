// Package summary turns a call transcript into a Call Summary Record: who
// called, from which company, a callback number, a short free-text summary,
// topics and extracted details. A regular-expression extractor always works;
// an optional Gemini extractor produces richer records and falls back to it.
package summary
