// Package calllog persists finished calls. LogSink writes entries to the
// structured log; PostgresSink stores them in a call_logs table whose schema
// is managed by embedded goose migrations.
package calllog
