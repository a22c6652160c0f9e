// Package directory resolves the business a call belongs to. A client
// configuration carries the company name, greeting, voice and the FAQ and
// knowledge snippets that become the AI session's system instructions.
package directory
