// Package mocks provides test doubles for the LLM client and the rehosting
// engine.
package mocks
