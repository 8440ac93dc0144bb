// Package tu drives the parse of one translation unit and isolates parser
// faults.
//
// A Unit moves through Created, Parsed and any number of Reparsed states
// until it is disposed. Every parse runs under RunSafely so a panicking
// frontend is reported as a *CrashError instead of taking the worker down.
// When a reparse crashes the previous AST is kept and the caller keeps
// serving the last good index.
//
// Setting CCINDEX_CRASH_RECOVERY=0 runs the frontend inline, which makes
// parser faults easier to debug.
package tu
