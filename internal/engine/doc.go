// Package engine executes decoded operations against the texture table.
//
// Ownership boundary:
// - device lifecycle (uninitialized, initialized, reset requested)
// - dispatch of every operation, including nested batches
// - the last-diagnostic slot read back through GetLastMessage
// - status responses
//
// Malformed or failing operations never stop the engine: they leave a
// diagnostic and change nothing. Only a framebuffer allocation failure
// during Initialize is fatal.
package engine
