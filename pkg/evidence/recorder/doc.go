// Package recorder writes turn records asynchronously.
//
// Record never blocks the resolve path: when the buffer is full the record
// is dropped and reported to the Observer as "dropped". Close drains the
// buffer before returning.
package recorder
