// Package async runs background work with panic recovery, timeouts and
// structured error logging.
package async
