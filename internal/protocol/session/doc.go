// Package session holds link reliability settings shared by the host client
// and the device loop: dial and I/O timeouts plus retry backoff.
package session
