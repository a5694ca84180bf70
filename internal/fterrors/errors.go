// Package fterrors defines the daemon's error kinds as sentinel
// values. They let the IPC Endpoint map an error to the right Ack/Error
// response without string-matching messages, in keeping with the
// teacher's otherwise flat, message-based error style.
package fterrors

import "errors"

var (
	// ErrAdapterInit means the Hardware Adapter could not bring up
	// hardware access. Fatal: the service exits.
	ErrAdapterInit = errors.New("adapter initialization failed")

	// ErrAdapterIo means a transient sensor/fan I/O error occurred.
	// Non-fatal: counted as a failure, the loop continues.
	ErrAdapterIo = errors.New("adapter i/o error")

	// ErrCapabilityDenied means an attempt was made to control a
	// fan that is not FullControl.
	ErrCapabilityDenied = errors.New("fan does not support full control")

	// ErrConfigInvalid means a save was requested with an invalid
	// configuration.
	ErrConfigInvalid = errors.New("configuration is invalid")

	// ErrConfigCorrupt means the on-disk configuration store was
	// unreadable.
	ErrConfigCorrupt = errors.New("configuration store is corrupt")

	// ErrDefaultProtected means an attempt was made to delete the
	// default profile.
	ErrDefaultProtected = errors.New("the default profile cannot be deleted")

	// ErrNotFound means a fan or profile id could not be resolved.
	ErrNotFound = errors.New("not found")

	// ErrFrameInvalid means a malformed or oversized IPC frame was
	// received; the connection is closed.
	ErrFrameInvalid = errors.New("invalid ipc frame")
)
