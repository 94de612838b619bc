// Package singleinstance keeps one desktop editor per user session. The
// first editor listens on a loopback port; later launches hand their
// image path to it and exit.
package singleinstance

import (
	"context"
)

// Server owns the TCP endpoint and answers delegated requests.
type Server interface {
	// Start binds the first port of the configured range.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection, or the ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close stops accepting clients.
	Close() error
}

// Conn is one delegated request awaiting an answer.
type Conn interface {
	Request() Request
	RespondSuccess() error
	// RespondError sends a human-readable failure.
	RespondError(msg string) error
	Close() error
}

// Request asks the resident editor to open Path, or just to raise its
// window when Path is empty.
type Request struct {
	Path string
}

// Client delegates to a resident editor.
type Client interface {
	// TryOpen scans the port range and forwards req. If no resident
	// answers, it returns delegated=false, err=nil.
	TryOpen(ctx context.Context, req Request) (delegated bool, err error)
}

// NewServer returns the TCP implementation.
func NewServer() Server { return newTcpServer() }

// NewClient returns the TCP implementation.
func NewClient() Client { return newTcpClient() }
