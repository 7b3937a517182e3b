// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret stores credential material in memory that is locked
// against swapping, excluded from core dumps, and zeroed on release.
//
// A Buffer is backed by an anonymous mmap region outside the Go heap:
// the garbage collector never sees it and cannot copy or relocate it,
// so closing the buffer is the end of the secret's life in this
// process. Plaintext copies should exist only transiently, at the
// boundaries where a credential leaves the proxy (a child process
// environment, an outbound Authorization header).
package secret

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer holds one secret value. It must not be copied after creation.
// Access after Close panics.
type Buffer struct {
	mu     sync.Mutex
	region []byte
	closed bool
}

// FromString copies value into a new protected buffer. The source
// string cannot be zeroed (Go strings are immutable); callers should
// drop their reference promptly so the heap copy can be collected.
func FromString(value string) (*Buffer, error) {
	if value == "" {
		return nil, fmt.Errorf("secret: empty value")
	}

	region, err := unix.Mmap(-1, 0, len(value), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(region)
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}

	copy(region, value)
	return &Buffer{region: region}, nil
}

// String returns a heap copy of the secret. Use only at an injection
// boundary that requires a string; the copy is outside the buffer's
// control.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return string(b.region)
}

// Len returns the secret's size in bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	return len(b.region)
}

// WriteTo writes the secret directly from the protected region,
// without an intermediate heap copy.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	n, err := w.Write(b.region)
	return int64(n), err
}

// Close zeroes the region, then unlocks and unmaps it. Idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for i := range b.region {
		b.region[i] = 0
	}

	var firstErr error
	if err := unix.Munlock(b.region); err != nil {
		firstErr = fmt.Errorf("secret: munlock: %w", err)
	}
	if err := unix.Munmap(b.region); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("secret: munmap: %w", err)
	}
	b.region = nil
	return firstErr
}

// Zero overwrites a byte slice in place. Use on transient plaintext
// (request buffers, temp copies) once the protected copy exists.
func Zero(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
