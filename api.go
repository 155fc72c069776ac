package iptrace

import (
	"context"
	"net/netip"
)

// Resolver produces the normalized address string for the current host.
type Resolver interface {
	Resolve(context.Context) (string, error)
}

// History is the append-only address log kept for each host.
type History interface {
	// ReadLast returns the final record of host's log.
	// ok is false when the log does not exist or holds no records.
	ReadLast(ctx context.Context, host string) (rec Record, ok bool, err error)
	Append(ctx context.Context, host string, rec Record) error
}

// Index caches the tail of each host's log.
type Index interface {
	Get(ctx context.Context, host string) (entry IndexEntry, ok bool, err error)
	Put(ctx context.Context, host string, entry IndexEntry) error
}

type Provider interface {
	SetDNSRecords(ctx context.Context, domain string, records []netip.Addr) error
}
