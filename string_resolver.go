package iptrace

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
)

// FromString constructs a resolver that always returns addr.
// addr is a comma separated list, normalized like a web response,
// so "5.6.7.8,1.2.3.4" resolves to "1.2.3.4,5.6.7.8".
// Entries may be IPv4 or IPv6 addresses; IPv6 is written in its canonical form.
// An entry that is not an address is searched for dotted quads,
// and it is an error when it holds none.
func FromString(addr string) (Resolver, error) {
	seen := map[string]bool{}
	for _, entry := range strings.Split(addr, AddressSeparator) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if a, err := netip.ParseAddr(entry); err == nil {
			seen[a.String()] = true
			continue
		}
		found := ExtractAddresses(entry)
		if found == "" {
			return nil, fmt.Errorf("%q is not an IP address", entry)
		}
		for _, a := range strings.Split(found, AddressSeparator) {
			seen[a] = true
		}
	}
	return stringResolver(joinAddresses(seen)), nil
}

type stringResolver string

func (s stringResolver) Resolve(context.Context) (string, error) {
	return string(s), nil
}

// ResolverFunc adapts an ordinary function to a Resolver.
type ResolverFunc func(context.Context) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context) (string, error) {
	return f(ctx)
}

// Join returns a resolver that runs each resolver in turn and merges their addresses.
// Any error aborts the lookup.
func Join(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context) (string, error) {
		seen := map[string]bool{}
		for i, r := range resolvers {
			addr, err := r.Resolve(ctx)
			if err != nil {
				return "", fmt.Errorf("resolver %d: %w", i, err)
			}
			if addr == "" {
				continue
			}
			for _, a := range strings.Split(addr, AddressSeparator) {
				seen[a] = true
			}
		}
		return joinAddresses(seen), nil
	})
}
