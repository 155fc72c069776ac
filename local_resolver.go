package iptrace

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that returns the IP addresses reported by the given interfaces.
// If no interfaces are provided then all interfaces will be used, but loopback addresses will be skipped.
// Addresses are normalized the same way as web results, so the two can share a log.
func InterfaceResolver(iface ...string) Resolver {
	if len(iface) == 0 {
		return localResolver{}
	}
	return interfaceResolver{ifaces: iface}
}

type interfaceResolver struct {
	ifaces []string
}

func (r interfaceResolver) Resolve(ctx context.Context) (string, error) {
	var errs []error
	seen := map[string]bool{}
	for _, ifs := range r.ifaces {
		iface, err := net.InterfaceByName(ifs)
		if err != nil {
			errs = append(errs, fmt.Errorf("error getting interface %s by name: %w", ifs, err))
			continue
		}
		a, err := iface.Addrs()
		if err != nil {
			errs = append(errs, fmt.Errorf("error looking up addresses for interface %s: %w", ifs, err))
			continue
		}
		errs = append(errs, collectAddrs(a, seen)...)
	}
	if err := errors.Join(errs...); err != nil {
		return "", err
	}
	return joinAddresses(seen), nil
}

type localResolver struct{}

func (r localResolver) Resolve(ctx context.Context) (string, error) {
	adds, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("error getting addresses for interface: %w", err)
	}
	seen := map[string]bool{}
	if err := errors.Join(collectAddrs(adds, seen)...); err != nil {
		return "", err
	}
	return joinAddresses(seen), nil
}

// addr: ip+net:192.168.86.253/24
// addr: ip+net:fd64:9f44:fc30:0:b951:8b16:2812:a227/64
func collectAddrs(addrs []net.Addr, seen map[string]bool) (errs []error) {
	for _, addr := range addrs {
		ip, err := netip.ParsePrefix(addr.String())
		if err != nil {
			errs = append(errs, fmt.Errorf("error parsing local ip %s: %w", addr.String(), err))
			continue
		}
		if ip.Addr().IsLoopback() {
			continue
		}
		seen[ip.Addr().String()] = true
	}
	return errs
}
