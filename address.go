package iptrace

import (
	"errors"
	"net/netip"
	"regexp"
	"sort"
	"strings"
)

// AddressSeparator joins multiple matches into one address string.
const AddressSeparator = ","

var ErrInvalidAddress = errors.New("address must not contain whitespace")

// dottedQuad is a lexical match only; octet values are not checked.
var dottedQuad = regexp.MustCompile(`[0-9]+(?:\.[0-9]+){3}`)

// ExtractAddresses finds every dotted-quad substring in texts
// and returns the distinct matches sorted and joined with AddressSeparator.
// The result is the same for the same set of matches regardless of the order of texts.
// It returns "" when nothing matches.
func ExtractAddresses(texts ...string) string {
	seen := map[string]bool{}
	for _, t := range texts {
		for _, m := range dottedQuad.FindAllString(t, -1) {
			seen[m] = true
		}
	}
	return joinAddresses(seen)
}

func joinAddresses(set map[string]bool) string {
	addrs := make([]string, 0, len(set))
	for a := range set {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	return strings.Join(addrs, AddressSeparator)
}

// PublishableAddrs returns the entries of a joined address string that parse as IP addresses.
// Matches like 999.1.2.3 are dropped.
func PublishableAddrs(addr string) []netip.Addr {
	var addrs []netip.Addr
	for _, s := range strings.Split(addr, AddressSeparator) {
		a, err := netip.ParseAddr(s)
		if err != nil {
			continue
		}
		addrs = append(addrs, a)
	}
	return addrs
}

func validAddress(addr string) error {
	if strings.ContainsAny(addr, " \t\r\n") {
		return ErrInvalidAddress
	}
	return nil
}
