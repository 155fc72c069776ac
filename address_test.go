package iptrace_test

import (
	"context"
	"errors"
	"net/netip"
	"reflect"
	"testing"

	"github.com/Travis-Britz/iptrace"
)

func TestExtractAddresses(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  string
	}{
		{"single", []string{"Current IP Address: 203.0.113.7"}, "203.0.113.7"},
		{"duplicates", []string{"foo 10.0.0.5 bar 10.0.0.5 baz"}, "10.0.0.5"},
		{"across texts", []string{"5.6.7.8", "1.2.3.4", "5.6.7.8"}, "1.2.3.4,5.6.7.8"},
		{"no match", []string{"nothing", ""}, ""},
		{"no texts", nil, ""},
		// lexical only: octets are not range checked
		{"out of range", []string{"999.300.0.1"}, "999.300.0.1"},
		{"version string", []string{"build 1.2.3.4.5"}, "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := iptrace.ExtractAddresses(tt.texts...); got != tt.want {
				t.Fatalf("Expected %q; got %q", tt.want, got)
			}
		})
	}
}

func TestPublishableAddrs(t *testing.T) {
	got := iptrace.PublishableAddrs("1.2.3.4,999.1.1.1,5.6.7.8")
	want := []netip.Addr{netip.MustParseAddr("1.2.3.4"), netip.MustParseAddr("5.6.7.8")}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("Expected %v; got %v", want, got)
	}
	if got := iptrace.PublishableAddrs(""); len(got) != 0 {
		t.Fatalf("Expected no addresses; got %v", got)
	}
}

func TestFromString(t *testing.T) {
	r, err := iptrace.FromString("5.6.7.8,1.2.3.4")
	if err != nil {
		t.Fatalf("FromString failed: %s", err)
	}
	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %s", err)
	}
	if expected := "1.2.3.4,5.6.7.8"; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
	if _, err := iptrace.FromString("not an ip"); err == nil {
		t.Fatalf("Expected an error; got err == nil")
	}
	if _, err := iptrace.FromString("1.2.3.4,bogus"); err == nil {
		t.Fatalf("Expected an error for the second entry; got err == nil")
	}
}

func TestFromStringIPv6(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"2001:db8::1", "2001:db8::1"},
		{"2001:0db8:0000::0001", "2001:db8::1"},
		{" 2001:db8::1 , 1.2.3.4 ", "1.2.3.4,2001:db8::1"},
		{"", ""},
	}
	for _, tt := range tests {
		r, err := iptrace.FromString(tt.in)
		if err != nil {
			t.Fatalf("FromString(%q) failed: %s", tt.in, err)
		}
		got, _ := r.Resolve(context.Background())
		if got != tt.expected {
			t.Errorf("FromString(%q): expected %q; got %q", tt.in, tt.expected, got)
		}
	}
	r, _ := iptrace.FromString("2001:db8::1")
	got, _ := r.Resolve(context.Background())
	if addrs := iptrace.PublishableAddrs(got); len(addrs) != 1 || !addrs[0].Is6() {
		t.Fatalf("Expected one publishable IPv6 address; got %v", addrs)
	}
}

func TestJoin(t *testing.T) {
	a, _ := iptrace.FromString("5.6.7.8")
	b, _ := iptrace.FromString("1.2.3.4,5.6.7.8")
	got, err := iptrace.Join(a, b).Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %s", err)
	}
	if expected := "1.2.3.4,5.6.7.8"; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}

	boom := errors.New("boom")
	failing := iptrace.ResolverFunc(func(context.Context) (string, error) { return "", boom })
	if _, err := iptrace.Join(a, failing).Resolve(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Expected the resolver error; got %v", err)
	}
}
