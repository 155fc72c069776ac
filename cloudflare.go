package iptrace

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/netip"
	"strings"

	"github.com/cloudflare/cloudflare-go"
)

func newCloudflareProvider(token string) (cf *cloudflareProvider, err error) {
	cf = new(cloudflareProvider)
	cf.api, err = cloudflare.NewWithAPIToken(token)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.logger = discard
	cf.comment = "managed by iptrace"
	return cf, nil
}

// cloudflareProvider implements iptrace.Provider.
type cloudflareProvider struct {
	api     *cloudflare.API
	logger  *log.Logger
	comment string // attached to each new DNS entry
}

func (cf *cloudflareProvider) SetLogger(l *log.Logger) { cf.logger = l }

// SetDNSRecords makes the A and AAAA records of domain match addrs exactly.
func (cf *cloudflareProvider) SetDNSRecords(ctx context.Context, domain string, addrs []netip.Addr) error {
	if cf.api == nil {
		return errors.New("iptrace: cloudflare provider used without newCloudflareProvider")
	}

	zid, err := cf.getZoneIDFromDomain(ctx, domain)
	if err != nil {
		return fmt.Errorf("unable to get zone ID for %s: %w", domain, err)
	}
	cf.logger.Printf("looking up A,AAAA records for %s in zone %s...", domain, zid)

	zone := cloudflare.ZoneIdentifier(zid)
	records, _, err := cf.api.ListDNSRecords(ctx, zone, cloudflare.ListDNSRecordsParams{
		Type: "A,AAAA",
		Name: domain,
	})
	if err != nil {
		return fmt.Errorf("error listing DNS records for %s: %w", domain, err)
	}
	cf.logger.Printf("found %d existing records", len(records))

	stale, missing, err := reconcile(records, addrs)
	if err != nil {
		return err
	}
	for _, r := range stale {
		cf.logger.Printf("deleting DNS record %s for %s...", r.ID, r.Content)
		if err := cf.api.DeleteDNSRecord(ctx, zone, r.ID); err != nil {
			return fmt.Errorf("unable to delete DNS record %s: %w", r.ID, err)
		}
	}
	for _, a := range missing {
		cf.logger.Printf("creating record for %s...", a)
		_, err := cf.api.CreateDNSRecord(ctx, zone, cloudflare.CreateDNSRecordParams{
			Type:    recordType(a),
			Name:    domain,
			Content: a.String(),
			ZoneID:  zid,
			TTL:     60,
			Comment: cf.comment,
		})
		if err != nil {
			return fmt.Errorf("error creating DNS record for %s: %w", a, err)
		}
	}
	return nil
}

// reconcile compares existing records with the wanted addresses.
// stale records hold an address that is no longer wanted; missing addresses have no record yet.
func reconcile(existing []cloudflare.DNSRecord, want []netip.Addr) (stale []cloudflare.DNSRecord, missing []netip.Addr, err error) {
	wanted := map[netip.Addr]bool{}
	for _, a := range want {
		wanted[a] = true
	}
	have := map[netip.Addr]bool{}
	for _, r := range existing {
		a, err := netip.ParseAddr(r.Content)
		if err != nil {
			return nil, nil, fmt.Errorf("error parsing IP from record %s: %w", r.ID, err)
		}
		have[a] = true
		if !wanted[a] {
			stale = append(stale, r)
		}
	}
	for _, a := range want {
		if !have[a] {
			missing = append(missing, a)
			have[a] = true
		}
	}
	return stale, missing, nil
}

func (cf *cloudflareProvider) getZoneIDFromDomain(ctx context.Context, domain string) (zid string, err error) {
	zones, err := cf.api.ListZones(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing zones: %w", err)
	}
	names := make(map[string]string, len(zones))
	for _, z := range zones {
		names[z.Name] = z.ID
	}
	if zid = matchZone(domain, names); zid == "" {
		return "", fmt.Errorf("unable to find a zone matching %q", domain)
	}
	return zid, nil
}

// matchZone returns the ID of the longest zone name that domain falls under.
func matchZone(domain string, zones map[string]string) (zid string) {
	max := 0
	for name, id := range zones {
		if domain != name && !strings.HasSuffix(domain, "."+name) {
			continue
		}
		if len(name) > max {
			max, zid = len(name), id
		}
	}
	return zid
}

func recordType(a netip.Addr) string {
	if a.Is4() {
		return "A"
	}
	return "AAAA"
}
