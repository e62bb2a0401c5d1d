package plan

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

// Report is the outcome of Validate.
type Report struct {
	OK       bool     `json:"ok"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

var allowedBondModes = map[string]bool{
	"active-backup": true,
	"balance-tcp":   true,
	"balance-slb":   true,
}

// Validate checks p for missing fields, malformed or duplicate addresses and
// subnet mismatches. In strict mode any warning makes the report fail.
func Validate(p *Plan, strict bool) Report {
	v := &validator{}
	if p == nil {
		v.errorf("plan is empty")
		return v.report(strict)
	}

	if len(p.Hosts) == 0 {
		v.errorf("host table is empty")
	}
	if p.Cluster.Name == "" {
		v.warnf("cluster name is missing")
	}

	var prefixes []netip.Prefix
	for _, n := range p.Networks {
		if n.BondMode != "" && !allowedBondModes[n.BondMode] {
			v.errorf("network %s: invalid bond mode %q", n.Name, n.BondMode)
		}
		if n.Subnet == "" {
			v.warnf("network %s: no subnet", n.Name)
			continue
		}
		pfx, err := netip.ParsePrefix(n.Subnet)
		if err != nil {
			v.errorf("network %s: invalid subnet %q", n.Name, n.Subnet)
			continue
		}
		pfx = pfx.Masked()
		for _, other := range prefixes {
			if other.Overlaps(pfx) {
				v.warnf("subnet %s overlaps %s", pfx, other)
			}
		}
		prefixes = append(prefixes, pfx)
	}

	if p.CloudTower == nil {
		v.warnf("cloudtower section is missing")
	} else if p.CloudTower.RootPassword == "" {
		v.errorf("cloudtower root password is missing")
	}

	seen := make(map[string]int)
	for _, h := range p.Hosts {
		if h.MgmtIP == "" {
			v.errorf("host %s: management address is missing", h.Hostname)
			continue
		}
		seen[h.MgmtIP]++
		for label, ip := range map[string]string{"management": h.MgmtIP, "storage": h.StorageIP, "bmc": h.BMCIP} {
			if ip != "" && !validAddr(ip) {
				v.errorf("host %s: invalid %s address %q", h.Hostname, label, ip)
			}
		}
	}
	if dups := duplicates(seen); len(dups) > 0 {
		v.errorf("duplicate management addresses: %s", strings.Join(dups, ", "))
	}
	if vip := p.Cluster.VIP; vip != "" {
		if !validAddr(vip) {
			v.errorf("invalid cluster VIP %q", vip)
		} else if seen[vip] > 0 {
			v.errorf("cluster VIP %s conflicts with a management address", vip)
		}
	}

	v.checkComponents(p.ComponentAddresses(), prefixes)
	return v.report(strict)
}

func (v *validator) checkComponents(ips []string, prefixes []netip.Prefix) {
	for _, ip := range ips {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			v.errorf("invalid component address %q", ip)
			continue
		}
		if len(prefixes) == 0 {
			continue
		}
		inside := false
		for _, pfx := range prefixes {
			if pfx.Contains(addr) {
				inside = true
				break
			}
		}
		if !inside {
			v.errorf("component address %s is outside every declared subnet", ip)
		}
	}
}

type validator struct {
	warnings []string
	errors   []string
}

func (v *validator) warnf(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) errorf(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) report(strict bool) Report {
	r := Report{
		Warnings: append([]string{}, v.warnings...),
		Errors:   append([]string{}, v.errors...),
	}
	r.OK = len(r.Errors) == 0 && (!strict || len(r.Warnings) == 0)
	return r
}

func validAddr(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

func duplicates(counts map[string]int) []string {
	var out []string
	for ip, n := range counts {
		if n > 1 {
			out = append(out, ip)
		}
	}
	sort.Strings(out)
	return out
}
