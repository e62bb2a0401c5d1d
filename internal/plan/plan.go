// Package plan reads and validates the deployment planning sheet.
//
// The spreadsheet itself is exported to YAML before a run; this package only
// deals with that export.
package plan

// Plan is the subset of the planning sheet the pipeline reads.
type Plan struct {
	// SourceFile is the path the plan was parsed from.
	SourceFile string `yaml:"-" json:"source_file,omitempty"`

	Cluster    Cluster     `yaml:"cluster" json:"cluster"`
	Hosts      []Host      `yaml:"hosts" json:"hosts"`
	Networks   []Network   `yaml:"networks" json:"networks"`
	CloudTower *CloudTower `yaml:"cloudtower,omitempty" json:"cloudtower,omitempty"`
	Apps       []App       `yaml:"apps,omitempty" json:"apps,omitempty"`
}

type Cluster struct {
	Name string `yaml:"name" json:"name"`
	VIP  string `yaml:"vip,omitempty" json:"vip,omitempty"`
}

type Host struct {
	Hostname  string `yaml:"hostname" json:"hostname"`
	MgmtIP    string `yaml:"mgmt_ip" json:"mgmt_ip"`
	StorageIP string `yaml:"storage_ip,omitempty" json:"storage_ip,omitempty"`
	BMCIP     string `yaml:"bmc_ip,omitempty" json:"bmc_ip,omitempty"`
}

// Network is one row of the virtual network table.
type Network struct {
	Name     string `yaml:"name" json:"name"`
	Role     string `yaml:"role,omitempty" json:"role,omitempty"` // default, extra_mgmt, storage
	VSwitch  string `yaml:"vswitch,omitempty" json:"vswitch,omitempty"`
	Subnet   string `yaml:"subnet,omitempty" json:"subnet,omitempty"`
	BondMode string `yaml:"bond_mode,omitempty" json:"bond_mode,omitempty"`
	VLAN     int    `yaml:"vlan_id,omitempty" json:"vlan_id,omitempty"`
	Gateway  string `yaml:"gateway,omitempty" json:"gateway,omitempty"`
}

type CloudTower struct {
	IP           string   `yaml:"ip" json:"ip"`
	RootPassword string   `yaml:"root_password,omitempty" json:"-"`
	Serial       string   `yaml:"serial,omitempty" json:"serial,omitempty"`
	Organization string   `yaml:"organization,omitempty" json:"organization,omitempty"`
	Datacenter   string   `yaml:"datacenter,omitempty" json:"datacenter,omitempty"`
	NTPServers   []string `yaml:"ntp_servers,omitempty" json:"ntp_servers,omitempty"`
	DNSServers   []string `yaml:"dns_servers,omitempty" json:"dns_servers,omitempty"`
}

// App is a management add-on (observability, backup, ER, SFS, SKS).
type App struct {
	Kind    string   `yaml:"kind" json:"kind"`
	IP      string   `yaml:"ip,omitempty" json:"ip,omitempty"`
	NodeIPs []string `yaml:"node_ips,omitempty" json:"node_ips,omitempty"`
	Serial  string   `yaml:"serial,omitempty" json:"serial,omitempty"`
}

// App returns the add-on of the given kind.
func (p *Plan) App(kind string) (App, bool) {
	for _, a := range p.Apps {
		if a.Kind == kind {
			return a, true
		}
	}
	return App{}, false
}

// ManagementAddresses lists the host management addresses in plan order.
func (p *Plan) ManagementAddresses() []string {
	out := make([]string, 0, len(p.Hosts))
	for _, h := range p.Hosts {
		if h.MgmtIP != "" {
			out = append(out, h.MgmtIP)
		}
	}
	return out
}

// ComponentAddresses lists CloudTower and add-on addresses, deduplicated,
// in plan order.
func (p *Plan) ComponentAddresses() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(ip string) {
		if ip != "" && !seen[ip] {
			seen[ip] = true
			out = append(out, ip)
		}
	}
	if p.CloudTower != nil {
		add(p.CloudTower.IP)
	}
	for _, a := range p.Apps {
		add(a.IP)
		for _, n := range a.NodeIPs {
			add(n)
		}
	}
	return out
}
