package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPlan() *Plan {
	return &Plan{
		Cluster: Cluster{Name: "c1", VIP: "10.0.0.100"},
		Hosts: []Host{
			{Hostname: "n1", MgmtIP: "10.0.0.11"},
			{Hostname: "n2", MgmtIP: "10.0.0.12"},
		},
		Networks: []Network{
			{Name: "mgmt", Subnet: "10.0.0.0/24", BondMode: "active-backup"},
		},
		CloudTower: &CloudTower{IP: "10.0.0.50", RootPassword: "pw"},
	}
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

func TestYAMLParser_ParsesTestdata(t *testing.T) {
	p, raw, err := YAMLParser{}.Parse(filepath.Join("testdata", "deploy-plan.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "hci-prod", p.Cluster.Name)
	require.Len(t, p.Hosts, 3)
	assert.Equal(t, "10.0.0.11", p.Hosts[0].MgmtIP)
	require.NotNil(t, p.CloudTower)
	assert.Equal(t, "changeme", p.CloudTower.RootPassword)
	assert.Equal(t, filepath.Join("testdata", "deploy-plan.yaml"), p.SourceFile)

	obs, ok := p.App("obs")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.51", obs.IP)

	assert.Contains(t, raw, "hosts")
	assert.Contains(t, raw, "cluster")
}

func TestYAMLParser_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hosts: [unterminated"), 0o644))

	_, _, err := YAMLParser{}.Parse(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	_, err := Find(dir)
	assert.True(t, errors.Is(err, ErrPlanNotFound))

	for _, name := range []string{"notes.yaml", "~$plan.yaml", "b-plan.yml", "a-plan.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	got, err := Find(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a-plan.yaml"), got)
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate_TestdataPasses(t *testing.T) {
	p, _, err := YAMLParser{}.Parse(filepath.Join("testdata", "deploy-plan.yaml"))
	require.NoError(t, err)

	r := Validate(p, true)
	assert.True(t, r.OK, "errors=%v warnings=%v", r.Errors, r.Warnings)
	assert.Empty(t, r.Errors)
	assert.Empty(t, r.Warnings)
}

func TestValidate_NilAndEmpty(t *testing.T) {
	r := Validate(nil, false)
	assert.False(t, r.OK)

	r = Validate(&Plan{}, false)
	assert.False(t, r.OK)
	assert.Contains(t, r.Errors, "host table is empty")
}

func TestValidate_DuplicateAndConflictingAddresses(t *testing.T) {
	p := validPlan()
	p.Hosts = append(p.Hosts, Host{Hostname: "n3", MgmtIP: "10.0.0.11"})
	p.Cluster.VIP = "10.0.0.12"

	r := Validate(p, false)
	assert.False(t, r.OK)
	assert.Contains(t, r.Errors, "duplicate management addresses: 10.0.0.11")
	assert.Contains(t, r.Errors, "cluster VIP 10.0.0.12 conflicts with a management address")
}

func TestValidate_InvalidValues(t *testing.T) {
	p := validPlan()
	p.Hosts[0].StorageIP = "not-an-ip"
	p.Networks = append(p.Networks, Network{Name: "bad", Subnet: "10.9.0.0/99", BondMode: "lacp"})

	r := Validate(p, false)
	assert.False(t, r.OK)
	assert.Contains(t, r.Errors, `host n1: invalid storage address "not-an-ip"`)
	assert.Contains(t, r.Errors, `network bad: invalid bond mode "lacp"`)
	assert.Contains(t, r.Errors, `network bad: invalid subnet "10.9.0.0/99"`)
}

func TestValidate_ComponentOutsideSubnets(t *testing.T) {
	p := validPlan()
	p.Apps = []App{{Kind: "obs", IP: "192.168.1.5"}}

	r := Validate(p, false)
	assert.False(t, r.OK)
	assert.Contains(t, r.Errors, "component address 192.168.1.5 is outside every declared subnet")
}

func TestValidate_StrictPromotesWarnings(t *testing.T) {
	p := validPlan()
	p.CloudTower = nil

	lenient := Validate(p, false)
	assert.True(t, lenient.OK)
	assert.Contains(t, lenient.Warnings, "cloudtower section is missing")

	strict := Validate(p, true)
	assert.False(t, strict.OK)
	assert.Empty(t, strict.Errors)
}

func TestValidate_OverlappingSubnetsWarn(t *testing.T) {
	p := validPlan()
	p.Networks = append(p.Networks, Network{Name: "wide", Subnet: "10.0.0.0/16"})

	r := Validate(p, false)
	assert.True(t, r.OK)
	assert.Contains(t, r.Warnings, "subnet 10.0.0.0/16 overlaps 10.0.0.0/24")
}
