// Package routing resolves a channel + routing key (dialed number, API key)
// to a tenant. The table is loaded once at startup and read-only after.
package routing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Resolver maps inbound routing keys to tenants.
type Resolver interface {
	Resolve(channel, routingKey string) (tenant string, ok bool)
}

type tableEntry struct {
	Channel string `yaml:"channel"`
	Key     string `yaml:"key"`
	Tenant  string `yaml:"tenant"`
}

// Table is a static resolver backed by a YAML file.
type Table struct {
	entries       map[string]string
	defaultTenant string
}

// LoadTable reads the routing table. An empty path yields a table that only
// resolves through the default tenant (single-tenant deployments).
func LoadTable(path, defaultTenant string) (*Table, error) {
	t := &Table{entries: map[string]string{}, defaultTenant: defaultTenant}
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routing table: %w", err)
	}
	var entries []tableEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("routing table: %w", err)
	}
	for _, e := range entries {
		t.entries[e.Channel+"/"+e.Key] = e.Tenant
	}
	return t, nil
}

func (t *Table) Resolve(channel, routingKey string) (string, bool) {
	if tenant, ok := t.entries[channel+"/"+routingKey]; ok {
		return tenant, true
	}
	if t.defaultTenant != "" {
		return t.defaultTenant, true
	}
	return "", false
}
