package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProvisionedTenant is one entry in the optional tenants.yaml file.
// Tenants listed there get a session bootstrapped at startup even before
// any HTTP request arrives for them.
type ProvisionedTenant struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
}

type provisionFile struct {
	Tenants []ProvisionedTenant `yaml:"tenants"`
}

// LoadTenants reads the tenant provisioning file from the data directory.
// A missing file is not an error since provisioning is optional.
func LoadTenants(dataPath string) ([]ProvisionedTenant, error) {
	path := filepath.Join(dataPath, "tenants.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var pf provisionFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var tenants []ProvisionedTenant
	for _, t := range pf.Tenants {
		if t.ID == "" {
			continue
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}
