package acl

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/interax-protocol/interax-go/pkg/model"
)

// policyFile is the YAML shape of a policy document.
type policyFile struct {
	Entries []policyEntry `yaml:"entries"`
}

// policyEntry is one grant in a policy document. Omitted scope fields
// match any value at that level.
type policyEntry struct {
	Subject    string   `yaml:"subject"`
	Endpoint   *uint16  `yaml:"endpoint,omitempty"`
	Cluster    *uint16  `yaml:"cluster,omitempty"`
	Member     *uint16  `yaml:"member,omitempty"`
	Operations []string `yaml:"operations"`
	TTLSeconds int      `yaml:"ttl_seconds,omitempty"`
}

// ParsePolicy parses a YAML policy document into entries.
func ParsePolicy(data []byte) ([]Entry, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	entries := make([]Entry, 0, len(file.Entries))
	for i, pe := range file.Entries {
		if pe.Subject == "" {
			return nil, fmt.Errorf("%w: entry %d has no subject", ErrInvalidPolicy, i)
		}
		if len(pe.Operations) == 0 {
			return nil, fmt.Errorf("%w: entry %d grants no operations", ErrInvalidPolicy, i)
		}

		entry := Entry{
			Subject:    pe.Subject,
			TTLSeconds: pe.TTLSeconds,
		}
		if pe.Endpoint != nil {
			id := model.EndpointID(*pe.Endpoint)
			entry.Scope.Endpoint = &id
		}
		if pe.Cluster != nil {
			id := model.ClusterID(*pe.Cluster)
			entry.Scope.Cluster = &id
		}
		if pe.Member != nil {
			member := *pe.Member
			entry.Scope.Member = &member
		}
		for _, name := range pe.Operations {
			op, err := parseOp(name)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			entry.Ops = append(entry.Ops, op)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// LoadPolicy loads a YAML policy file.
func LoadPolicy(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}
