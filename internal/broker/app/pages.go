package app

import (
	"fmt"
	"os"

	"github.com/gatehouse-id/gatehouse/internal/broker/domain"

	"gopkg.in/yaml.v3"
)

// pagesFile is the on-disk shape of the relying-party registry.
type pagesFile struct {
	Pages []domain.Page `yaml:"pages"`
}

// LoadPages reads and validates the page registry from a YAML file.
func LoadPages(path string) (*domain.PageRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pages file: %w", err)
	}

	var f pagesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse pages file: %w", err)
	}

	reg, err := domain.NewPageRegistry(f.Pages)
	if err != nil {
		return nil, fmt.Errorf("validate pages file: %w", err)
	}

	return reg, nil
}
