package riscvdis

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config mirrors the disassembler's YAML configuration file: which ELF
// sections hold executable code to be disassembled into the instruction
// map.
type Config struct {
	Disassemble struct {
		Sections []string `yaml:"sections"`
	} `yaml:"disassemble"`
}

// LoadConfig reads and parses a disassembler configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("riscvdis: reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("riscvdis: parsing config %s: %w", path, err)
	}
	if len(cfg.Disassemble.Sections) == 0 {
		return nil, fmt.Errorf("riscvdis: config %s lists no sections to disassemble", path)
	}
	return &cfg, nil
}
