// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package inventory reads the list of power modules known on the bus.
//
// The inventory is a YAML file:
//
//	modules:
//	  - id: 1
//	    address: 2
//	    generation: 12
//	    firmware_version: "3.1.4"
package inventory

import (
	"fmt"
	"os"
	"sort"

	"github.com/ghodss/yaml"

	"github.com/Thermoquad/busboot/pkg/api"
)

// Module is one power module on the bus.
type Module struct {
	ID              int            `json:"id"`
	Name            string         `json:"name,omitempty"`
	Address         uint32         `json:"address"`
	Generation      api.Generation `json:"generation"`
	FirmwareVersion string         `json:"firmware_version,omitempty"`
}

// Inventory is a validated, id-ordered module list.
type Inventory struct {
	modules   []Module
	byAddress map[uint32]int
}

type document struct {
	Modules []Module `json:"modules"`
}

// Load reads and validates the inventory file at path.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	inv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inv, nil
}

// Parse decodes and validates inventory YAML.
func Parse(data []byte) (*Inventory, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid inventory: %w", err)
	}
	return New(doc.Modules)
}

// New validates modules and builds an Inventory. Addresses and ids must be
// unique and every generation must be 8 or 12.
func New(modules []Module) (*Inventory, error) {
	inv := &Inventory{
		modules:   make([]Module, len(modules)),
		byAddress: make(map[uint32]int, len(modules)),
	}
	copy(inv.modules, modules)
	sort.SliceStable(inv.modules, func(i, j int) bool { return inv.modules[i].ID < inv.modules[j].ID })

	ids := make(map[int]struct{}, len(modules))
	for i, m := range inv.modules {
		if m.Generation != api.EightPort && m.Generation != api.TwelvePort {
			return nil, fmt.Errorf("module %d: generation must be 8 or 12, got %d", m.ID, int(m.Generation))
		}
		if m.Address > 0xFF {
			return nil, fmt.Errorf("module %d: address %d does not fit the power bus", m.ID, m.Address)
		}
		if _, dup := ids[m.ID]; dup {
			return nil, fmt.Errorf("duplicate module id %d", m.ID)
		}
		if _, dup := inv.byAddress[m.Address]; dup {
			return nil, fmt.Errorf("duplicate module address %d", m.Address)
		}
		ids[m.ID] = struct{}{}
		inv.byAddress[m.Address] = i
	}

	return inv, nil
}

// All returns the modules ordered by id.
func (inv *Inventory) All() []Module {
	out := make([]Module, len(inv.modules))
	copy(out, inv.modules)
	return out
}

// ByAddress looks up a module by bus address.
func (inv *Inventory) ByAddress(address uint32) (Module, bool) {
	i, ok := inv.byAddress[address]
	if !ok {
		return Module{}, false
	}
	return inv.modules[i], true
}

// Marshal encodes the inventory as YAML.
func (inv *Inventory) Marshal() ([]byte, error) {
	return yaml.Marshal(document{Modules: inv.modules})
}
