// Package cargo wraps the external cargo toolchain invocations the analysis
// depends on: workspace metadata, macro expansion and local registry
// lookups.
package cargo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
)

// Sentinel errors for toolchain invocations.
var (
	ErrMetadata    = errors.New("cargo: metadata invocation failed")
	ErrExpansion   = errors.New("cargo: macro expansion failed")
	ErrNoLibName   = errors.New("cargo: no lib name in registry manifest")
	ErrNoCargoHome = errors.New("cargo: registry directory not found")
)

// Target is one build target of a package.
type Target struct {
	Kind    []string `json:"kind"`
	Name    string   `json:"name"`
	SrcPath string   `json:"src_path"`
}

// Package is one package in the metadata graph.
type Package struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	ManifestPath string   `json:"manifest_path"`
	Targets      []Target `json:"targets"`
}

// NodeDep is one resolved dependency edge: Name is the identifier the crate
// is imported under, Pkg the providing package's id.
type NodeDep struct {
	Name string `json:"name"`
	Pkg  string `json:"pkg"`
}

// Node is one package's resolved dependency set.
type Node struct {
	ID   string    `json:"id"`
	Deps []NodeDep `json:"deps"`
}

// Resolve is the lock-derived resolution graph.
type Resolve struct {
	Nodes []Node `json:"nodes"`
}

// Metadata is the decoded output of cargo metadata.
type Metadata struct {
	Packages         []Package `json:"packages"`
	WorkspaceMembers []string  `json:"workspace_members"`
	WorkspaceRoot    string    `json:"workspace_root"`
	Resolve          *Resolve  `json:"resolve"`
}

// LoadMetadata runs cargo metadata for the project at dir and decodes the
// workspace graph.
func LoadMetadata(ctx context.Context, dir string) (*Metadata, error) {
	cmd := exec.CommandContext(ctx, "cargo", "metadata", "--format-version", "1", "--all-features")
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMetadata, bytes.TrimSpace(stderr.Bytes()), err)
	}

	var meta Metadata

	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return nil, fmt.Errorf("cargo: decode metadata: %w", err)
	}

	return &meta, nil
}

// WorkspacePackages returns the member packages, in metadata order.
func (m *Metadata) WorkspacePackages() []Package {
	members := make(map[string]bool, len(m.WorkspaceMembers))
	for _, id := range m.WorkspaceMembers {
		members[id] = true
	}

	var pkgs []Package

	for _, p := range m.Packages {
		if members[p.ID] {
			pkgs = append(pkgs, p)
		}
	}

	return pkgs
}

// ImportToPackage maps each resolved import identifier onto the name of the
// package providing it, across every workspace member's dependency set.
// This translates source-level roots back to manifest dependency names when
// a crate's library name differs from its package name.
func (m *Metadata) ImportToPackage() map[string]string {
	if m.Resolve == nil {
		return nil
	}

	idToName := make(map[string]string, len(m.Packages))
	for _, p := range m.Packages {
		idToName[p.ID] = p.Name
	}

	members := make(map[string]bool, len(m.WorkspaceMembers))
	for _, id := range m.WorkspaceMembers {
		members[id] = true
	}

	out := make(map[string]string)

	for _, node := range m.Resolve.Nodes {
		if !members[node.ID] {
			continue
		}

		for _, dep := range node.Deps {
			if name, ok := idToName[dep.Pkg]; ok {
				out[dep.Name] = name
			}
		}
	}

	return out
}
