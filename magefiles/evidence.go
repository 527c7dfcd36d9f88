//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Query builds the CLI and runs the evidence pipeline for a hypothesis.
func Query(hypothesis string) error {
	mg.Deps(Build)
	return sh.RunV(binPath, "query", hypothesis)
}

// Index groups the hybrid-search targets.
type Index mg.Namespace

// Load embeds a corpus file into the configured index.
func (Index) Load(corpus string) error {
	mg.Deps(Build)
	return sh.RunV(binPath, "index", "load", corpus)
}

// Search runs a hybrid search over the configured index.
func (Index) Search(query string) error {
	mg.Deps(Build)
	return sh.RunV(binPath, "index", "search", query)
}

// History groups the saved-result targets.
type History mg.Namespace

// List prints saved result sets, newest first.
func (History) List() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "history", "list")
}

// Export writes every saved result set to history/export.yaml.
func (History) Export() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "history", "export", "--format", "yaml", "--output", "history/export.yaml")
}
