package main

import (
	"context"
	"fmt"

	"dagger/relay/internal/dagger"
)

const golangciLintVersion = "v2.8.0"

// lintOpts returns the common GolangcilintOpts used by both CheckLint and FixLint.
// It layers golangci-lint on top of goContainer() so the Go caches are already
// in place.
func (r *Relay) lintOpts() dagger.GolangcilintOpts {
	base := r.goContainer().
		WithExec([]string{
			"go",
			"install",
			fmt.Sprintf("github.com/golangci/golangci-lint/v2/cmd/golangci-lint@%s", golangciLintVersion),
		})

	return dagger.GolangcilintOpts{
		BaseCtr: base,
		Config:  r.Source.File(".golangci.yml"),
	}
}

// CheckLint runs golangci-lint against the relay source code without applying fixes.
func (r *Relay) CheckLint(ctx context.Context) (string, error) {
	return dag.Golangcilint(r.Source, r.lintOpts()).Check(ctx)
}

// FixLint runs golangci-lint against the relay source code with --fix, applying
// automatic fixes where possible, and returns the modified source directory.
func (r *Relay) FixLint(ctx context.Context) *dagger.Directory {
	return dag.Golangcilint(r.Source, r.lintOpts()).Lint()
}
