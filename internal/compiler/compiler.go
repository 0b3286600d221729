// Package compiler describes the boundary to an external typesetting
// compiler. The compiler is opaque: the IDE only loads it, feeds it
// sources, asks for a compile and asks for vector output.
package compiler

import "context"

// PreludeStep runs once while the compile engine initializes, for example
// to check the engine version or register font directories.
type PreludeStep func(ctx context.Context) error

// Artifact is an opaque compiled document.
type Artifact struct {
	Pages [][]byte
}

// Empty reports whether the artifact carries no output.
func (a *Artifact) Empty() bool {
	return a == nil || len(a.Pages) == 0
}

// CompileOptions selects the entry point of a compile.
type CompileOptions struct {
	EntryPath string
}

// Result is the outcome of a compile. A nil Artifact means the compile
// failed and Diagnostics explains why.
type Result struct {
	Artifact    *Artifact
	Diagnostics string
}

// RenderOptions selects what to render.
type RenderOptions struct {
	Artifact *Artifact
}

// Engine compiles a virtual source set.
type Engine interface {
	Init(ctx context.Context, locator string, prelude []PreludeStep) error
	AddSource(path, content string) error
	Compile(ctx context.Context, opts CompileOptions) (Result, error)
}

// VectorRenderer turns a compiled artifact into serialized vector markup.
type VectorRenderer interface {
	Init(ctx context.Context, locator string) error
	RenderToVector(ctx context.Context, opts RenderOptions) (string, error)
}
