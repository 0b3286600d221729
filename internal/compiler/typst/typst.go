// Package typst drives the typst command line compiler as an external
// compile service. Sources are mirrored into a private workspace directory
// and every page is compiled to SVG.
package typst

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go-live-ide/internal/compiler"
)

const outDirName = ".out"

// Engine is a compiler.Engine backed by the typst binary.
type Engine struct {
	mu        sync.Mutex
	bin       string
	root      string
	ownsRoot  bool
	fontPaths []string
	sources   map[string]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkDir mirrors sources into dir instead of a temporary directory.
func WithWorkDir(dir string) Option {
	return func(e *Engine) {
		e.root = dir
	}
}

// WithFontPaths adds directories passed to typst as --font-path.
func WithFontPaths(paths ...string) Option {
	return func(e *Engine) {
		e.fontPaths = append(e.fontPaths, paths...)
	}
}

// NewEngine returns an uninitialized engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{sources: make(map[string]string)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init locates the binary named by locator, checks that it runs, runs the
// prelude steps and prepares the workspace.
func (e *Engine) Init(ctx context.Context, locator string, prelude []compiler.PreludeStep) error {
	bin, err := exec.LookPath(locator)
	if err != nil {
		return fmt.Errorf("locate typst compiler %q: %w", locator, err)
	}
	if _, stderr, err := run(ctx, bin, "--version"); err != nil {
		return fmt.Errorf("load typst compiler: %w: %s", err, strings.TrimSpace(stderr))
	}
	for i, step := range prelude {
		if err := step(ctx); err != nil {
			return fmt.Errorf("typst prelude step %d: %w", i, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.root == "" {
		dir, err := os.MkdirTemp("", "go-live-ide-typst-*")
		if err != nil {
			return fmt.Errorf("create typst workspace: %w", err)
		}
		e.root = dir
		e.ownsRoot = true
	} else if err := os.MkdirAll(e.root, 0o755); err != nil {
		return fmt.Errorf("create typst workspace: %w", err)
	}
	e.bin = bin
	return nil
}

// VersionCheck returns a prelude step that fails unless `typst --version`
// mentions want.
func VersionCheck(locator, want string) compiler.PreludeStep {
	return func(ctx context.Context) error {
		out, _, err := run(ctx, locator, "--version")
		if err != nil {
			return err
		}
		if !strings.Contains(out, want) {
			return fmt.Errorf("typst version %q does not match %q", strings.TrimSpace(out), want)
		}
		return nil
	}
}

// cleanPath maps a virtual path onto a slash path rooted at "/".
func cleanPath(p string) (string, error) {
	clean := path.Clean("/" + strings.TrimPrefix(p, "/"))
	if clean == "/" || strings.HasPrefix(clean, "/"+outDirName) {
		return "", fmt.Errorf("invalid source path %q", p)
	}
	return clean, nil
}

// AddSource writes content to the workspace at the virtual path p.
func (e *Engine) AddSource(p, content string) error {
	clean, err := cleanPath(p)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.root == "" {
		return errors.New("typst engine not initialized")
	}
	if prev, ok := e.sources[clean]; ok && prev == content {
		return nil
	}
	full := filepath.Join(e.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("add source %s: %w", clean, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("add source %s: %w", clean, err)
	}
	e.sources[clean] = content
	return nil
}

// Compile compiles the entry path. A compile that typst rejects returns a
// Result with no artifact and typst's diagnostics; the error return is
// reserved for failures to run the compiler at all.
func (e *Engine) Compile(ctx context.Context, opts compiler.CompileOptions) (compiler.Result, error) {
	entry, err := cleanPath(opts.EntryPath)
	if err != nil {
		return compiler.Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bin == "" {
		return compiler.Result{}, errors.New("typst engine not initialized")
	}

	outDir := filepath.Join(e.root, outDirName)
	if err := os.RemoveAll(outDir); err != nil {
		return compiler.Result{}, fmt.Errorf("clear typst output: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return compiler.Result{}, fmt.Errorf("create typst output: %w", err)
	}

	args := []string{"compile", "--root", e.root}
	for _, fp := range e.fontPaths {
		args = append(args, "--font-path", fp)
	}
	args = append(args,
		filepath.Join(e.root, filepath.FromSlash(entry)),
		filepath.Join(outDir, "page-{0p}.svg"),
	)

	_, stderr, err := run(ctx, e.bin, args...)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return compiler.Result{Diagnostics: e.relativize(stderr)}, nil
	}
	if err != nil {
		return compiler.Result{}, fmt.Errorf("run typst: %w", err)
	}

	pages, err := readPages(outDir)
	if err != nil {
		return compiler.Result{}, err
	}
	if len(pages) == 0 {
		return compiler.Result{Diagnostics: "typst produced no pages"}, nil
	}
	return compiler.Result{
		Artifact:    &compiler.Artifact{Pages: pages},
		Diagnostics: e.relativize(stderr),
	}, nil
}

// relativize strips the workspace directory from diagnostics so messages
// name virtual paths.
func (e *Engine) relativize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, e.root, ""))
}

func readPages(dir string) ([][]byte, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "page-*.svg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	pages := make([][]byte, 0, len(matches))
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("read typst page: %w", err)
		}
		pages = append(pages, b)
	}
	return pages, nil
}

// Close removes the workspace if the engine created it.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ownsRoot && e.root != "" {
		err := os.RemoveAll(e.root)
		e.root = ""
		e.bin = ""
		e.ownsRoot = false
		e.sources = make(map[string]string)
		return err
	}
	return nil
}

func run(ctx context.Context, bin string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

var xmlProlog = regexp.MustCompile(`^\s*<\?xml[^>]*\?>\s*`)

// Renderer is a compiler.VectorRenderer that stacks SVG pages.
type Renderer struct {
	mu    sync.Mutex
	ready bool
}

// NewRenderer returns an uninitialized renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Init readies the renderer. typst already emits SVG, so there is nothing
// to load.
func (r *Renderer) Init(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.ready = true
	r.mu.Unlock()
	return nil
}

// RenderToVector returns one markup fragment holding every page.
func (r *Renderer) RenderToVector(ctx context.Context, opts compiler.RenderOptions) (string, error) {
	r.mu.Lock()
	ready := r.ready
	r.mu.Unlock()
	if !ready {
		return "", errors.New("typst renderer not initialized")
	}
	if opts.Artifact.Empty() {
		return "", errors.New("nothing to render")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(`<div class="typeset-pages">`)
	for _, page := range opts.Artifact.Pages {
		b.WriteString(`<div class="typeset-page">`)
		b.Write(xmlProlog.ReplaceAll(page, nil))
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)
	return b.String(), nil
}
