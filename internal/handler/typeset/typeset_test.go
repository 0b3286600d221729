package typeset

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/lexers"

	"go-live-ide/internal/compiler"
	"go-live-ide/internal/handler"
	"go-live-ide/internal/project"
	"go-live-ide/internal/viewer"
)

type fakeEngine struct {
	mu       sync.Mutex
	inits    atomic.Int32
	initErr  error
	gate     chan struct{}
	sources  map[string]string
	result   compiler.Result
	compErr  error
	compiled []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		sources: make(map[string]string),
		result: compiler.Result{
			Artifact: &compiler.Artifact{Pages: [][]byte{[]byte("<svg/>")}},
		},
	}
}

func (e *fakeEngine) Init(ctx context.Context, _ string, prelude []compiler.PreludeStep) error {
	e.inits.Add(1)
	if e.gate != nil {
		<-e.gate
	}
	for _, step := range prelude {
		if err := step(ctx); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}

func (e *fakeEngine) AddSource(p, content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[p] = content
	return nil
}

func (e *fakeEngine) Compile(_ context.Context, opts compiler.CompileOptions) (compiler.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = append(e.compiled, opts.EntryPath)
	return e.result, e.compErr
}

type fakeRenderer struct {
	inits atomic.Int32
}

func (r *fakeRenderer) Init(context.Context, string) error {
	r.inits.Add(1)
	return nil
}

func (r *fakeRenderer) RenderToVector(_ context.Context, opts compiler.RenderOptions) (string, error) {
	return "<div>" + string(opts.Artifact.Pages[0]) + "</div>", nil
}

type fakeOutput struct {
	mu       sync.Mutex
	current  *handler.Artifact
	failures []string
}

func (o *fakeOutput) Current() (handler.Artifact, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return handler.Artifact{}, false
	}
	return *o.current, true
}

func (o *fakeOutput) Replace(a handler.Artifact) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = &a
}

func (o *fakeOutput) Fail(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = nil
	o.failures = append(o.failures, msg)
}

type fakeDiagnostics struct {
	mu    sync.Mutex
	texts []string
}

func (d *fakeDiagnostics) SetText(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, s)
}

func (d *fakeDiagnostics) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.texts) == 0 {
		return ""
	}
	return d.texts[len(d.texts)-1]
}

func request(out *fakeOutput, diag *fakeDiagnostics, v *viewer.State, preserve bool) handler.RenderRequest {
	return handler.RenderRequest{
		FileID:      "1",
		FileName:    "doc/main.typ",
		Output:      out,
		Diagnostics: diag,
		Files: []project.File{
			{ID: "1", Name: "doc/main.typ", Content: "= Hi"},
			{ID: "2", Name: "data.csv", Content: "a,b"},
		},
		PreserveZoom: preserve,
		Viewer:       v,
	}
}

func TestRenderSuccess(t *testing.T) {
	eng := newFakeEngine()
	h := New(eng, &fakeRenderer{}, Config{Locator: "typst"}, nil)
	out, diag := &fakeOutput{}, &fakeDiagnostics{}

	if err := h.Render(context.Background(), request(out, diag, viewer.New(0), false)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	a, ok := out.Current()
	if !ok || a.Markup != "<div><svg/></div>" {
		t.Fatalf("artifact = %+v, %v", a, ok)
	}
	if a.View.Zoom != viewer.DefaultZoom || a.View.Align != viewer.AlignLeft {
		t.Errorf("view = %+v", a.View)
	}
	if diag.last() != MsgSuccess {
		t.Errorf("diagnostics = %q", diag.last())
	}
	if eng.sources["/doc/main.typ"] != "= Hi" || eng.sources["/data.csv"] != "a,b" {
		t.Errorf("sources = %v", eng.sources)
	}
	if len(eng.compiled) != 1 || eng.compiled[0] != "/doc/main.typ" {
		t.Errorf("compiled = %v", eng.compiled)
	}
	if s, _ := h.State(); s != Ready {
		t.Errorf("state = %v", s)
	}
}

func TestConcurrentRendersShareOneLoad(t *testing.T) {
	eng := newFakeEngine()
	eng.gate = make(chan struct{})
	rend := &fakeRenderer{}
	h := New(eng, rend, Config{Locator: "typst"}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, diag := &fakeOutput{}, &fakeDiagnostics{}
			if err := h.Render(context.Background(), request(out, diag, viewer.New(0), false)); err != nil {
				t.Errorf("Render: %v", err)
			}
			if _, ok := out.Current(); !ok {
				t.Error("render produced no artifact")
			}
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for eng.inits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(eng.gate)
	wg.Wait()

	if n := eng.inits.Load(); n != 1 {
		t.Errorf("engine Init called %d times", n)
	}
	if n := rend.inits.Load(); n != 1 {
		t.Errorf("renderer Init called %d times", n)
	}
}

func TestFailedLoadIsRetried(t *testing.T) {
	eng := newFakeEngine()
	eng.initErr = errors.New("no binary")
	h := New(eng, &fakeRenderer{}, Config{Locator: "typst"}, nil)
	out, diag := &fakeOutput{}, &fakeDiagnostics{}

	if err := h.Render(context.Background(), request(out, diag, nil, false)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(diag.last(), "Failed to load the typst compiler:") || !strings.Contains(diag.last(), "no binary") {
		t.Errorf("diagnostics = %q", diag.last())
	}
	if s, err := h.State(); s != Failed || err == nil {
		t.Errorf("state = %v, %v", s, err)
	}

	eng.mu.Lock()
	eng.initErr = nil
	eng.mu.Unlock()
	if err := h.Render(context.Background(), request(out, diag, nil, false)); err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Current(); !ok {
		t.Fatal("retry produced no artifact")
	}
	if n := eng.inits.Load(); n != 2 {
		t.Errorf("Init calls = %d, want 2", n)
	}
}

func TestPreludeRunsDuringLoad(t *testing.T) {
	eng := newFakeEngine()
	var ran atomic.Bool
	h := New(eng, &fakeRenderer{}, Config{
		Locator: "typst",
		Prelude: []compiler.PreludeStep{func(context.Context) error { ran.Store(true); return nil }},
	}, nil)
	if err := h.EnsureInitialized(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !ran.Load() {
		t.Error("prelude step did not run")
	}
}

func TestPreserveZoom(t *testing.T) {
	h := New(newFakeEngine(), &fakeRenderer{}, Config{Locator: "typst"}, nil)
	out, diag := &fakeOutput{}, &fakeDiagnostics{}
	v := viewer.New(0)

	if err := h.Render(context.Background(), request(out, diag, v, false)); err != nil {
		t.Fatal(err)
	}
	v.Set(0.8)

	if err := h.Render(context.Background(), request(out, diag, v, true)); err != nil {
		t.Fatal(err)
	}
	a, _ := out.Current()
	if a.View.Zoom != 0.8 {
		t.Errorf("preserved zoom = %v, want 0.8", a.View.Zoom)
	}

	if err := h.Render(context.Background(), request(out, diag, v, false)); err != nil {
		t.Fatal(err)
	}
	a, _ = out.Current()
	if a.View.Zoom != viewer.DefaultZoom {
		t.Errorf("fresh zoom = %v, want %v", a.View.Zoom, viewer.DefaultZoom)
	}
}

func TestPreserveZoomWithoutArtifactUsesDefault(t *testing.T) {
	h := New(newFakeEngine(), &fakeRenderer{}, Config{Locator: "typst", DefaultZoom: 2}, nil)
	v := viewer.New(2)
	v.Set(0.5)
	out, diag := &fakeOutput{}, &fakeDiagnostics{}
	if err := h.Render(context.Background(), request(out, diag, v, true)); err != nil {
		t.Fatal(err)
	}
	a, _ := out.Current()
	if a.View.Zoom != 2 {
		t.Errorf("zoom = %v, want 2", a.View.Zoom)
	}
}

func TestRenderOnlyReadsViewer(t *testing.T) {
	h := New(newFakeEngine(), &fakeRenderer{}, Config{Locator: "typst"}, nil)
	v := viewer.New(0)
	v.Set(0.8)
	out, diag := &fakeOutput{}, &fakeDiagnostics{}

	if err := h.Render(context.Background(), request(out, diag, v, false)); err != nil {
		t.Fatal(err)
	}
	a, _ := out.Current()
	if a.View.Zoom != viewer.DefaultZoom {
		t.Errorf("artifact zoom = %v, want %v", a.View.Zoom, viewer.DefaultZoom)
	}
	if z := v.Zoom(); z != 0.8 {
		t.Errorf("viewer zoom = %v, want 0.8 until the output commits the view", z)
	}
}

func TestCompileFailureReported(t *testing.T) {
	eng := newFakeEngine()
	eng.result = compiler.Result{Diagnostics: "error: unknown variable: foo"}
	h := New(eng, &fakeRenderer{}, Config{Locator: "typst"}, nil)
	out, diag := &fakeOutput{}, &fakeDiagnostics{}
	out.Replace(handler.Artifact{Markup: "old"})

	if err := h.Render(context.Background(), request(out, diag, nil, true)); err != nil {
		t.Fatal(err)
	}
	if len(out.failures) != 1 || !strings.Contains(out.failures[0], "See diagnostics") {
		t.Errorf("failures = %v", out.failures)
	}
	if diag.last() != "error: unknown variable: foo" {
		t.Errorf("diagnostics = %q", diag.last())
	}
	if diag.texts[0] != MsgCompiling {
		t.Errorf("first diagnostics = %q", diag.texts[0])
	}
}

func TestCompileErrorReported(t *testing.T) {
	eng := newFakeEngine()
	eng.compErr = errors.New("exec failed")
	h := New(eng, &fakeRenderer{}, Config{Locator: "typst"}, nil)
	out, diag := &fakeOutput{}, &fakeDiagnostics{}
	if err := h.Render(context.Background(), request(out, diag, nil, false)); err != nil {
		t.Fatal(err)
	}
	if len(out.failures) != 1 || !strings.Contains(out.failures[0], "exec failed") {
		t.Errorf("failures = %v", out.failures)
	}
}

func TestCanceledRender(t *testing.T) {
	eng := newFakeEngine()
	eng.gate = make(chan struct{})
	defer close(eng.gate)
	h := New(eng, &fakeRenderer{}, Config{Locator: "typst"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.Render(ctx, request(&fakeOutput{}, &fakeDiagnostics{}, nil, false))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestDescriptors(t *testing.T) {
	h := New(newFakeEngine(), &fakeRenderer{}, Config{}, nil)
	if !h.CanHandle("paper.TYP") || h.CanHandle("paper.md") {
		t.Error("CanHandle mismatch")
	}
	if h.GeneratePreview("a.typ", "anything").Category != handler.CategoryCustomRender {
		t.Error("typst previews must be custom rendered")
	}
	if !h.Capabilities().CustomRender {
		t.Error("missing CustomRender capability")
	}
	ui := h.CreatePreviewUI(viewer.New(0))
	if ui.OutputID != "typeset-output" || len(ui.Controls) != 4 {
		t.Errorf("ui = %+v", ui)
	}
	if SourcePath("a/../b.typ") != "/b.typ" {
		t.Errorf("SourcePath = %q", SourcePath("a/../b.typ"))
	}
}

func TestEditorModeRegistersLexer(t *testing.T) {
	h := New(newFakeEngine(), &fakeRenderer{}, Config{}, nil)
	if err := h.InitializeEditorMode(); err != nil {
		t.Fatal(err)
	}
	if err := h.InitializeEditorMode(); err != nil {
		t.Fatal(err)
	}
	l := lexers.Get(LexerName)
	if l == nil || l.Config().Name != LexerName {
		t.Fatalf("lexer not registered: %v", l)
	}

	it, err := Lexer.Tokenise(nil, "= Title\n#let x = 12pt // note\n$a + b$")
	if err != nil {
		t.Fatal(err)
	}
	seen := map[chroma.TokenType]string{}
	for _, tok := range it.Tokens() {
		seen[tok.Type] += tok.Value
	}
	if !strings.Contains(seen[chroma.GenericHeading], "= Title") {
		t.Errorf("heading tokens = %q", seen[chroma.GenericHeading])
	}
	if !strings.Contains(seen[chroma.Keyword], "#let") {
		t.Errorf("keyword tokens = %q", seen[chroma.Keyword])
	}
	if !strings.Contains(seen[chroma.LiteralNumber], "12pt") {
		t.Errorf("number tokens = %q", seen[chroma.LiteralNumber])
	}
	if !strings.Contains(seen[chroma.CommentSingle], "// note") {
		t.Errorf("comment tokens = %q", seen[chroma.CommentSingle])
	}
	if !strings.Contains(seen[chroma.LiteralStringOther], "a + b") {
		t.Errorf("math tokens = %q", seen[chroma.LiteralStringOther])
	}
}
