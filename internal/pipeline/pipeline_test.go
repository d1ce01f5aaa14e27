// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"updraft/internal/registry"
	"updraft/internal/resolver"
	"updraft/internal/validate"
)

// packageBytes builds a minimal valid plugin package: a zip carrying a
// plugin.toml with the host marker, padded above the minimum size.
func packageBytes(t *testing.T, id string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	hdr := &zip.FileHeader{Name: "assets/filler.bin", Method: zip.Store}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(bytes.Repeat([]byte{0xAB}, 2048)); err != nil {
		t.Fatal(err)
	}

	mw, err := zw.Create(validate.ManifestEntry)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(mw, "id = %q\nplatform = %q\n", id, validate.PlatformMarker)

	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testPipeline(t *testing.T, dir string, opts ...PipelineOption) *Pipeline {
	t.Helper()
	quiet := log.New(io.Discard)
	v := validate.New(validate.WithLogger(quiet))
	return New(dir, v, append([]PipelineOption{WithLogger(quiet)}, opts...)...)
}

func demoArtifact() registry.Artifact {
	return registry.Artifact{
		ID:          "demo",
		Repo:        "owner/demo",
		FilePattern: "demo-{version}.zip",
		Enabled:     true,
	}
}

func TestEnqueueSkipsWithoutURL(t *testing.T) {
	p := testPipeline(t, t.TempDir())
	if p.Enqueue(demoArtifact(), resolver.State{Remote: "1.1.0"}) {
		t.Error("a state without a download URL must not be staged")
	}
	if p.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", p.Pending())
	}
}

func TestEnqueueMinVersionFloor(t *testing.T) {
	a := demoArtifact()
	a.MinVersion = "2.0.0"

	p := testPipeline(t, t.TempDir())
	if p.Enqueue(a, resolver.State{Remote: "1.1.0", DownloadURL: "https://example.test/demo.zip"}) {
		t.Error("target below the minimum version must not be staged")
	}
	if !p.Enqueue(a, resolver.State{Remote: "2.1.0", DownloadURL: "https://example.test/demo.zip"}) {
		t.Error("target at or above the minimum version must be staged")
	}
}

func TestEnqueueMinVersionFailsOpen(t *testing.T) {
	a := demoArtifact()
	a.MinVersion = "not-a-version"

	p := testPipeline(t, t.TempDir())
	// An unparseable floor never blocks a download.
	if !p.Enqueue(a, resolver.State{Remote: "1.1.0", DownloadURL: "https://example.test/demo.zip"}) {
		t.Error("unparseable minimum version must not block the download")
	}
}

func TestRunAllInstallsAndRemovesSuperseded(t *testing.T) {
	pkg := packageBytes(t, "demo")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(pkg)
	}))
	defer srv.Close()

	dir := t.TempDir()
	oldPath := filepath.Join(dir, "demo-1.0.0.zip")
	if err := os.WriteFile(oldPath, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := testPipeline(t, dir)
	if !p.Enqueue(demoArtifact(), resolver.State{
		Local: "1.0.0", Remote: "1.1.0", DownloadURL: srv.URL + "/demo-1.1.0.zip",
	}) {
		t.Fatal("task not staged")
	}

	res := p.RunAll(t.Context())
	if len(res.Failed) != 0 {
		t.Fatalf("unexpected failures: %+v", res.Failed)
	}
	if len(res.Installed) != 1 {
		t.Fatalf("Installed = %+v, want one result", res.Installed)
	}

	got := res.Installed[0]
	if got.ArtifactID != "demo" || got.OldVersion != "1.0.0" || got.Version != "1.1.0" {
		t.Errorf("result = %+v, want demo 1.0.0 -> 1.1.0", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, "demo-1.1.0.zip"))
	if err != nil {
		t.Fatalf("installed file missing: %v", err)
	}
	if !bytes.Equal(data, pkg) {
		t.Error("installed file does not match the served package")
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("superseded file was not removed")
	}
}

func TestRunAllStagesWhenAutoInstallOff(t *testing.T) {
	pkg := packageBytes(t, "demo")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(pkg)
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := testPipeline(t, dir, WithAutoInstall(false))
	p.Enqueue(demoArtifact(), resolver.State{Remote: "1.1.0", DownloadURL: srv.URL})

	res := p.RunAll(t.Context())
	if len(res.Staged) != 1 || len(res.Installed) != 0 {
		t.Fatalf("results = %+v, want one staged package", res)
	}
	want := filepath.Join(dir, "demo-1.1.0.zip"+PendingSuffix)
	if res.Staged[0].Path != want {
		t.Errorf("staged path = %q, want %q", res.Staged[0].Path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("staged file missing: %v", err)
	}
}

func TestRunAllRejectsInvalidPackage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{0xFF}, 4096)) // not a zip
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := testPipeline(t, dir)
	p.Enqueue(demoArtifact(), resolver.State{Remote: "1.1.0", DownloadURL: srv.URL})

	res := p.RunAll(t.Context())
	if len(res.Failed) != 1 || res.Failed[0].ArtifactID != "demo" {
		t.Fatalf("results = %+v, want one failure", res)
	}

	// Neither the rejected package nor its temp file may survive.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("leftover file after rejection: %s", e.Name())
	}
}

func TestRunAllServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := testPipeline(t, t.TempDir())
	p.Enqueue(demoArtifact(), resolver.State{Remote: "1.1.0", DownloadURL: srv.URL})

	res := p.RunAll(t.Context())
	if len(res.Failed) != 1 || !strings.Contains(res.Failed[0].Reason, "500") {
		t.Fatalf("results = %+v, want a status-500 failure", res)
	}
}

func TestRunAllFailureDoesNotAffectSiblings(t *testing.T) {
	pkg := packageBytes(t, "good")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		_, _ = w.Write(pkg)
	}))
	defer srv.Close()

	p := testPipeline(t, t.TempDir())
	good := demoArtifact()
	good.ID = "good"
	good.FilePattern = "good-{version}.zip"
	bad := demoArtifact()
	bad.ID = "bad"
	bad.FilePattern = "bad-{version}.zip"

	p.Enqueue(good, resolver.State{Remote: "1.1.0", DownloadURL: srv.URL + "/good"})
	p.Enqueue(bad, resolver.State{Remote: "1.1.0", DownloadURL: srv.URL + "/bad"})

	res := p.RunAll(t.Context())
	if len(res.Installed) != 1 || res.Installed[0].ArtifactID != "good" {
		t.Errorf("Installed = %+v, want only the good artifact", res.Installed)
	}
	if len(res.Failed) != 1 || res.Failed[0].ArtifactID != "bad" {
		t.Errorf("Failed = %+v, want only the bad artifact", res.Failed)
	}
}

func TestRunAllCapsConcurrency(t *testing.T) {
	pkg := packageBytes(t, "demo")

	var inflight, peak atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write(pkg)
	}))
	defer srv.Close()

	p := testPipeline(t, t.TempDir())
	for i := range 8 {
		a := demoArtifact()
		a.ID = fmt.Sprintf("demo%d", i)
		a.FilePattern = a.ID + "-{version}.zip"
		p.Enqueue(a, resolver.State{Remote: "1.1.0", DownloadURL: srv.URL})
	}

	res := p.RunAll(t.Context())
	if len(res.Installed) != 8 {
		t.Fatalf("Installed = %d, want 8 (failures: %+v)", len(res.Installed), res.Failed)
	}
	if got := peak.Load(); got > MaxConcurrentDownloads {
		t.Errorf("peak concurrent downloads = %d, want at most %d", got, MaxConcurrentDownloads)
	}
}

func TestProgressReported(t *testing.T) {
	pkg := packageBytes(t, "demo")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Declare the length explicitly: the body is larger than the
		// buffer net/http sniffs to set Content-Length automatically.
		w.Header().Set("Content-Length", strconv.Itoa(len(pkg)))
		_, _ = w.Write(pkg)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var lastReceived, lastTotal int64
	p := testPipeline(t, t.TempDir(), WithProgress(func(_ string, received, total int64) {
		mu.Lock()
		lastReceived, lastTotal = received, total
		mu.Unlock()
	}))
	p.Enqueue(demoArtifact(), resolver.State{Remote: "1.1.0", DownloadURL: srv.URL})

	if res := p.RunAll(t.Context()); len(res.Installed) != 1 {
		t.Fatalf("results = %+v, want one install", res)
	}

	mu.Lock()
	defer mu.Unlock()
	if lastReceived != int64(len(pkg)) || lastTotal != int64(len(pkg)) {
		t.Errorf("final progress = %d/%d, want %d/%d", lastReceived, lastTotal, len(pkg), len(pkg))
	}
}
