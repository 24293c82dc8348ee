package deployment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/CamFlow/internal/domain"
)

func TestBeginCombinedResumesPastHighest(t *testing.T) {
	root := t.TempDir()
	camDir := filepath.Join(root, ImagesDir, "Cam1_1234")
	if err := os.MkdirAll(camDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for i := 0; i <= 41; i++ {
		name := fmt.Sprintf("%06d_D20240501-T120000.000_Cam1_1234.jpg", i)
		if err := os.WriteFile(filepath.Join(camDir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// files without a numeric prefix are ignored
	_ = os.WriteFile(filepath.Join(camDir, "notes_999.txt"), nil, 0o644)

	l, err := Begin(domain.OutputCombined, root, time.Now())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if l.Dir() != root {
		t.Fatalf("combined mode must write into the output root")
	}
	if got := l.NextNumber(); got != 42 {
		t.Fatalf("expected resume at 42, got %d", got)
	}
}

func TestHighestNumberScansOnlyImageFolders(t *testing.T) {
	root := t.TempDir()
	write := func(rel string) {
		t.Helper()
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(filepath.Join(FramesDir, "Cam2", "000007_D20240501-T120000.000_Cam2.jpg"))
	write(filepath.Join(ImagesDir, "Cam1", "000005_D20240501-T120000.000_Cam1.jpg"))
	write(filepath.Join(LogsDir, "900000_camflow.log"))
	write(filepath.Join(SettingsDir, "800000_settings.yaml"))
	write(filepath.Join(".wal", "700000_segment.wal"))
	write("600000_stray.jpg")

	highest, found, err := HighestNumber(root)
	if err != nil {
		t.Fatalf("HighestNumber: %v", err)
	}
	if !found || highest != 7 {
		t.Fatalf("expected highest 7 from frames, got %d (found=%v)", highest, found)
	}
}

func TestBeginCombinedMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "new-survey")
	l, err := Begin(domain.OutputCombined, root, time.Now())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if l.Current() != 0 {
		t.Fatalf("expected numbering from 0, got %d", l.Current())
	}
	if _, err := os.Stat(filepath.Join(root, ImagesDir)); err != nil {
		t.Fatalf("expected images dir to be created: %v", err)
	}
}

func TestBeginSeparateCreatesFreshFolders(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)

	a, err := Begin(domain.OutputSeparate, root, now)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	a.NextNumber()
	b, err := Begin(domain.OutputSeparate, root, now)
	if err != nil {
		t.Fatalf("begin second: %v", err)
	}
	if a.Dir() == b.Dir() {
		t.Fatalf("expected unique deployment folders, both %s", a.Dir())
	}
	if filepath.Base(a.Dir()) != "D20240501-T123045" {
		t.Fatalf("unexpected folder name %s", filepath.Base(a.Dir()))
	}
	if b.Current() != 0 {
		t.Fatalf("separate mode must start at 0, got %d", b.Current())
	}
	if a.State().ID == b.State().ID {
		t.Fatalf("expected distinct deployment ids")
	}
}

func TestBeginUnknownMode(t *testing.T) {
	_, err := Begin(domain.OutputMode("merged"), t.TempDir(), time.Now())
	if _, ok := err.(*domain.ConfigError); !ok {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestNextNumberConcurrentUnique(t *testing.T) {
	l, err := Begin(domain.OutputSeparate, t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	const workers, per = 8, 250
	var (
		mu   sync.Mutex
		seen = make(map[uint64]struct{}, workers*per)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := uint64(0)
			for i := 0; i < per; i++ {
				n := l.NextNumber()
				if i > 0 && n <= last {
					t.Errorf("numbers not increasing within caller: %d after %d", n, last)
				}
				last = n
				mu.Lock()
				if _, dup := seen[n]; dup {
					t.Errorf("duplicate number %d", n)
				}
				seen[n] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*per {
		t.Fatalf("expected %d numbers, got %d", workers*per, len(seen))
	}
	if l.Current() != workers*per {
		t.Fatalf("expected counter at %d, got %d", workers*per, l.Current())
	}
}

func TestImageNameWidth(t *testing.T) {
	l := &Layout{}
	at := time.Date(2024, 5, 1, 12, 30, 45, 123_000_000, time.UTC)

	if got := l.ImageName(42, at, "Cam1_1234", "jpg"); got != "000042_D20240501-T123045.123_Cam1_1234.jpg" {
		t.Fatalf("unexpected name %s", got)
	}
	if got := l.ImageName(1_000_000, at, "Cam1", ".png"); !strings.HasPrefix(got, "001000000_") || !strings.HasSuffix(got, ".png") {
		t.Fatalf("unexpected wide name %s", got)
	}
	if got := l.ImagePath(true, "Cam1", "x.jpg"); got != filepath.Join(FramesDir, "Cam1", "x.jpg") {
		t.Fatalf("unexpected frame path %s", got)
	}
}

func TestCopySettings(t *testing.T) {
	l, err := Begin(domain.OutputSeparate, t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	src := filepath.Join(t.TempDir(), "camflow.yaml")
	if err := os.WriteFile(src, []byte("application: {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.CopySettings(src); err != nil {
		t.Fatalf("copy: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(l.Dir(), SettingsDir, "camflow.yaml"))
	if err != nil || string(data) != "application: {}\n" {
		t.Fatalf("settings copy mismatch: %q %v", data, err)
	}
}
