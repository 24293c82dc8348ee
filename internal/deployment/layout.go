// Package deployment computes the deployment folder and the image number
// space shared by every camera of one acquisition session.
package deployment

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/CamFlow/internal/domain"
)

const (
	folderLayout = "D20060102-T150405"
	stampLayout  = "D20060102-T150405.000"

	LogsDir     = "logs"
	ImagesDir   = "images"
	FramesDir   = "frames"
	SettingsDir = "settings"
)

// Layout is the on-disk identity of a running deployment. NextNumber is
// safe for concurrent use; everything else is fixed after Begin.
type Layout struct {
	state domain.DeploymentState
	next  atomic.Uint64
}

// Begin creates or resumes a deployment under root. Separate mode always
// creates a fresh timestamp-named folder numbered from 0. Combined mode
// writes into root itself and resumes one past the highest image number
// found there.
func Begin(mode domain.OutputMode, root string, now time.Time) (*Layout, error) {
	if root == "" {
		return nil, &domain.ConfigError{Field: "application.output_path", Msg: "required"}
	}

	var (
		dir   string
		first uint64
		err   error
	)
	switch mode {
	case domain.OutputSeparate:
		dir, err = uniqueDir(root, now.Format(folderLayout))
		if err != nil {
			return nil, err
		}
	case domain.OutputCombined:
		dir = root
		highest, found, err := HighestNumber(root)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
		if found {
			first = highest + 1
		}
	default:
		return nil, &domain.ConfigError{Field: "application.output_mode", Msg: fmt.Sprintf("unknown mode %q", mode)}
	}

	for _, sub := range []string{LogsDir, ImagesDir, SettingsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}

	l := &Layout{
		state: domain.DeploymentState{
			ID:         uuid.NewString(),
			Mode:       mode,
			OutputRoot: root,
			Dir:        dir,
			StartedAt:  now,
		},
	}
	l.next.Store(first)
	return l, nil
}

func uniqueDir(root, name string) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	candidate := filepath.Join(root, name)
	for i := 1; ; i++ {
		err := os.Mkdir(candidate, 0o755)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		candidate = filepath.Join(root, fmt.Sprintf("%s_%d", name, i))
	}
}

// NextNumber returns the next image number and advances the counter.
func (l *Layout) NextNumber() uint64 {
	return l.next.Add(1) - 1
}

// Current is the number the next saved image will receive.
func (l *Layout) Current() uint64 {
	return l.next.Load()
}

func (l *Layout) Dir() string { return l.state.Dir }

func (l *Layout) LogDir() string { return filepath.Join(l.state.Dir, LogsDir) }

func (l *Layout) State() domain.DeploymentState {
	st := l.state
	st.CurrentImageNumber = l.Current()
	return st
}

// ImageName formats number_time_camera.ext, widening the number to nine
// digits past 999999.
func (l *Layout) ImageName(number uint64, at time.Time, camera, ext string) string {
	num := fmt.Sprintf("%06d", number)
	if number > 999999 {
		num = fmt.Sprintf("%09d", number)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return num + "_" + at.Format(stampLayout) + "_" + camera + ext
}

// ImagePath returns the deployment-relative path of an image or video frame.
func (l *Layout) ImagePath(video bool, camera, name string) string {
	sub := ImagesDir
	if video {
		sub = FramesDir
	}
	return filepath.Join(sub, camera, name)
}

// CopySettings stores a copy of the configuration file in the settings folder.
func (l *Layout) CopySettings(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	dst := filepath.Join(l.state.Dir, SettingsDir, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// HighestNumber scans the images and frames folders under root for files
// named <digits>_... and returns the largest number. Other folders are not
// scanned. A missing root or folder reports found=false.
func HighestNumber(root string) (highest uint64, found bool, err error) {
	for _, sub := range []string{ImagesDir, FramesDir} {
		dir := filepath.Join(root, sub)
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == dir {
					return fs.SkipAll
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			n, ok := parseNumber(d.Name())
			if !ok {
				return nil
			}
			if !found || n > highest {
				highest, found = n, true
			}
			return nil
		})
		if err != nil {
			return highest, found, err
		}
	}
	return highest, found, nil
}

func parseNumber(name string) (uint64, bool) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok || prefix == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
