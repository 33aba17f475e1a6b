package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/fsnotify/fsnotify"
)

const (
	DefaultReverifyInterval = 5 * time.Minute
	DefaultReverifyDebounce = 500 * time.Millisecond
	DefaultReverifyTimeout  = 30 * time.Second
)

// Reverifier re-checks the published artifact.
type Reverifier interface {
	Reverify(ctx context.Context) (domain.ModelArtifact, error)
}

// ReverifyService re-checks the model artifact on a fixed interval and
// whenever the artifact or its manifest changes on disk.
type ReverifyService struct {
	Verifier Reverifier
	Logger   *slog.Logger
	Interval time.Duration
	Debounce time.Duration

	// Paths to watch. Events on other files in the same directories are
	// ignored.
	Paths []string

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReverifyService creates the service. If interval is 0 or negative it
// defaults to DefaultReverifyInterval.
func NewReverifyService(v Reverifier, logger *slog.Logger, interval time.Duration, paths ...string) *ReverifyService {
	if interval <= 0 {
		interval = DefaultReverifyInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReverifyService{
		Verifier: v,
		Logger:   logger,
		Interval: interval,
		Debounce: DefaultReverifyDebounce,
		Paths:    paths,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the worker. A watcher that cannot be created is logged and
// the service falls back to the ticker alone.
func (s *ReverifyService) Start() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.Logger.Warn("artifact watch unavailable, using interval only", "error", err)
	} else {
		dirs := map[string]struct{}{}
		for _, p := range s.Paths {
			dirs[filepath.Dir(p)] = struct{}{}
		}
		for dir := range dirs {
			// Directories, not files: atomic replace via rename would drop a
			// file watch.
			if err := w.Add(dir); err != nil {
				s.Logger.Warn("failed to watch artifact directory", "dir", dir, "error", err)
			}
		}
		s.watcher = w
	}

	go s.run()
	s.Logger.Info("reverify service started", "interval", s.Interval, "watching", s.watcher != nil)
}

// Stop shuts the worker down and waits for an in-progress check.
func (s *ReverifyService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	s.Logger.Info("reverify service stopped")
}

func (s *ReverifyService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	var (
		events   <-chan fsnotify.Event
		errs     <-chan error
		debounce *time.Timer
		fire     <-chan time.Time
	)
	if s.watcher != nil {
		events, errs = s.watcher.Events, s.watcher.Errors
	}
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ticker.C:
			s.check("interval")

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !s.watched(ev) {
				continue
			}
			s.Logger.Debug("artifact change detected", "file", ev.Name, "op", ev.Op.String())
			if debounce == nil {
				debounce = time.NewTimer(s.Debounce)
			} else {
				debounce.Reset(s.Debounce)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			s.check("file_change")

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.Logger.Error("artifact watcher error", "error", err)

		case <-s.stopCh:
			return
		}
	}
}

func (s *ReverifyService) watched(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	for _, p := range s.Paths {
		if filepath.Clean(p) == name {
			return true
		}
	}
	return false
}

func (s *ReverifyService) check(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultReverifyTimeout)
	defer cancel()

	art, err := s.Verifier.Reverify(ctx)
	if err != nil {
		// The verifier already logged the quarantine at error level.
		s.Logger.Warn("artifact reverify failed", "trigger", trigger, "error", err)
		return
	}
	s.Logger.Debug("artifact reverified", "trigger", trigger, "trusted", art.Trusted, "version", art.Version)
}
