package backup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/safearchive/safearchive/fs"
)

// DefaultSettle is how long the watcher waits for changes to stop
// before triggering a run
const DefaultSettle = 5 * time.Second

// Scheduler triggers runs from a cron schedule and from changes in
// watched folders. Triggers which arrive while a run is in progress
// are coalesced into a single following run so runs never overlap.
type Scheduler struct {
	run     func(ctx context.Context) error
	cron    *cron.Cron
	watcher *fsnotify.Watcher
	settle  time.Duration
	trigger chan string
}

// NewScheduler makes a Scheduler calling run
func NewScheduler(run func(ctx context.Context) error) *Scheduler {
	return &Scheduler{
		run:     run,
		cron:    cron.New(),
		settle:  DefaultSettle,
		trigger: make(chan string, 1),
	}
}

// SetSettle sets how long to wait after the last change
func (s *Scheduler) SetSettle(d time.Duration) {
	s.settle = d
}

// AddCron triggers a run on the standard 5 field cron spec, eg
// "0 3 * * *"
func (s *Scheduler) AddCron(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return errors.Wrapf(err, "bad cron spec %q", spec)
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.Trigger("cron " + spec)
	})
	return err
}

// Watch triggers a run when anything inside dirs changes
func (s *Scheduler) Watch(dirs []string) error {
	if s.watcher == nil {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return errors.Wrap(err, "failed to start watcher")
		}
		s.watcher = watcher
	}
	for _, dir := range dirs {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return s.watcher.Add(path)
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "failed to watch %q", dir)
		}
	}
	return nil
}

// Trigger asks for a run. It never blocks.
func (s *Scheduler) Trigger(reason string) {
	select {
	case s.trigger <- reason:
		fs.Debugf(nil, "Run triggered by %s", reason)
	default:
		fs.Debugf(nil, "Run already pending, ignoring %s", reason)
	}
}

// Run starts the schedule and runs until ctx is cancelled. Errors
// from runs are logged and don't stop the Scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	defer s.cron.Stop()

	var (
		events  chan fsnotify.Event
		errs    chan error
		settled <-chan time.Time
		timer   *time.Timer
	)
	if s.watcher != nil {
		defer func() {
			_ = s.watcher.Close()
		}()
		events = s.watcher.Events
		errs = s.watcher.Errors
	}
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			fs.Debugf(nil, "Change: %v", event)
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := s.watcher.Add(event.Name); err != nil {
						fs.Errorf(nil, "Failed to watch %q: %v", event.Name, err)
					}
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(s.settle)
			settled = timer.C
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fs.Errorf(nil, "Watcher error: %v", err)
		case <-settled:
			settled, timer = nil, nil
			s.Trigger("change")
		case reason := <-s.trigger:
			fs.Infof(nil, "Starting run (%s)", reason)
			if err := s.run(ctx); err != nil {
				fs.Errorf(nil, "Run failed: %v", err)
			}
		}
	}
}
