package providers

import (
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/pathwatch/pathwatch/internal/config"
	"github.com/pathwatch/pathwatch/internal/errors"
	"github.com/pathwatch/pathwatch/internal/inotify"
	"github.com/pathwatch/pathwatch/internal/logger"
	"github.com/pathwatch/pathwatch/internal/stats"
	"github.com/pathwatch/pathwatch/internal/watcher"
)

// ProvideStream opens the kernel notification stream. The notifier owns
// its shutdown.
func ProvideStream(i do.Injector) (inotify.Stream, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return inotify.OpenStream(log)
}

// ProvideRegistry creates the watch registry with the configured
// exclusion filter.
func ProvideRegistry(i do.Injector) (*watcher.Registry, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	stream := do.MustInvoke[inotify.Stream](i)

	exclude, err := cfg.ExcludeFilter()
	if err != nil {
		return nil, err
	}
	return watcher.NewRegistry(log, stream, watcher.WithExcludeFilter(exclude)), nil
}

// ProvideStats creates the event counter. It joins the handler chain only
// when stats are enabled.
func ProvideStats(do.Injector) (*stats.Counter, error) {
	return stats.New(), nil
}

// NotifierHandle owns the notifier lifecycle so the container can shut it
// down, which also closes the stream.
type NotifierHandle struct {
	*watcher.Notifier
}

// Shutdown stops the event loop and closes the stream.
func (h *NotifierHandle) Shutdown() error {
	return h.Stop()
}

// ProvideNotifier wires the notifier with the event printer as default
// handler, preceded by the counter when stats are enabled.
func ProvideNotifier(i do.Injector) (*NotifierHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	stream := do.MustInvoke[inotify.Stream](i)
	reg := do.MustInvoke[*watcher.Registry](i)

	handlers := []watcher.Handler{}
	if cfg.Stats.Enabled {
		handlers = append(handlers, do.MustInvoke[*stats.Counter](i))
	}
	handlers = append(handlers, &printerHandler{raw: cfg.Output.Raw})

	n := watcher.NewNotifier(log, stream, reg,
		watcher.WithDefaultHandler(handlers...),
		watcher.WithCoalescing(cfg.Notify.Coalesce),
		watcher.WithReadFrequency(cfg.Notify.ReadFrequency),
		watcher.WithThreshold(cfg.Notify.Threshold),
		watcher.WithTimeout(cfg.Notify.Timeout),
	)
	return &NotifierHandle{Notifier: n}, nil
}

// RegisterWatches registers the configured paths and reports the outcome.
// Partial failures are logged and tolerated as long as at least one watch
// was established.
func RegisterWatches(i do.Injector) error {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	reg := do.MustInvoke[*watcher.Registry](i)

	mask, err := cfg.Mask()
	if err != nil {
		return err
	}

	results, err := reg.Add(cfg.Watch.Paths, mask, watcher.AddOptions{
		Recursive: cfg.Watch.Recursive,
		Glob:      cfg.Watch.Glob,
		AutoAdd:   cfg.Watch.AutoAdd,
	})
	if err != nil {
		if errors.Is(err, errors.ErrWatchLimit) {
			if limit, terr := inotify.NewTunables().MaxUserWatches(); terr == nil {
				log.Warn("watch limit reached", "fs.inotify.max_user_watches", limit)
			}
			return fmt.Errorf("watch limit reached after %d watches, "+
				"consider raising fs.inotify.max_user_watches: %w", reg.Len(), err)
		}
		return err
	}

	for path, res := range results {
		switch {
		case res.Excluded:
			log.Debug("path excluded", "path", path)
		case res.Err != nil:
			log.WithError(res.Err).Warn("failed to watch path", "path", path)
		}
	}
	if reg.Len() == 0 {
		return fmt.Errorf("no watches could be established")
	}
	log.Info("watching", "watches", reg.Len(), "mask", mask.String())
	return nil
}

// printerHandler writes each event to stdout, one per line.
type printerHandler struct {
	raw bool
}

func (p *printerHandler) ProcessDefault(e *watcher.Event) bool {
	if p.raw {
		fmt.Fprintf(os.Stdout, "wd=%d mask=%#x cookie=%d name=%q\n",
			e.Wd, uint32(e.Mask), e.Cookie, e.Name)
	} else {
		fmt.Fprintln(os.Stdout, e.String())
	}
	return false
}
