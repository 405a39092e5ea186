package catalog

import (
	"context"
	"errors"

	"github.com/nerrad567/poweredup/internal/hub"
)

// Source is the part of a hub session Sync reads from.
type Source interface {
	Topics() hub.Topics
	Properties() hub.Properties
	Ports() []hub.PortRecord
	Port(port uint8) (hub.PortRecord, error)
}

var _ Source = (*hub.Session)(nil)

// Logger is the optional logging interface.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

// Sync mirrors a live session into the repository until ctx is cancelled
// or the session's notification topic closes.
//
// It saves the hub and every already-ready port first, then follows
// notifications: port_ready saves the record, detached deletes it and
// property updates refresh the hub row. Repository failures are logged
// and do not stop the loop.
func Sync(ctx context.Context, src Source, hubID string, repo Repository, logger Logger) {
	rx := src.Topics().HubNotification.Subscribe()
	defer rx.Close()

	s := syncer{src: src, hubID: hubID, repo: repo, logger: logger}
	s.saveHub(ctx)
	for _, rec := range src.Ports() {
		if rec.Ready {
			s.savePort(ctx, rec.Port)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-rx.C:
			if !ok {
				return
			}
			s.handle(ctx, n)
		}
	}
}

type syncer struct {
	src    Source
	hubID  string
	repo   Repository
	logger Logger
}

func (s syncer) handle(ctx context.Context, n hub.Notice) {
	switch n.Kind {
	case hub.NoticePortReady:
		s.savePort(ctx, n.Port)
	case hub.NoticeDetached:
		err := s.repo.DeletePort(ctx, s.hubID, n.Port)
		if err != nil && !errors.Is(err, ErrPortNotFound) {
			s.warn("catalog delete failed", err, "port", n.Port)
		}
	case hub.NoticeProperty:
		s.saveHub(ctx)
	default:
	}
}

func (s syncer) saveHub(ctx context.Context) {
	if err := s.repo.SaveHub(ctx, s.hubID, s.src.Properties()); err != nil {
		s.warn("catalog hub save failed", err)
	}
}

func (s syncer) savePort(ctx context.Context, port uint8) {
	rec, err := s.src.Port(port)
	if err != nil {
		// Detached between the notice and the lookup.
		if s.logger != nil {
			s.logger.Debug("catalog skipped port", "port", port, "error", err)
		}
		return
	}
	if err := s.repo.SavePort(ctx, s.hubID, rec); err != nil {
		s.warn("catalog port save failed", err, "port", port)
	}
}

func (s syncer) warn(msg string, err error, kv ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, append([]any{"hub_id", s.hubID, "error", err}, kv...)...)
	}
}
