package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
)

const (
	countPath       = "/api/notifications/count"
	createPath      = "/api/notifications"
	markReadPath    = "/api/notifications/mark-as-read/"
	markAllReadPath = "/api/notifications/mark-all-read"
	deletePath      = "/api/notifications/"
)

// backendError carries the backend's own message and classifies as
// httpx.ErrUpstream.
type backendError struct{ message string }

func (e *backendError) Error() string { return e.message }

func (e *backendError) Unwrap() error { return httpx.ErrUpstream }

func upstreamError(message string) error { return &backendError{message: message} }

// Backend is the subset of the backend client the inbox needs.
type Backend interface {
	FetchNamed(ctx context.Context, name string) backend.Result
	Send(ctx context.Context, method, path string, payload any) backend.Result
}

// Service synchronises the inbox with the backend.
type Service struct {
	backend Backend
	state   *Container
	logger  *slog.Logger
}

// NewService wires the inbox service.
func NewService(b Backend, state *Container, logger *slog.Logger) *Service {
	if state == nil {
		state = NewContainer()
	}
	return &Service{backend: b, state: state, logger: logger}
}

// State returns the current inbox.
func (s *Service) State() State {
	return s.state.State()
}

// Refresh reloads the unread list and the count together.
func (s *Service) Refresh(ctx context.Context) error {
	s.state.Update(func(st State) State { return st.WithLoading(true) })
	defer s.state.Update(func(st State) State { return st.WithLoading(false) })

	var (
		items []Item
		count int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res := s.backend.FetchNamed(gctx, backend.EndpointNotifications)
		if !res.Success {
			return upstreamError(res.Message)
		}
		items = make([]Item, 0, len(res.Data))
		for _, rec := range res.Data {
			items = append(items, ItemFromRecord(rec))
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.fetchCount(gctx)
		count = n
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh notifications: %w", err)
	}
	s.state.Update(func(st State) State { return st.WithItems(items).WithUnread(count) })
	return nil
}

// RefreshCount reloads the badge count only.
func (s *Service) RefreshCount(ctx context.Context) error {
	n, err := s.fetchCount(ctx)
	if err != nil {
		return fmt.Errorf("refresh notification count: %w", err)
	}
	s.state.Update(func(st State) State { return st.WithUnread(n) })
	return nil
}

func (s *Service) fetchCount(ctx context.Context) (int, error) {
	res := s.backend.Send(ctx, http.MethodGet, countPath, nil)
	if !res.Success {
		return 0, upstreamError(res.Message)
	}
	if len(res.Data) == 0 {
		return 0, nil
	}
	n, _ := res.Data[0].Number("count")
	return int(n), nil
}

// Add posts a notification addressed to role and refreshes the inbox.
func (s *Service) Add(ctx context.Context, message, link, role string) error {
	res := s.backend.Send(ctx, http.MethodPost, createPath, map[string]string{
		"message": message,
		"link":    link,
		"role":    role,
	})
	if !res.Success {
		return upstreamError(res.Message)
	}
	return s.Refresh(ctx)
}

// MarkRead marks one notification read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	res := s.backend.Send(ctx, http.MethodPost, markReadPath+url.PathEscape(id), nil)
	if !res.Success {
		return upstreamError(res.Message)
	}
	s.state.Update(func(st State) State { return st.MarkRead(id) })
	return nil
}

// MarkAllRead marks every notification read.
func (s *Service) MarkAllRead(ctx context.Context) error {
	res := s.backend.Send(ctx, http.MethodPost, markAllReadPath, nil)
	if !res.Success {
		return upstreamError(res.Message)
	}
	s.state.Update(func(st State) State { return st.MarkAllRead() })
	return nil
}

// Delete removes one notification.
func (s *Service) Delete(ctx context.Context, id string) error {
	res := s.backend.Send(ctx, http.MethodDelete, deletePath+url.PathEscape(id), nil)
	if !res.Success {
		return upstreamError(res.Message)
	}
	s.state.Update(func(st State) State { return st.Remove(id) })
	return nil
}

// Run loads the inbox once, then polls the count every interval until ctx
// is done. Poll failures are logged and keep the previous count.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if err := s.Refresh(ctx); err != nil {
		s.logWarn("initial notification load failed", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RefreshCount(ctx); err != nil && ctx.Err() == nil {
				s.logWarn("notification count poll failed", err)
			}
		}
	}
}

func (s *Service) logWarn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.Any("error", err))
	}
}
