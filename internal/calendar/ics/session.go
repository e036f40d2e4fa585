// Package ics exposes an ICS subscription as a read-only calendar session.
package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/klauern/calmirror/internal/cache"
	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/model"
)

// ErrReadOnly is returned by every mutating call.
var ErrReadOnly = errors.New("ics calendars are read-only")

// DefaultHorizon bounds expansion when a listing has no window.
const DefaultHorizon = 365 * 24 * time.Hour

const fetchTimeout = 15 * time.Second

// Session reads events from ICS URLs. The calendar id is the feed URL;
// file:// URLs and bare paths are read from disk.
type Session struct {
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
	cache  *cache.Cache
	ttl    time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock overrides the time source used for the default horizon.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithCache keeps remote feeds in c. A feed fetched within ttl is served
// from disk; older ones are revalidated with ETag and Last-Modified.
func WithCache(c *cache.Cache, ttl time.Duration) Option {
	return func(s *Session) {
		s.cache = c
		s.ttl = ttl
	}
}

// New returns a Session.
func New(opts ...Option) *Session {
	s := &Session{
		client: &http.Client{Timeout: fetchTimeout},
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ calendar.Session = (*Session)(nil)

func (s *Session) ListEvents(ctx context.Context, calendarID string, opts calendar.ListOptions) (*calendar.Page, error) {
	f, err := s.load(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	from, to := opts.TimeMin, opts.TimeMax
	now := s.now()
	if from.IsZero() {
		from = now.Add(-DefaultHorizon)
	}
	if to.IsZero() {
		to = now.Add(DefaultHorizon)
	}

	page := &calendar.Page{}
	for _, occ := range expand(f.Events, from, to, s.logger) {
		ev := toEvent(occ)
		if !calendar.MatchesPrivate(ev, opts.PrivateProperties) {
			continue
		}
		page.Events = append(page.Events, ev)
	}
	return page, nil
}

func (s *Session) GetEvent(ctx context.Context, calendarID, eventID string) (*gcal.Event, error) {
	page, err := s.ListEvents(ctx, calendarID, calendar.ListOptions{SingleEvents: true})
	if err != nil {
		return nil, err
	}
	for _, ev := range page.Events {
		if ev.Id == eventID {
			return ev, nil
		}
	}
	return nil, fmt.Errorf("event %s not found in feed", eventID)
}

func (s *Session) GetCalendar(ctx context.Context, calendarID string) (*gcal.Calendar, error) {
	f, err := s.load(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	name := f.Name
	if name == "" {
		name = redactURL(calendarID)
	}
	return &gcal.Calendar{Id: calendarID, Summary: name}, nil
}

func (s *Session) InsertEvent(context.Context, string, *gcal.Event) (*gcal.Event, error) {
	return nil, ErrReadOnly
}

func (s *Session) UpdateEvent(context.Context, string, string, *gcal.Event) (*gcal.Event, error) {
	return nil, ErrReadOnly
}

func (s *Session) DeleteEvent(context.Context, string, string) error {
	return ErrReadOnly
}

func (s *Session) load(ctx context.Context, feedURL string) (*feed, error) {
	body, err := s.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	f, err := parseFeed(body, s.logger)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", redactURL(feedURL), err)
	}
	s.logger.Debug("ics feed loaded", logging.Calendar(redactURL(feedURL)), logging.Count(len(f.Events)))
	return f, nil
}

func (s *Session) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	if path, ok := localPath(feedURL); ok {
		return os.ReadFile(path)
	}

	var (
		entry  cache.Entry
		cached []byte
		hit    bool
	)
	if s.cache != nil {
		entry, cached, hit = s.cache.Get(feedURL)
		if hit && entry.Fresh(s.ttl, s.now()) {
			s.logger.Debug("ics feed served from cache", logging.Calendar(redactURL(feedURL)))
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if hit {
		if entry.ETag != "" {
			req.Header.Set("If-None-Match", entry.ETag)
		}
		if entry.LastModified != "" {
			req.Header.Set("If-Modified-Since", entry.LastModified)
		}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", redactURL(feedURL), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && hit:
		s.cache.Touch(feedURL)
		s.saveCache()
		s.logger.Debug("ics feed not modified", logging.Calendar(redactURL(feedURL)))
		return cached, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: unexpected status %s", redactURL(feedURL), resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", redactURL(feedURL), err)
	}
	if s.cache != nil {
		if err := s.cache.Set(feedURL, body, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified")); err != nil {
			s.logger.Warn("failed to cache ics feed", logging.Calendar(redactURL(feedURL)), logging.Err(err))
		} else {
			s.saveCache()
		}
	}
	return body, nil
}

func (s *Session) saveCache() {
	if err := s.cache.Save(); err != nil {
		s.logger.Warn("failed to save feed cache", logging.Err(err))
	}
}

func localPath(feedURL string) (string, bool) {
	if after, ok := strings.CutPrefix(feedURL, "file://"); ok {
		return after, true
	}
	if strings.HasPrefix(feedURL, "/") {
		return feedURL, true
	}
	return "", false
}

// redactURL keeps only scheme and host so feed tokens stay out of logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/..."
}

func toEvent(occ occurrence) *gcal.Event {
	ev := occ.Event
	out := &gcal.Event{
		Id:          occ.ID,
		ICalUID:     ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Visibility:  visibility(ev.Class),
		Status:      ev.Status,
		Sequence:    int64(ev.Seq),
	}
	if ev.AllDay {
		out.Start = calendar.FormatEventDateTime(model.EventTime{Time: occ.Start, AllDay: true})
		out.End = calendar.FormatEventDateTime(model.EventTime{Time: occ.End, AllDay: true})
	} else {
		out.Start = calendar.FormatEventDateTime(model.At(occ.Start))
		out.End = calendar.FormatEventDateTime(model.At(occ.End))
	}
	for _, email := range ev.Attendees {
		out.Attendees = append(out.Attendees, &gcal.EventAttendee{Email: email})
	}
	if len(ev.Provenance) > 0 {
		props := make(map[string]string, len(ev.Provenance))
		for k, v := range ev.Provenance {
			props[k] = v
		}
		out.ExtendedProperties = &gcal.EventExtendedProperties{Private: props}
	}
	return out
}

func visibility(class string) string {
	switch class {
	case "public", "private", "confidential":
		return class
	default:
		return ""
	}
}
