package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

// Method names used for call counting and failure injection.
const (
	MethodList        = "ListEvents"
	MethodGet         = "GetEvent"
	MethodInsert      = "InsertEvent"
	MethodUpdate      = "UpdateEvent"
	MethodDelete      = "DeleteEvent"
	MethodGetCalendar = "GetCalendar"
)

const defaultPageSize = 250

// Call describes one Memory invocation, passed to failure hooks.
type Call struct {
	Method     string
	CalendarID string
	EventID    string
	Event      *gcal.Event
	Options    ListOptions
}

// FailFunc returns a non-nil error to make a call fail.
type FailFunc func(Call) error

type memCalendar struct {
	meta   *gcal.Calendar
	order  []string
	events map[string]*gcal.Event
}

// Memory is an in-process Session. It filters and pages like the remote
// service so reconciliation can be exercised end to end.
type Memory struct {
	mu        sync.Mutex
	calendars map[string]*memCalendar
	calls     map[string]int
	hooks     []FailFunc
}

// NewMemory returns an empty Memory holding the given calendar ids.
func NewMemory(calendarIDs ...string) *Memory {
	m := &Memory{
		calendars: make(map[string]*memCalendar),
		calls:     make(map[string]int),
	}
	for _, id := range calendarIDs {
		m.AddCalendar(id, id)
	}
	return m
}

// AddCalendar registers a calendar. Re-adding an id keeps its events.
func (m *Memory) AddCalendar(id, summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.calendars[id]; ok {
		c.meta.Summary = summary
		return
	}
	m.calendars[id] = &memCalendar{
		meta:   &gcal.Calendar{Id: id, Summary: summary},
		events: make(map[string]*gcal.Event),
	}
}

// Put stores ev directly without counting a call. An empty id is assigned.
func (m *Memory) Put(calendarID string, ev *gcal.Event) *gcal.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.calendar(calendarID)
	stored := cloneEvent(ev)
	if stored.Id == "" {
		stored.Id = newEventID()
	}
	if stored.Status == "" {
		stored.Status = "confirmed"
	}
	if _, exists := c.events[stored.Id]; !exists {
		c.order = append(c.order, stored.Id)
	}
	c.events[stored.Id] = stored
	return cloneEvent(stored)
}

// Remove deletes an event without counting a call.
func (m *Memory) Remove(calendarID, eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calendar(calendarID).remove(eventID)
}

// Events returns copies of every event in calendarID, in insertion order.
func (m *Memory) Events(calendarID string) []*gcal.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calendars[calendarID]
	if !ok {
		return nil
	}
	out := make([]*gcal.Event, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, cloneEvent(c.events[id]))
	}
	return out
}

// Event returns a copy of one event, or nil.
func (m *Memory) Event(calendarID, eventID string) *gcal.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calendars[calendarID]
	if !ok {
		return nil
	}
	ev, ok := c.events[eventID]
	if !ok {
		return nil
	}
	return cloneEvent(ev)
}

// Calls returns how many times method was invoked.
func (m *Memory) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Mutations returns the number of insert, update and delete calls.
func (m *Memory) Mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[MethodInsert] + m.calls[MethodUpdate] + m.calls[MethodDelete]
}

// ResetCalls zeroes the call counters.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
}

// FailWith installs a hook consulted before every call.
func (m *Memory) FailWith(fn FailFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Fail makes every call to method on calendarID return err. An empty
// calendarID matches all calendars.
func (m *Memory) Fail(method, calendarID string, err error) {
	m.FailWith(func(c Call) error {
		if c.Method == method && (calendarID == "" || c.CalendarID == calendarID) {
			return err
		}
		return nil
	})
}

// ClearFailures removes all failure hooks.
func (m *Memory) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = nil
}

func (m *Memory) ListEvents(ctx context.Context, calendarID string, opts ListOptions) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, Call{Method: MethodList, CalendarID: calendarID, Options: opts}); err != nil {
		return nil, err
	}
	c, ok := m.calendars[calendarID]
	if !ok {
		return nil, notFound("calendar", calendarID)
	}

	var matched []*gcal.Event
	for _, id := range c.order {
		ev := c.events[id]
		if !Overlaps(ev, opts.TimeMin, opts.TimeMax) {
			continue
		}
		if !MatchesPrivate(ev, opts.PrivateProperties) {
			continue
		}
		matched = append(matched, ev)
	}

	offset := 0
	if opts.PageToken != "" {
		n, err := strconv.Atoi(opts.PageToken)
		if err != nil || n < 0 || n > len(matched) {
			return nil, &googleapi.Error{Code: http.StatusBadRequest, Message: "invalid page token"}
		}
		offset = n
	}
	size := int(opts.MaxResults)
	if size <= 0 {
		size = defaultPageSize
	}
	end := min(offset+size, len(matched))

	page := &Page{Events: make([]*gcal.Event, 0, end-offset)}
	for _, ev := range matched[offset:end] {
		page.Events = append(page.Events, cloneEvent(ev))
	}
	if end < len(matched) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (m *Memory) GetEvent(ctx context.Context, calendarID, eventID string) (*gcal.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, Call{Method: MethodGet, CalendarID: calendarID, EventID: eventID}); err != nil {
		return nil, err
	}
	c, ok := m.calendars[calendarID]
	if !ok {
		return nil, notFound("calendar", calendarID)
	}
	ev, ok := c.events[eventID]
	if !ok {
		return nil, notFound("event", eventID)
	}
	return cloneEvent(ev), nil
}

func (m *Memory) InsertEvent(ctx context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, Call{Method: MethodInsert, CalendarID: calendarID, Event: ev}); err != nil {
		return nil, err
	}
	c, ok := m.calendars[calendarID]
	if !ok {
		return nil, notFound("calendar", calendarID)
	}
	stored := cloneEvent(ev)
	stored.Id = newEventID()
	stored.Status = "confirmed"
	stored.Updated = time.Now().UTC().Format(time.RFC3339)
	c.order = append(c.order, stored.Id)
	c.events[stored.Id] = stored
	return cloneEvent(stored), nil
}

func (m *Memory) UpdateEvent(ctx context.Context, calendarID, eventID string, ev *gcal.Event) (*gcal.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, Call{Method: MethodUpdate, CalendarID: calendarID, EventID: eventID, Event: ev}); err != nil {
		return nil, err
	}
	c, ok := m.calendars[calendarID]
	if !ok {
		return nil, notFound("calendar", calendarID)
	}
	if _, ok := c.events[eventID]; !ok {
		return nil, notFound("event", eventID)
	}
	stored := cloneEvent(ev)
	stored.Id = eventID
	if stored.Status == "" {
		stored.Status = "confirmed"
	}
	stored.Updated = time.Now().UTC().Format(time.RFC3339)
	c.events[eventID] = stored
	return cloneEvent(stored), nil
}

func (m *Memory) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, Call{Method: MethodDelete, CalendarID: calendarID, EventID: eventID}); err != nil {
		return err
	}
	c, ok := m.calendars[calendarID]
	if !ok {
		return notFound("calendar", calendarID)
	}
	if _, ok := c.events[eventID]; !ok {
		return &googleapi.Error{Code: http.StatusGone, Message: "event already deleted: " + eventID}
	}
	c.remove(eventID)
	return nil
}

func (m *Memory) GetCalendar(ctx context.Context, calendarID string) (*gcal.Calendar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, Call{Method: MethodGetCalendar, CalendarID: calendarID}); err != nil {
		return nil, err
	}
	c, ok := m.calendars[calendarID]
	if !ok {
		return nil, notFound("calendar", calendarID)
	}
	meta := *c.meta
	return &meta, nil
}

// enter counts the call and runs failure hooks. Caller holds mu.
func (m *Memory) enter(ctx context.Context, c Call) error {
	m.calls[c.Method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, hook := range m.hooks {
		if err := hook(c); err != nil {
			return err
		}
	}
	return nil
}

// calendar returns calendarID, creating it when missing. Caller holds mu.
func (m *Memory) calendar(calendarID string) *memCalendar {
	c, ok := m.calendars[calendarID]
	if !ok {
		c = &memCalendar{
			meta:   &gcal.Calendar{Id: calendarID, Summary: calendarID},
			events: make(map[string]*gcal.Event),
		}
		m.calendars[calendarID] = c
	}
	return c
}

func (c *memCalendar) remove(eventID string) {
	if _, ok := c.events[eventID]; !ok {
		return
	}
	delete(c.events, eventID)
	for i, id := range c.order {
		if id == eventID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func newEventID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func notFound(kind, id string) error {
	return &googleapi.Error{Code: http.StatusNotFound, Message: fmt.Sprintf("%s not found: %s", kind, id)}
}

// cloneEvent deep-copies ev through its JSON form so callers never share
// storage with the double.
func cloneEvent(ev *gcal.Event) *gcal.Event {
	if ev == nil {
		return &gcal.Event{}
	}
	data, err := json.Marshal(ev)
	if err != nil {
		panic(fmt.Sprintf("clone event: %v", err))
	}
	var out gcal.Event
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("clone event: %v", err))
	}
	return &out
}
