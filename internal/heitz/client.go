// Package heitz is the session adapter for the HeitzFit booking site. It
// exposes the only two capabilities the engine needs: fetch the schedule for
// a date, and attempt a booking for a slot.
package heitz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/example/fitsched/internal/planning"
)

const (
	markerPlanningList = "ion-list.htz_booking_list"
	markerPlanningItem = "ion-item.pl-evt"
	markerLoginForm    = "input[type='email']"
)

// BookingOutcome is the business result of a booking attempt that reached
// the site. Transport failures are errors, not outcomes.
type BookingOutcome string

const (
	OutcomeBooked        BookingOutcome = "booked"
	OutcomeAlreadyFull   BookingOutcome = "already_full"
	OutcomeAlreadyBooked BookingOutcome = "already_booked"
)

// Credentials is a site login pair.
type Credentials struct {
	Login    string
	Password string
}

// Sink receives a diagnostic artifact for each failing call. Side channel
// only; capture failures never surface to the caller.
type Sink interface {
	CaptureFailure(prefix string, body []byte)
}

type nopSink struct{}

func (nopSink) CaptureFailure(string, []byte) {}

type Options struct {
	BaseURL  string
	CenterID string
	Monitor  Credentials
	Timeout  time.Duration
	Sink     Sink
	Log      *slog.Logger
}

// Client owns one authenticated session against the site, used for schedule
// fetches. Bookings run in short-lived per-user sessions. Not safe for
// concurrent use; the poll scheduler guarantees one cycle at a time.
type Client struct {
	http *resty.Client
	opts Options

	authenticated bool
}

func NewClient(opts Options) *Client {
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Client{
		http: newSiteClient(opts),
		opts: opts,
	}
}

func newSiteClient(opts Options) *resty.Client {
	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36").
		SetHeader("Accept-Language", "fr-FR,fr;q=0.9")
	// resty retries would fight the engine's retry policy
	c.SetRetryCount(0)
	return c
}

// Authenticate logs the monitor account in. Called lazily on first use and
// again when a fetch hits an expired session.
func (c *Client) Authenticate(ctx context.Context) error {
	if err := login(ctx, c.http, c.opts.CenterID, c.opts.Monitor, c.opts.Sink); err != nil {
		return err
	}
	c.authenticated = true
	return nil
}

func login(ctx context.Context, hc *resty.Client, centerID string, creds Credentials, sink Sink) error {
	resp, err := hc.R().
		SetContext(ctx).
		SetQueryParam("center", centerID).
		SetFormData(map[string]string{
			"email":    creds.Login,
			"password": creds.Password,
		}).
		Post("/login")
	if err != nil {
		return classifyTransport("/login", err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return &AuthError{Login: creds.Login, Reason: fmt.Sprintf("status %d", resp.StatusCode())}
	case resp.StatusCode() >= 400:
		sink.CaptureFailure("login", resp.Body())
		return &FetchError{Kind: FetchNavigation, URL: "/login", Err: fmt.Errorf("status %d", resp.StatusCode())}
	}
	// the login page echoes its form back on bad credentials
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body())); err == nil {
		if doc.Find(markerLoginForm).Length() > 0 {
			return &AuthError{Login: creds.Login, Reason: "login form returned"}
		}
	}
	return nil
}

// FetchSchedule returns every class slot on the planning page for a date. An
// empty schedule is a valid "no classes" result; a page missing the planning
// list marker is a ParseError, never an empty list.
func (c *Client) FetchSchedule(ctx context.Context, date time.Time) ([]planning.Entry, error) {
	if !c.authenticated {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	entries, err := c.fetchPlanning(ctx, date)
	var auth *AuthError
	if errors.As(err, &auth) && auth.Reason == "session expired" {
		// transparent re-login, once
		c.authenticated = false
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
		entries, err = c.fetchPlanning(ctx, date)
	}
	return entries, err
}

func (c *Client) fetchPlanning(ctx context.Context, date time.Time) ([]planning.Entry, error) {
	url := "/planning"
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"center": c.opts.CenterID,
			"date":   date.Format("2006-01-02"),
		}).
		Get(url)
	if err != nil {
		return nil, classifyTransport(url, err)
	}
	if resp.StatusCode() >= 400 {
		c.opts.Sink.CaptureFailure("planning", resp.Body())
		return nil, &FetchError{Kind: FetchNavigation, URL: url, Err: fmt.Errorf("status %d", resp.StatusCode())}
	}

	entries, err := parsePlanning(resp.Body(), date)
	if err != nil {
		c.opts.Sink.CaptureFailure("planning_parse", resp.Body())
		return nil, err
	}
	return entries, nil
}

func parsePlanning(body []byte, date time.Time) ([]planning.Entry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: "/planning", Missing: "html document"}
	}

	// an expired session bounces back to the login page
	if doc.Find(markerLoginForm).Length() > 0 {
		return nil, &AuthError{Reason: "session expired"}
	}

	list := doc.Find(markerPlanningList)
	if list.Length() == 0 {
		return nil, &ParseError{URL: "/planning", Missing: markerPlanningList}
	}

	weekday := planning.WeekdayName(date)
	var entries []planning.Entry
	list.Find(markerPlanningItem).Each(func(_ int, item *goquery.Selection) {
		start := text(item, ".pl-evt-start")
		activity := text(item, ".pl-evt-label")
		if start == "" || activity == "" {
			return
		}
		room := strings.TrimSpace(strings.TrimPrefix(text(item, ".pl-evt-room"), "@"))
		capacity := item.Find(".pl-evt-capacity")

		e := planning.Entry{
			Weekday:      weekday,
			Date:         date,
			StartTime:    start,
			ActivityName: activity,
			Room:         room,
			Capacity:     strings.TrimSpace(capacity.Text()),
			IsBooked:     item.Find(".pl-evt-status.booked").Length() > 0,
		}
		if class, ok := capacity.Attr("class"); ok {
			e.IsFull = strings.Contains(class, "is-full")
		}
		e.Signature = planning.Fingerprint(e.Weekday, e.StartTime, e.ActivityName, e.Room)
		entries = append(entries, e)
	})
	return entries, nil
}

// Book attempts to reserve a slot as the given member. Each attempt runs in
// its own short-lived session so the monitor session never changes identity.
func (c *Client) Book(ctx context.Context, creds Credentials, entry planning.Entry) (BookingOutcome, error) {
	hc := newSiteClient(c.opts)

	if err := login(ctx, hc, c.opts.CenterID, creds, c.opts.Sink); err != nil {
		return "", err
	}

	// re-locate the slot under the member session to obtain its event id
	resp, err := hc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"center": c.opts.CenterID,
			"date":   entry.Date.Format("2006-01-02"),
		}).
		Get("/planning")
	if err != nil {
		return "", classifyTransport("/planning", err)
	}
	if resp.StatusCode() >= 400 {
		c.opts.Sink.CaptureFailure("book_planning", resp.Body())
		return "", &FetchError{Kind: FetchNavigation, URL: "/planning", Err: fmt.Errorf("status %d", resp.StatusCode())}
	}

	eventID, state, err := locateEvent(resp.Body(), entry)
	if err != nil {
		c.opts.Sink.CaptureFailure("book_locate", resp.Body())
		return "", err
	}
	switch state {
	case OutcomeAlreadyBooked, OutcomeAlreadyFull:
		return state, nil
	}

	bresp, err := hc.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"center": c.opts.CenterID,
			"event":  eventID,
		}).
		Post("/planning/book")
	if err != nil {
		return "", classifyTransport("/planning/book", err)
	}
	switch {
	case bresp.StatusCode() == http.StatusConflict:
		// lost the race for the last place
		return OutcomeAlreadyFull, nil
	case bresp.StatusCode() >= 400:
		c.opts.Sink.CaptureFailure("book", bresp.Body())
		return "", &FetchError{Kind: FetchNavigation, URL: "/planning/book", Err: fmt.Errorf("status %d", bresp.StatusCode())}
	}

	c.opts.Log.Info("slot booked", "login", creds.Login, "activity", entry.ActivityName, "start", entry.StartTime)
	return OutcomeBooked, nil
}

// locateEvent finds the planning item matching the entry's signature and
// reads its site event id and current state.
func locateEvent(body []byte, entry planning.Entry) (string, BookingOutcome, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", &ParseError{URL: "/planning", Missing: "html document"}
	}
	list := doc.Find(markerPlanningList)
	if list.Length() == 0 {
		return "", "", &ParseError{URL: "/planning", Missing: markerPlanningList}
	}

	var (
		eventID string
		state   BookingOutcome
		found   bool
	)
	list.Find(markerPlanningItem).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		start := text(item, ".pl-evt-start")
		activity := text(item, ".pl-evt-label")
		room := strings.TrimSpace(strings.TrimPrefix(text(item, ".pl-evt-room"), "@"))
		sig := planning.Fingerprint(entry.Weekday, start, activity, room)
		if sig != entry.Signature {
			return true
		}
		found = true
		eventID, _ = item.Attr("data-evt-id")
		switch {
		case item.Find(".pl-evt-status.booked").Length() > 0:
			state = OutcomeAlreadyBooked
		default:
			if class, ok := item.Find(".pl-evt-capacity").Attr("class"); ok && strings.Contains(class, "is-full") {
				state = OutcomeAlreadyFull
			}
		}
		return false
	})
	if !found {
		// the slot vanished between the diff and the booking; treat as full
		return "", OutcomeAlreadyFull, nil
	}
	if state != "" {
		return eventID, state, nil
	}
	if eventID == "" {
		return "", "", &ParseError{URL: "/planning", Missing: "data-evt-id"}
	}
	return eventID, "", nil
}

func classifyTransport(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) || isTimeout(err) {
		return &FetchError{Kind: FetchTimeout, URL: url, Err: err}
	}
	return &FetchError{Kind: FetchNavigation, URL: url, Err: err}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func text(s *goquery.Selection, selector string) string {
	return strings.TrimSpace(s.Find(selector).Text())
}
