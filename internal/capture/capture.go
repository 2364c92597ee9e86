// Package capture reads recorded events from the local capture service's
// search API.
package capture

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"meetingd/internal/fetch"
	"meetingd/internal/logging"
	"meetingd/internal/session"
)

const (
	DefaultURL        = "http://localhost:3030"
	DefaultBatchLimit = 1000
)

// Query selects events by time range and modality.
type Query struct {
	Start time.Time
	End   time.Time
	Limit int
	Kind  session.Kind
}

// Client talks to the capture service.
type Client struct {
	http    *fetch.Client
	baseURL string
	logger  *logging.Logger
}

// New creates a Client for the service at baseURL.
func New(baseURL string, httpClient *fetch.Client, logger *logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.WithComponent("capture"),
	}
}

func (c *Client) searchURL(q Query) string {
	v := url.Values{}
	kind := q.Kind
	if kind == "" {
		kind = session.KindAudio
	}
	v.Set("content_type", string(kind))
	if !q.Start.IsZero() {
		v.Set("start_time", q.Start.UTC().Format(time.RFC3339))
	}
	if !q.End.IsZero() {
		v.Set("end_time", q.End.UTC().Format(time.RFC3339))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	v.Set("limit", strconv.Itoa(limit))
	return c.baseURL + "/search?" + v.Encode()
}

// Events runs a search and returns the matching events in the order the
// service returned them. Items of unknown type or with an unparseable
// timestamp are skipped.
func (c *Client) Events(ctx context.Context, q Query) ([]session.Event, error) {
	u := c.searchURL(q)
	var resp searchResponse
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}

	events := make([]session.Event, 0, len(resp.Data))
	skipped := 0
	for _, item := range resp.Data {
		e, ok := item.event()
		if !ok {
			skipped++
			continue
		}
		events = append(events, e)
	}
	if skipped > 0 {
		c.logger.Warn("skipped malformed search items", "skipped", skipped, "total", len(resp.Data))
	}
	c.logger.Debug("fetched events", "count", len(events), "start", q.Start, "end", q.End)
	return events, nil
}

type searchResponse struct {
	Data []searchItem `json:"data"`
}

type searchItem struct {
	Type    string      `json:"type"`
	Content itemContent `json:"content"`
}

// itemContent covers both the Audio and OCR content shapes.
type itemContent struct {
	Timestamp string `json:"timestamp"`

	Transcription string `json:"transcription"`
	DeviceName    string `json:"device_name"`
	DeviceType    string `json:"device_type"`

	Text       string `json:"text"`
	AppName    string `json:"app_name"`
	WindowName string `json:"window_name"`
}

func (it searchItem) event() (session.Event, bool) {
	ts, err := time.Parse(time.RFC3339Nano, it.Content.Timestamp)
	if err != nil {
		return session.Event{}, false
	}
	e := session.Event{
		Timestamp:  ts,
		DeviceName: it.Content.DeviceName,
		AppName:    it.Content.AppName,
		WindowName: it.Content.WindowName,
	}
	switch strings.ToLower(it.Type) {
	case "audio":
		e.Kind = session.KindAudio
		e.Text = it.Content.Transcription
		e.Device = session.ParseDeviceType(it.Content.DeviceType)
	case "ocr":
		e.Kind = session.KindOCR
		e.Text = it.Content.Text
		e.Device = session.DeviceUnknown
	default:
		return session.Event{}, false
	}
	return e, true
}
