// Package loki pushes front-desk telemetry events to Grafana Loki over the v1 push API.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gym-frontdesk/backend/internal/telemetry/domain"
)

const (
	defaultTimeout = 15 * time.Second
	pushPath       = "/loki/api/v1/push"
	// jobLabel is the job label on every stream.
	jobLabel = "gym-frontdesk"
)

// ErrNoBaseURL is returned by NewClient for an empty Loki URL.
var ErrNoBaseURL = errors.New("loki: base URL is empty")

// label values keep to a conservative charset; names are fixed by this package.
var unsafeLabelChars = regexp.MustCompile(`[^a-zA-Z0-9_\-:.]`)

// Entry is one log line and the labels of the stream it belongs to.
type Entry struct {
	Labels map[string]string
	Time   time.Time
	Line   string
}

// Client pushes entries to one Loki instance.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100).
func NewClient(baseURL string) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	return &Client{
		url:  strings.TrimSuffix(baseURL, "/") + pushPath,
		http: &http.Client{Timeout: defaultTimeout},
	}, nil
}

// EntryFromEvent builds the entry for one serialized telemetry event (a Kafka message value).
// Event type, source and severity become labels; user, shift and request ids stay in the line.
// Input that does not decode as an event is pushed as-is, stamped with now.
func EntryFromEvent(raw []byte, now time.Time) Entry {
	e := Entry{Labels: map[string]string{}, Time: now, Line: string(raw)}
	var ev domain.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		e.Labels["severity"] = "unknown"
		return e
	}
	if ev.Type != "" {
		e.Labels["event_type"] = ev.Type
	}
	if ev.Source != "" {
		e.Labels["source"] = ev.Source
	}
	e.Labels["severity"] = severity(ev.Type)
	if !ev.CreatedAt.IsZero() {
		e.Time = ev.CreatedAt
	}
	return e
}

func severity(eventType string) string {
	if domain.NeedsAttention(eventType) {
		return "warn"
	}
	return "info"
}

// Push sends entries in one request, grouping entries with identical labels into one stream.
func (c *Client) Push(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(pushRequest{Streams: groupStreams(entries)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("loki: push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}

type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	// Values holds [unix nanoseconds, line] pairs.
	Values [][2]string `json:"values"`
}

func groupStreams(entries []Entry) []stream {
	var (
		out   []stream
		index = map[string]int{}
	)
	for _, e := range entries {
		labels := streamLabels(e.Labels)
		key := labelKey(labels)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, stream{Stream: labels})
		}
		out[i].Values = append(out[i].Values, [2]string{strconv.FormatInt(e.Time.UnixNano(), 10), e.Line})
	}
	return out
}

func streamLabels(in map[string]string) map[string]string {
	labels := make(map[string]string, len(in)+1)
	for k, v := range in {
		if s := unsafeLabelChars.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			labels[k] = s
		}
	}
	labels["job"] = jobLabel
	return labels
}

// labelKey is a canonical form of a label set; json.Marshal sorts map keys.
func labelKey(labels map[string]string) string {
	b, _ := json.Marshal(labels)
	return string(b)
}
