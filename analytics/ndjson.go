package analytics

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	finalize "github.com/goliatone/go-finalize"
)

const (
	RecordIdentify = "identify"
	RecordTrack    = "track"
)

// Record is the serialized form of an identify or track call.
type Record struct {
	Type        string         `json:"type"`
	Event       string         `json:"event,omitempty"`
	Identity    string         `json:"identity"`
	UserID      string         `json:"user_id,omitempty"`
	UserEmail   string         `json:"user_email,omitempty"`
	AccountID   string         `json:"account_id,omitempty"`
	AccountName string         `json:"account_name,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	OccurredAt  string         `json:"occurred_at"`
}

func identifyRecord(user *finalize.User, identity string, at time.Time) Record {
	rec := Record{
		Type:       RecordIdentify,
		Identity:   identity,
		OccurredAt: at.UTC().Format(time.RFC3339Nano),
	}
	if user != nil {
		rec.UserID = user.ID
		rec.UserEmail = user.Email
	}
	return rec
}

func trackRecord(event finalize.TrackEvent) Record {
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	rec := Record{
		Type:       RecordTrack,
		Event:      event.Event,
		Identity:   event.Identity,
		Properties: event.Properties,
		OccurredAt: at.UTC().Format(time.RFC3339Nano),
	}
	if event.Account != nil {
		rec.AccountID = event.Account.ID
		rec.AccountName = event.Account.Name
	}
	return rec
}

// NDJSONTransport writes analytics calls as newline-delimited JSON.
type NDJSONTransport struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

var _ finalize.AnalyticsTransport = (*NDJSONTransport)(nil)

func NewNDJSONTransport(w io.Writer) *NDJSONTransport {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	return &NDJSONTransport{enc: enc, now: time.Now}
}

func (t *NDJSONTransport) Identify(ctx context.Context, user *finalize.User, identity string) error {
	return t.write(ctx, identifyRecord(user, identity, t.now()))
}

func (t *NDJSONTransport) Track(ctx context.Context, event finalize.TrackEvent) error {
	return t.write(ctx, trackRecord(event))
}

func (t *NDJSONTransport) write(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enc.Encode(rec)
}
