// Package heartbeat posts lightweight liveness pings to an optional monitor
// endpoint so an invigilator dashboard can see which seats are active and
// how many results still wait for sync. Failures are logged and swallowed;
// the exam never blocks on monitoring.
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const requestTimeout = 5 * time.Second

// Reporter sends heartbeat events. A nil Reporter is valid and does
// nothing, which is how a blank HEARTBEAT_URL is handled.
type Reporter struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// New returns nil when url is empty.
func New(url string, log zerolog.Logger) *Reporter {
	if url == "" {
		return nil
	}
	return &Reporter{
		url:    url,
		client: &http.Client{Timeout: requestTimeout},
		log:    log.With().Str("component", "heartbeat").Logger(),
	}
}

type event struct {
	Event       string `json:"event"`
	StudentName string `json:"studentName,omitempty"`
	Subject     string `json:"subject,omitempty"`
	PendingSync int    `json:"pendingSyncs,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Activity reports that a student started or resumed an exam.
func (r *Reporter) Activity(studentName, subject string) {
	if r == nil {
		return
	}
	r.post(event{Event: "session-active", StudentName: studentName, Subject: subject})
}

// PendingSyncs reports the current offline queue depth.
func (r *Reporter) PendingSyncs(n int) {
	if r == nil {
		return
	}
	r.post(event{Event: "pending-syncs", PendingSync: n})
}

func (r *Reporter) post(ev event) {
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		r.log.Debug().Err(err).Msg("Heartbeat request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Debug().Err(err).Str("event", ev.Event).Msg("Heartbeat not delivered")
		return
	}
	resp.Body.Close()
}
