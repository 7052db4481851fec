package telemetry

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/verbatimhq/verbatim/internal/storage/pebble"
	"github.com/verbatimhq/verbatim/internal/transcript"
)

// Severity of an alert record.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an actionable operator signal. Alerts are upserted by stable ID:
// re-raising an existing alert updates it in place, never duplicates it.
type Alert struct {
	ID          string            `json:"id"`
	Severity    Severity          `json:"severity"`
	Category    string            `json:"category"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Actionable  bool              `json:"actionable"`
	Count       int64             `json:"count"`
	CreatedAtMs int64             `json:"createdAtMs"`
	UpdatedAtMs int64             `json:"updatedAtMs"`
}

// AlertStore persists alerts in the shared keyspace.
type AlertStore struct {
	db  *pebblestore.DB
	now func() time.Time
}

// NewAlertStore returns an AlertStore over db.
func NewAlertStore(db *pebblestore.DB) *AlertStore {
	return &AlertStore{db: db, now: time.Now}
}

// Upsert creates the alert or updates the existing record with the same ID,
// preserving CreatedAtMs and bumping Count.
func (s *AlertStore) Upsert(a Alert) error {
	key := transcript.KeyAlert(a.ID)
	nowMs := s.now().UnixMilli()

	if b, err := s.db.Get(key); err == nil {
		var prev Alert
		if err := json.Unmarshal(b, &prev); err == nil {
			a.CreatedAtMs = prev.CreatedAtMs
			a.Count = prev.Count + 1
			a.UpdatedAtMs = nowMs
			return s.put(key, a)
		}
	} else if !pebblestore.IsNotFound(err) {
		return err
	}
	a.CreatedAtMs = nowMs
	a.UpdatedAtMs = nowMs
	a.Count = 1
	return s.put(key, a)
}

func (s *AlertStore) put(key []byte, a Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.db.Set(key, b)
}

// Get returns one alert by ID.
func (s *AlertStore) Get(id string) (Alert, bool, error) {
	b, err := s.db.Get(transcript.KeyAlert(id))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Alert{}, false, nil
		}
		return Alert{}, false, err
	}
	var a Alert
	if err := json.Unmarshal(b, &a); err != nil {
		return Alert{}, false, err
	}
	return a, true, nil
}

// List returns all alerts, unordered beyond key order.
func (s *AlertStore) List() ([]Alert, error) {
	prefix := transcript.KeyAlertPrefix()
	upper := append(append([]byte(nil), prefix...), 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Alert
	for ok := iter.First(); ok; ok = iter.Next() {
		var a Alert
		if err := json.Unmarshal(iter.Value(), &a); err == nil {
			out = append(out, a)
		}
	}
	return out, nil
}
