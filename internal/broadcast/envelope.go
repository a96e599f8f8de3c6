// Package broadcast packages ledger snapshots into the typed envelopes the
// overlay display consumes, fans them out over the push transport, and
// keeps the last payload per event type in the store so a reconnecting
// display can resynchronize without waiting for the next mutation.
package broadcast

import (
	"encoding/json"
	"fmt"

	"setlist/bot/internal/ledger"
)

const (
	// EventFamily tags every envelope this service emits.
	EventFamily = "requests"

	EventTopSongs       = "top_songs"
	EventRequestHistory = "request_history"
	EventRequestsClosed = "requests_closed"
)

// Envelope is the wire shape the overlay parses. Data carries the
// JSON-encoded payload as a string, matching the display's double-decode,
// and is absent for requests_closed.
type Envelope struct {
	EventFamily string `json:"eventFamily"`
	EventType   string `json:"eventType"`
	Data        string `json:"data,omitempty"`
}

// TopSong is one row of the top_songs payload.
type TopSong struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Votes int    `json:"votes"`
}

// HistoryItem is one row of the request_history payload. Song is the
// display name, SongNameStd the normalized key, Time unix milliseconds.
type HistoryItem struct {
	RequestID   int64  `json:"requestId"`
	Sender      string `json:"sender"`
	Song        string `json:"song"`
	SongNameStd string `json:"songNameStd"`
	Time        int64  `json:"time"`
}

func topSongsEnvelope(entries []ledger.TopEntry) (Envelope, error) {
	payload := make([]TopSong, 0, len(entries))
	for _, e := range entries {
		payload = append(payload, TopSong{ID: e.ID, Name: e.Name, Votes: e.Votes})
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal top songs: %w", err)
	}
	return Envelope{EventFamily: EventFamily, EventType: EventTopSongs, Data: string(data)}, nil
}

func historyEnvelope(entries []ledger.HistoryEntry) (Envelope, error) {
	payload := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		payload = append(payload, HistoryItem{
			RequestID:   e.HistoryID,
			Sender:      e.Requester,
			Song:        e.SongDisplayName,
			SongNameStd: e.SongKey,
			Time:        e.Time.UnixMilli(),
		})
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal history: %w", err)
	}
	return Envelope{EventFamily: EventFamily, EventType: EventRequestHistory, Data: string(data)}, nil
}

func closedEnvelope() Envelope {
	return Envelope{EventFamily: EventFamily, EventType: EventRequestsClosed}
}
