// Package persist maps ledger state onto the section/key store and back.
// It is purely a (de)serialization layer: the ledger stays the source of
// truth while the process lives, and a failed save never rolls anything
// back.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"setlist/bot/internal/kv"
	"setlist/bot/internal/ledger"
)

const (
	// SectionSettings holds the session flag, the open-song key list, and
	// the serialized history log.
	SectionSettings = "requestSettings"
	// SectionSongs holds one record per open song, keyed by song key.
	SectionSongs = "requestSongs"

	keyIsOpen   = "isOpen"
	keySongKeys = "songKeys"
	keyHistory  = "history"
)

type songRecord struct {
	Name   string   `json:"name"`
	Voters []string `json:"voters"`
	Votes  int      `json:"votes"`
	ID     int64    `json:"id"`
}

type historyRecord struct {
	HistoryID int64  `json:"historyId"`
	Requester string `json:"requester"`
	Song      string `json:"song"`
	SongKey   string `json:"songKey"`
	Time      int64  `json:"time"`
}

// Save writes a ledger snapshot into the store: the settings section and a
// wholesale replacement of the songs section.
func Save(ctx context.Context, store kv.Store, snap ledger.Snapshot) error {
	songKeys := make([]string, 0, len(snap.Songs))
	songs := make(map[string]string, len(snap.Songs))
	for _, song := range snap.Songs {
		record, err := json.Marshal(songRecord{
			Name:   song.DisplayName,
			Voters: song.Voters,
			Votes:  song.VoteCount(),
			ID:     song.ID,
		})
		if err != nil {
			return fmt.Errorf("marshal song %q: %w", song.Key, err)
		}
		songKeys = append(songKeys, song.Key)
		songs[song.Key] = string(record)
	}

	history := make([]historyRecord, 0, len(snap.History))
	for _, entry := range snap.History {
		history = append(history, historyRecord{
			HistoryID: entry.HistoryID,
			Requester: entry.Requester,
			Song:      entry.SongDisplayName,
			SongKey:   entry.SongKey,
			Time:      entry.Time.UnixMilli(),
		})
	}

	keysJSON, err := json.Marshal(songKeys)
	if err != nil {
		return fmt.Errorf("marshal song keys: %w", err)
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	openValue := "false"
	if snap.Open {
		openValue = "true"
	}

	if err := store.PutSection(ctx, SectionSongs, songs); err != nil {
		return fmt.Errorf("save songs: %w", err)
	}
	if err := store.PutSection(ctx, SectionSettings, map[string]string{
		keyIsOpen:   openValue,
		keySongKeys: string(keysJSON),
		keyHistory:  string(historyJSON),
	}); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Load rebuilds a SessionState from the store. An empty store yields a
// fresh session with the configured default open flag. A song listed in
// songKeys whose record is missing or unreadable is skipped rather than
// aborting the whole load. Vote counts are re-derived from the voter list;
// the stored count is never trusted.
func Load(ctx context.Context, store kv.Store, defaultOpen bool) (*ledger.SessionState, error) {
	state := ledger.New(defaultOpen)

	settings, err := store.GetSection(ctx, SectionSettings)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if len(settings) == 0 {
		return state, nil
	}

	if openValue, ok := settings[keyIsOpen]; ok {
		state.SetOpen(openValue == "true")
	}

	var songKeys []string
	if raw, ok := settings[keySongKeys]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &songKeys); err != nil {
			log.Printf("persist: unreadable song key list, treating as empty: %v", err)
			songKeys = nil
		}
	}

	songs, err := store.GetSection(ctx, SectionSongs)
	if err != nil {
		return nil, fmt.Errorf("load songs: %w", err)
	}
	for _, key := range songKeys {
		raw, ok := songs[key]
		if !ok {
			log.Printf("persist: song %q listed but not stored, skipping", key)
			continue
		}
		var record songRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			log.Printf("persist: unreadable record for song %q, skipping: %v", key, err)
			continue
		}
		state.RestoreSong(ledger.Song{
			Key:         key,
			DisplayName: record.Name,
			ID:          record.ID,
			Voters:      record.Voters,
		})
	}

	if raw, ok := settings[keyHistory]; ok && raw != "" {
		var records []historyRecord
		if err := json.Unmarshal([]byte(raw), &records); err != nil {
			log.Printf("persist: unreadable history, treating as empty: %v", err)
		} else {
			entries := make([]ledger.HistoryEntry, 0, len(records))
			for _, r := range records {
				entries = append(entries, ledger.HistoryEntry{
					HistoryID:       r.HistoryID,
					Requester:       r.Requester,
					SongDisplayName: r.Song,
					SongKey:         r.SongKey,
					Time:            time.UnixMilli(r.Time),
				})
			}
			state.RestoreHistory(entries)
		}
	}

	return state, nil
}
