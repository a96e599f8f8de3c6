package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"setlist/bot/internal/kv"
	"setlist/bot/internal/ledger"
)

// SectionCache is the store section holding the last envelope per event
// type, read by the pull path.
const SectionCache = "requestCache"

// Transport delivers a JSON payload to every connected display client.
// Delivery is best-effort; a missed broadcast is recovered by the next full
// snapshot or the pull path.
type Transport interface {
	SendJSONToAll(payload []byte)
}

// Emitter builds envelopes from ledger state and hands them to the
// transport. Every envelope carries the complete current state for its
// event type, never a delta, so any single broadcast fully resynchronizes
// a display.
type Emitter struct {
	transport    Transport
	store        kv.Store
	historyLimit int
}

func NewEmitter(transport Transport, store kv.Store, historyLimit int) *Emitter {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Emitter{transport: transport, store: store, historyLimit: historyLimit}
}

// EmitTopSongs broadcasts the full current ranking.
func (e *Emitter) EmitTopSongs(ctx context.Context, entries []ledger.TopEntry) error {
	env, err := topSongsEnvelope(entries)
	if err != nil {
		return err
	}
	return e.send(ctx, env, true)
}

// EmitHistory broadcasts the recent history, newest first, capped at the
// configured broadcast limit.
func (e *Emitter) EmitHistory(ctx context.Context, entries []ledger.HistoryEntry) error {
	env, err := historyEnvelope(e.capHistory(entries))
	if err != nil {
		return err
	}
	return e.send(ctx, env, true)
}

// EmitClosed broadcasts the closed notice.
func (e *Emitter) EmitClosed(ctx context.Context) error {
	return e.send(ctx, closedEnvelope(), true)
}

// CacheTopSongs updates the cached top_songs envelope without broadcasting.
// Used when the session is closed: displays only show the closed notice,
// but the pull path must not serve pre-mutation songs.
func (e *Emitter) CacheTopSongs(ctx context.Context, entries []ledger.TopEntry) error {
	env, err := topSongsEnvelope(entries)
	if err != nil {
		return err
	}
	return e.send(ctx, env, false)
}

// CacheHistory updates the cached request_history envelope without
// broadcasting.
func (e *Emitter) CacheHistory(ctx context.Context, entries []ledger.HistoryEntry) error {
	env, err := historyEnvelope(e.capHistory(entries))
	if err != nil {
		return err
	}
	return e.send(ctx, env, false)
}

func (e *Emitter) capHistory(entries []ledger.HistoryEntry) []ledger.HistoryEntry {
	if len(entries) > e.historyLimit {
		entries = entries[:e.historyLimit]
	}
	return entries
}

func (e *Emitter) send(ctx context.Context, env Envelope, deliver bool) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if deliver {
		e.transport.SendJSONToAll(payload)
	}
	if err := e.store.Put(ctx, SectionCache, env.EventType, string(payload)); err != nil {
		return fmt.Errorf("cache %s envelope: %w", env.EventType, err)
	}
	return nil
}

// Cached answers the pull path: the last envelope broadcast for eventType,
// straight from the store. The bool reports whether one exists.
func (e *Emitter) Cached(ctx context.Context, eventType string) ([]byte, bool, error) {
	raw, ok, err := e.store.Get(ctx, SectionCache, eventType)
	if err != nil {
		return nil, false, fmt.Errorf("read cached %s: %w", eventType, err)
	}
	if !ok {
		return nil, false, nil
	}
	return []byte(raw), true, nil
}
