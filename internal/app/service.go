package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"setlist/bot/internal/broadcast"
	"setlist/bot/internal/config"
	"setlist/bot/internal/kv"
	"setlist/bot/internal/lang"
	"setlist/bot/internal/ledger"
	"setlist/bot/internal/persist"
)

// moderatorLevel is the highest permission number still trusted with the
// open/close/reset/refresh/played/delete verbs. The command collaborator
// uses the 0 (owner) .. 7 (everyone) scale.
const moderatorLevel = 2

const statusHint = ` Use "!songrequests [top | new]" to see requests.`

// Hook runs after an in-memory mutation with a fresh snapshot. Hooks are
// fire-and-forget relative to the chat reply: they run off the reply path
// and their failures are logged, never rolled back into the ledger.
type Hook func(ctx context.Context, snap ledger.Snapshot)

// Command is one tokenized chat event, delivered by the command-dispatch
// collaborator with the sender identity and permission level resolved.
type Command struct {
	Sender     string   `json:"sender"`
	Permission int      `json:"permission"`
	Command    string   `json:"command"`
	Args       []string `json:"args"`
}

// Service wires the ledger to the broadcast emitter and the persistence
// bridge and exposes the chat verbs.
type Service struct {
	cfg     config.Config
	state   *ledger.SessionState
	store   kv.Store
	emitter *broadcast.Emitter
	lang    *lang.Registry

	hooks []Hook

	hookMu   sync.Mutex
	lastHook chan struct{}
	wg       sync.WaitGroup
}

func New(cfg config.Config, state *ledger.SessionState, store kv.Store, emitter *broadcast.Emitter, registry *lang.Registry) *Service {
	s := &Service{
		cfg:     cfg,
		state:   state,
		store:   store,
		emitter: emitter,
		lang:    registry,
	}
	s.hooks = []Hook{s.broadcastHook, s.persistHook}
	return s
}

// AddHook appends to the post-mutation hook list.
func (s *Service) AddHook(hook Hook) {
	s.hooks = append(s.hooks, hook)
}

// notify runs the hook list against a fresh snapshot, off the caller's
// path. The context is detached so hooks survive the chat reply returning.
// Batches are chained in submission order, so broadcasts and saves never
// apply a stale snapshot over a newer one.
func (s *Service) notify(ctx context.Context) {
	snap := s.state.Snapshot()
	hookCtx := context.WithoutCancel(ctx)

	s.hookMu.Lock()
	prev := s.lastHook
	done := make(chan struct{})
	s.lastHook = done
	s.hookMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		for _, hook := range s.hooks {
			hook(hookCtx, snap)
		}
	}()
}

// Flush waits for in-flight hooks. Used at shutdown and by tests.
func (s *Service) Flush() {
	s.wg.Wait()
}

func (s *Service) broadcastHook(ctx context.Context, snap ledger.Snapshot) {
	if !snap.Open {
		if err := s.emitter.EmitClosed(ctx); err != nil {
			log.Printf("broadcast closed notice: %v", err)
		}
		// Displays only show the closed notice, but the cached snapshots
		// still track the mutation so the pull path never serves stale
		// songs after a closed-session reset or delete.
		if err := s.emitter.CacheTopSongs(ctx, rankSongs(snap.Songs)); err != nil {
			log.Printf("cache top songs: %v", err)
		}
		if err := s.emitter.CacheHistory(ctx, newestFirst(snap.History, s.cfg.HistoryBroadcastLimit)); err != nil {
			log.Printf("cache history: %v", err)
		}
		return
	}
	if err := s.emitter.EmitTopSongs(ctx, rankSongs(snap.Songs)); err != nil {
		log.Printf("broadcast top songs: %v", err)
	}
	if err := s.emitter.EmitHistory(ctx, newestFirst(snap.History, s.cfg.HistoryBroadcastLimit)); err != nil {
		log.Printf("broadcast history: %v", err)
	}
}

// rankSongs orders a snapshot's songs like ledger.TopRequests: descending
// votes, ascending id on ties.
func rankSongs(songs []ledger.Song) []ledger.TopEntry {
	entries := make([]ledger.TopEntry, 0, len(songs))
	for _, song := range songs {
		entries = append(entries, ledger.TopEntry{ID: song.ID, Name: song.DisplayName, Votes: song.VoteCount()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Votes != entries[j].Votes {
			return entries[i].Votes > entries[j].Votes
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

func newestFirst(history []ledger.HistoryEntry, limit int) []ledger.HistoryEntry {
	n := len(history)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]ledger.HistoryEntry, 0, n)
	for i := len(history) - 1; i >= len(history)-n; i-- {
		out = append(out, history[i])
	}
	return out
}

func (s *Service) persistHook(ctx context.Context, snap ledger.Snapshot) {
	if err := persist.Save(ctx, s.store, snap); err != nil {
		log.Printf("persist session: %v", err)
	}
}

// HandleCommand dispatches one chat event and returns the rendered reply.
// User-visible rejections come back as both a reply string and a
// *DomainError so transport surfaces can carry the code.
func (s *Service) HandleCommand(ctx context.Context, cmd Command) (string, error) {
	verb := strings.ToLower(strings.TrimSpace(cmd.Command))
	switch verb {
	case "request":
		return s.Request(ctx, cmd.Sender, strings.Join(cmd.Args, " "))
	case "songrequests":
		return s.handleSongRequests(ctx, cmd)
	}
	return s.lang.Get("songrequest.usage"),
		domainError(http.StatusBadRequest, "UNKNOWN_ACTION", "unknown command: "+verb, nil)
}

func (s *Service) handleSongRequests(ctx context.Context, cmd Command) (string, error) {
	if len(cmd.Args) == 0 {
		return s.Status(), nil
	}
	action := strings.ToLower(cmd.Args[0])
	rest := cmd.Args[1:]

	switch action {
	case "top":
		limit := s.cfg.TopChatLimit
		if len(rest) > 0 {
			if n, err := strconv.Atoi(rest[0]); err == nil && n > 0 && n < limit {
				limit = n
			}
		}
		return s.Top(limit), nil
	case "new":
		return s.Newest(s.cfg.NewChatLimit), nil
	}

	switch action {
	case "open", "close", "reset", "refresh", "played", "delete":
	default:
		return s.lang.Get("songrequest.usage"),
			domainError(http.StatusBadRequest, "UNKNOWN_ACTION", "unknown action: "+action, nil)
	}

	if cmd.Permission > moderatorLevel {
		reply := s.lang.Get("songrequest.nopermission")
		return reply, domainError(http.StatusForbidden, "FORBIDDEN", reply, nil)
	}

	switch action {
	case "open":
		return s.OpenRequests(ctx)
	case "close":
		return s.CloseRequests(ctx)
	case "reset":
		return s.ResetRequests(ctx), nil
	case "refresh":
		return s.Refresh(ctx), nil
	case "played":
		return s.Played(ctx, strings.Join(rest, " "))
	default:
		return s.Delete(ctx, strings.Join(rest, " "))
	}
}

// Request submits one vote.
func (s *Service) Request(ctx context.Context, sender, text string) (string, error) {
	acc, err := s.state.SubmitVote(sender, text)
	if err != nil {
		var reply string
		switch {
		case errors.Is(err, ledger.ErrNotOpen):
			reply = s.lang.Get("songrequest.request.notopen")
		case errors.Is(err, ledger.ErrEmptyName):
			reply = s.lang.Get("songrequest.reject.empty")
		case errors.Is(err, ledger.ErrTooLong):
			reply = s.lang.Get("songrequest.reject.length", strings.TrimSpace(text))
		case errors.Is(err, ledger.ErrDuplicateVote):
			reply = s.lang.Get("songrequest.request.already")
		default:
			reply = s.lang.Get("songrequest.usage")
		}
		return reply, ledgerError(err, reply)
	}

	s.notify(ctx)
	return s.lang.Get("songrequest.request.accepted", acc.Song.DisplayName, acc.VoteCount), nil
}

// Status answers the bare songrequests query.
func (s *Service) Status() string {
	if s.state.IsOpen() {
		return s.lang.Get("songrequest.defaultaction.open", statusHint)
	}
	return s.lang.Get("songrequest.defaultaction.closed")
}

// OpenRequests opens the session and triggers a full broadcast so the
// display rebuilds from scratch.
func (s *Service) OpenRequests(ctx context.Context) (string, error) {
	if !s.state.Open() {
		reply := s.lang.Get("songrequest.action.openagain")
		return reply, domainError(http.StatusConflict, "ALREADY_OPEN", reply, nil)
	}
	s.notify(ctx)
	return s.lang.Get("songrequest.action.open"), nil
}

// CloseRequests closes the session and broadcasts the closed notice.
func (s *Service) CloseRequests(ctx context.Context) (string, error) {
	if !s.state.Close() {
		reply := s.lang.Get("songrequest.action.closeagain")
		return reply, domainError(http.StatusConflict, "ALREADY_CLOSED", reply, nil)
	}
	s.notify(ctx)
	return s.lang.Get("songrequest.action.close"), nil
}

// ResetRequests clears the open songs and history.
func (s *Service) ResetRequests(ctx context.Context) string {
	s.state.Reset()
	s.notify(ctx)
	return s.lang.Get("songrequest.action.reset")
}

// Top renders up to limit ranked entries as chat text.
func (s *Service) Top(limit int) string {
	entries := s.state.TopRequests(limit)
	if len(entries) == 0 {
		return s.lang.Get("songrequest.norequests")
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("(%d) %s", e.Votes, e.Name))
	}
	return s.lang.Get("songrequest.action.top", strings.Join(parts, " , "))
}

// Newest renders up to limit most recent history entries as chat text. The
// vote total is the song's current count; a song that has since been played
// or deleted renders without one.
func (s *Service) Newest(limit int) string {
	entries := s.state.RecentHistory(limit)
	if len(entries) == 0 {
		return s.lang.Get("songrequest.norequests")
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		part := fmt.Sprintf("%s requested %s", e.Requester, e.SongDisplayName)
		if votes, ok := s.state.VotesFor(e.SongKey); ok {
			part = fmt.Sprintf("%s (%d total)", part, votes)
		}
		parts = append(parts, part)
	}
	return s.lang.Get("songrequest.action.new", strings.Join(parts, " , "))
}

// Played marks a song as played and reports how many voters it had.
func (s *Service) Played(ctx context.Context, text string) (string, error) {
	song, err := s.state.MarkPlayed(text)
	if err != nil {
		reply := s.lang.Get("songrequest.notfound", strings.TrimSpace(text))
		return reply, ledgerError(err, reply)
	}
	s.notify(ctx)
	return s.lang.Get("songrequest.action.played", song.DisplayName, song.VoteCount()), nil
}

// Delete discards a song without archiving it.
func (s *Service) Delete(ctx context.Context, text string) (string, error) {
	song, err := s.state.DeleteRequest(text)
	if err != nil {
		reply := s.lang.Get("songrequest.notfound", strings.TrimSpace(text))
		return reply, ledgerError(err, reply)
	}
	s.notify(ctx)
	return s.lang.Get("songrequest.action.deleted", song.DisplayName), nil
}

// Refresh re-emits the current state without mutating anything, so a stale
// or freshly connected display converges.
func (s *Service) Refresh(ctx context.Context) string {
	s.notify(ctx)
	return s.lang.Get("songrequest.action.refreshed")
}

// CachedEnvelope answers the display pull path from the broadcast cache.
func (s *Service) CachedEnvelope(ctx context.Context, eventType string) ([]byte, bool, error) {
	return s.emitter.Cached(ctx, eventType)
}

// Ping reports store reachability for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
