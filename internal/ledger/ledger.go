// Package ledger owns the in-memory request state for one channel: the open
// song set with per-song vote tallies, the append-only activity history, the
// played archive, and the open/closed session gate.
//
// The whole SessionState is guarded by one coarse mutex. Request volume is
// chat-paced, so a single lock keeps every reader from observing a
// half-applied vote without any finer-grained machinery.
package ledger

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"setlist/bot/internal/songkey"
)

var (
	ErrNotOpen       = errors.New("requests are not open")
	ErrEmptyName     = errors.New("song name is empty")
	ErrTooLong       = errors.New("song name is too long")
	ErrDuplicateVote = errors.New("voter already voted for this song")
	ErrNotFound      = errors.New("song not found")
)

// Song is one request target. Key is the normalized lookup string,
// DisplayName the raw spelling of the first vote. Voters is append-only and
// holds each identity at most once; the vote count is always len(Voters).
type Song struct {
	Key         string
	DisplayName string
	ID          int64
	Voters      []string
}

func (s Song) VoteCount() int { return len(s.Voters) }

func (s Song) hasVoter(voter string) bool {
	for _, v := range s.Voters {
		if strings.EqualFold(v, voter) {
			return true
		}
	}
	return false
}

func (s Song) clone() Song {
	out := s
	out.Voters = append([]string(nil), s.Voters...)
	return out
}

// HistoryEntry is one accepted vote. Song names are denormalized so the
// entry survives the song being played, deleted, or reset away.
type HistoryEntry struct {
	HistoryID       int64
	Requester       string
	SongDisplayName string
	SongKey         string
	Time            time.Time
}

// TopEntry is one row of the ranked request list.
type TopEntry struct {
	ID    int64
	Name  string
	Votes int
}

// Accepted reports the outcome of a successful vote.
type Accepted struct {
	Song      Song
	VoteCount int
}

// Snapshot is a deep copy of the persistable state, safe to hand to
// broadcast and persistence without holding the ledger lock.
type Snapshot struct {
	Open    bool
	Songs   []Song
	History []HistoryEntry
}

// SessionState is the unit of persistence: one channel's ledger plus its
// open/closed gate. Zero value is not usable; construct with New.
type SessionState struct {
	mu            sync.Mutex
	open          bool
	songs         map[string]*Song
	history       []HistoryEntry
	played        []Song
	nextSongID    int64
	nextHistoryID int64
	now           func() time.Time
}

func New(defaultOpen bool) *SessionState {
	return &SessionState{
		open:  defaultOpen,
		songs: make(map[string]*Song),
		now:   time.Now,
	}
}

// SubmitVote records one vote by voter for the song named by raw text. It is
// the only writer of votes and history. The session gate is enforced here,
// not by the caller: a closed session rejects every vote with ErrNotOpen and
// leaves the ledger untouched.
func (st *SessionState) SubmitVote(voter, raw string) (Accepted, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.open {
		return Accepted{}, ErrNotOpen
	}

	key := songkey.Normalize(raw)
	if key == "" {
		return Accepted{}, ErrEmptyName
	}
	if songkey.TooLong(key) {
		return Accepted{}, ErrTooLong
	}

	song, exists := st.songs[key]
	if exists {
		if song.hasVoter(voter) {
			return Accepted{}, ErrDuplicateVote
		}
	} else {
		song = &Song{
			Key:         key,
			DisplayName: strings.TrimSpace(raw),
			ID:          st.nextSongID,
		}
		st.nextSongID++
		st.songs[key] = song
	}

	// Voter append and history append happen under the same lock so no
	// reader sees a vote without its history entry.
	song.Voters = append(song.Voters, voter)
	st.history = append(st.history, HistoryEntry{
		HistoryID:       st.nextHistoryID,
		Requester:       voter,
		SongDisplayName: song.DisplayName,
		SongKey:         song.Key,
		Time:            st.now(),
	})
	st.nextHistoryID++

	return Accepted{Song: song.clone(), VoteCount: song.VoteCount()}, nil
}

// TopRequests returns the ranked open songs, strictly descending by vote
// count. Ties break on ascending song id, so the earlier request wins.
// A limit <= 0 returns the full ranking.
func (st *SessionState) TopRequests(limit int) []TopEntry {
	st.mu.Lock()
	defer st.mu.Unlock()

	entries := make([]TopEntry, 0, len(st.songs))
	for _, song := range st.songs {
		entries = append(entries, TopEntry{
			ID:    song.ID,
			Name:  song.DisplayName,
			Votes: song.VoteCount(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Votes != entries[j].Votes {
			return entries[i].Votes > entries[j].Votes
		}
		return entries[i].ID < entries[j].ID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// RecentHistory returns at most limit entries, most recent first.
// A limit <= 0 returns the full log.
func (st *SessionState) RecentHistory(limit int) []HistoryEntry {
	st.mu.Lock()
	defer st.mu.Unlock()

	n := len(st.history)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]HistoryEntry, 0, n)
	for i := len(st.history) - 1; i >= len(st.history)-n; i-- {
		out = append(out, st.history[i])
	}
	return out
}

// VotesFor returns the current vote count for the song a history entry
// refers to, and false when that song is no longer in the open set.
func (st *SessionState) VotesFor(key string) (int, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	song, ok := st.songs[key]
	if !ok {
		return 0, false
	}
	return song.VoteCount(), true
}

// MarkPlayed removes the song named by raw from the open set and archives
// it. The returned song carries the full voter list so callers can notify
// the requesters. History is untouched.
func (st *SessionState) MarkPlayed(raw string) (Song, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	key := songkey.Normalize(raw)
	song, ok := st.songs[key]
	if !ok {
		return Song{}, ErrNotFound
	}
	delete(st.songs, key)
	archived := song.clone()
	st.played = append(st.played, archived)
	return archived.clone(), nil
}

// DeleteRequest discards the song named by raw without archiving it.
func (st *SessionState) DeleteRequest(raw string) (Song, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	key := songkey.Normalize(raw)
	song, ok := st.songs[key]
	if !ok {
		return Song{}, ErrNotFound
	}
	delete(st.songs, key)
	return song.clone(), nil
}

// Reset clears the open songs and the entire history. The played archive
// and both id counters survive, so ids stay globally increasing.
func (st *SessionState) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.songs = make(map[string]*Song)
	st.history = nil
}

// Open transitions the session to open. Returns false when already open.
func (st *SessionState) Open() bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.open {
		return false
	}
	st.open = true
	return true
}

// Close transitions the session to closed. Returns false when already
// closed. Moderation (played, delete, reset) keeps working while closed;
// only SubmitVote is gated.
func (st *SessionState) Close() bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.open {
		return false
	}
	st.open = false
	return true
}

func (st *SessionState) IsOpen() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.open
}

// Played returns a copy of the archive, oldest first.
func (st *SessionState) Played() []Song {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]Song, 0, len(st.played))
	for _, song := range st.played {
		out = append(out, song.clone())
	}
	return out
}

// Snapshot deep-copies the persistable state.
func (st *SessionState) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap := Snapshot{
		Open:    st.open,
		Songs:   make([]Song, 0, len(st.songs)),
		History: append([]HistoryEntry(nil), st.history...),
	}
	for _, song := range st.songs {
		snap.Songs = append(snap.Songs, song.clone())
	}
	sort.Slice(snap.Songs, func(i, j int) bool { return snap.Songs[i].ID < snap.Songs[j].ID })
	return snap
}

// RestoreSong reinserts a persisted song and advances the song-id
// high-water mark past it. Persistence-bridge use only.
func (st *SessionState) RestoreSong(song Song) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := song.clone()
	st.songs[s.Key] = &s
	if s.ID >= st.nextSongID {
		st.nextSongID = s.ID + 1
	}
}

// RestoreHistory replaces the history log with persisted entries and
// advances the history-id high-water mark. Persistence-bridge use only.
func (st *SessionState) RestoreHistory(entries []HistoryEntry) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.history = append([]HistoryEntry(nil), entries...)
	for _, e := range entries {
		if e.HistoryID >= st.nextHistoryID {
			st.nextHistoryID = e.HistoryID + 1
		}
	}
}

// SetOpen forces the session gate without the already-in-state signal.
// Persistence-bridge use only.
func (st *SessionState) SetOpen(open bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.open = open
}
