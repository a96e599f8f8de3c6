package ledger

import (
	"errors"
	"strings"
	"testing"
)

func openState(t *testing.T) *SessionState {
	t.Helper()
	return New(true)
}

func TestVoteCountMatchesVoterList(t *testing.T) {
	st := openState(t)
	voters := []string{"alice", "bob", "carol", "dave"}
	for i, voter := range voters {
		acc, err := st.SubmitVote(voter, "Song A")
		if err != nil {
			t.Fatalf("vote %d failed: %v", i, err)
		}
		if acc.VoteCount != len(acc.Song.Voters) {
			t.Errorf("after vote %d: count %d, voters %d", i, acc.VoteCount, len(acc.Song.Voters))
		}
		if acc.VoteCount != i+1 {
			t.Errorf("after vote %d: count %d, want %d", i, acc.VoteCount, i+1)
		}
	}
}

func TestDuplicateVoteByNormalizedName(t *testing.T) {
	st := openState(t)
	if _, err := st.SubmitVote("alice", "Song A"); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	_, err := st.SubmitVote("alice", "song a")
	if !errors.Is(err, ErrDuplicateVote) {
		t.Fatalf("want ErrDuplicateVote, got %v", err)
	}
	if got := st.TopRequests(0)[0].Votes; got != 1 {
		t.Errorf("rejected vote mutated count: %d", got)
	}
}

func TestNameLengthBoundary(t *testing.T) {
	st := openState(t)
	if _, err := st.SubmitVote("alice", strings.Repeat("a", 30)); err != nil {
		t.Errorf("30-character name rejected: %v", err)
	}
	_, err := st.SubmitVote("alice", strings.Repeat("b", 31))
	if !errors.Is(err, ErrTooLong) {
		t.Errorf("31-character name: want ErrTooLong, got %v", err)
	}
}

func TestEmptyNameRejected(t *testing.T) {
	st := openState(t)
	if _, err := st.SubmitVote("alice", "   "); !errors.Is(err, ErrEmptyName) {
		t.Errorf("want ErrEmptyName, got %v", err)
	}
}

func TestDisplayNameFixedByFirstVote(t *testing.T) {
	st := openState(t)
	if _, err := st.SubmitVote("alice", "FreeBird"); err != nil {
		t.Fatal(err)
	}
	acc, err := st.SubmitVote("bob", "FREEBIRD")
	if err != nil {
		t.Fatal(err)
	}
	if acc.Song.DisplayName != "FreeBird" {
		t.Errorf("second vote altered display name: %q", acc.Song.DisplayName)
	}
}

func TestTopRequestsOrdering(t *testing.T) {
	st := openState(t)
	// Five songs with vote totals 3, 1, 4, 1, 5.
	votes := map[string]int{"sa": 3, "sb": 1, "sc": 4, "sd": 1, "se": 5}
	for _, name := range []string{"sa", "sb", "sc", "sd", "se"} {
		for i := 0; i < votes[name]; i++ {
			voter := name + "-voter-" + strings.Repeat("x", i+1)
			if _, err := st.SubmitVote(voter, name); err != nil {
				t.Fatalf("vote for %s: %v", name, err)
			}
		}
	}

	top := st.TopRequests(0)
	wantVotes := []int{5, 4, 3, 1, 1}
	if len(top) != len(wantVotes) {
		t.Fatalf("got %d entries, want %d", len(top), len(wantVotes))
	}
	for i, want := range wantVotes {
		if top[i].Votes != want {
			t.Errorf("position %d: votes %d, want %d", i, top[i].Votes, want)
		}
	}
	// Tie at one vote: earlier song (lower id) first.
	if top[3].Name != "sb" || top[4].Name != "sd" {
		t.Errorf("tie-break wrong: got %q then %q, want sb then sd", top[3].Name, top[4].Name)
	}
}

func TestTopRequestsLimit(t *testing.T) {
	st := openState(t)
	for _, name := range []string{"one", "two", "three"} {
		if _, err := st.SubmitVote("alice", name); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(st.TopRequests(2)); got != 2 {
		t.Errorf("limit 2 returned %d entries", got)
	}
	if got := len(st.TopRequests(10)); got != 3 {
		t.Errorf("limit above size returned %d entries", got)
	}
}

func TestRecentHistoryNewestFirst(t *testing.T) {
	st := openState(t)
	names := []string{"first", "second", "third", "fourth"}
	for _, name := range names {
		if _, err := st.SubmitVote("alice", name); err != nil {
			t.Fatal(err)
		}
	}

	recent := st.RecentHistory(3)
	if len(recent) != 3 {
		t.Fatalf("got %d entries, want 3", len(recent))
	}
	wantOrder := []string{"fourth", "third", "second"}
	for i, want := range wantOrder {
		if recent[i].SongKey != want {
			t.Errorf("position %d: %q, want %q", i, recent[i].SongKey, want)
		}
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].HistoryID >= recent[i-1].HistoryID {
			t.Errorf("history ids not strictly descending at %d", i)
		}
	}

	if got := len(st.RecentHistory(0)); got != len(names) {
		t.Errorf("limit 0 should return the full log, got %d of %d", got, len(names))
	}
}

func TestVoteWhileClosed(t *testing.T) {
	st := New(false)
	_, err := st.SubmitVote("alice", "Song A")
	if !errors.Is(err, ErrNotOpen) {
		t.Fatalf("want ErrNotOpen, got %v", err)
	}
	if len(st.TopRequests(0)) != 0 || len(st.RecentHistory(0)) != 0 {
		t.Error("rejected vote mutated the ledger")
	}
}

func TestOpenCloseSignals(t *testing.T) {
	st := New(false)
	if !st.Open() {
		t.Error("open on closed session should transition")
	}
	if st.Open() {
		t.Error("open on open session should signal already-open")
	}
	if !st.Close() {
		t.Error("close on open session should transition")
	}
	if st.Close() {
		t.Error("close on closed session should signal already-closed")
	}
}

func TestModerationWorksWhileClosed(t *testing.T) {
	st := openState(t)
	if _, err := st.SubmitVote("alice", "Song A"); err != nil {
		t.Fatal(err)
	}
	st.Close()

	if got := len(st.TopRequests(0)); got != 1 {
		t.Errorf("reads gated while closed: %d entries", got)
	}
	if _, err := st.MarkPlayed("Song A"); err != nil {
		t.Errorf("markPlayed gated while closed: %v", err)
	}
}

func TestResetKeepsArchiveAndCounters(t *testing.T) {
	st := openState(t)
	acc, err := st.SubmitVote("alice", "Song A")
	if err != nil {
		t.Fatal(err)
	}
	firstID := acc.Song.ID
	if _, err := st.SubmitVote("alice", "Song B"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.MarkPlayed("Song A"); err != nil {
		t.Fatal(err)
	}

	st.Reset()

	if len(st.TopRequests(0)) != 0 {
		t.Error("reset left open songs behind")
	}
	if len(st.RecentHistory(0)) != 0 {
		t.Error("reset left history behind")
	}
	if len(st.Played()) != 1 {
		t.Error("reset touched the played archive")
	}

	acc, err = st.SubmitVote("bob", "Song C")
	if err != nil {
		t.Fatal(err)
	}
	if acc.Song.ID <= firstID {
		t.Errorf("post-reset song id %d not greater than pre-reset id %d", acc.Song.ID, firstID)
	}
}

func TestMarkPlayed(t *testing.T) {
	st := openState(t)
	if _, err := st.MarkPlayed("nothing here"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	for _, voter := range []string{"alice", "bob"} {
		if _, err := st.SubmitVote(voter, "Song A"); err != nil {
			t.Fatal(err)
		}
	}
	song, err := st.MarkPlayed("SONG a")
	if err != nil {
		t.Fatalf("markPlayed failed: %v", err)
	}
	if len(song.Voters) != 2 {
		t.Errorf("voter list not returned: %v", song.Voters)
	}
	if len(st.TopRequests(0)) != 0 {
		t.Error("played song still ranked")
	}
	if len(st.RecentHistory(0)) != 2 {
		t.Error("markPlayed touched history")
	}
}

func TestDeleteRequest(t *testing.T) {
	st := openState(t)
	if _, err := st.DeleteRequest("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := st.SubmitVote("alice", "Song A"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.DeleteRequest("song a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(st.TopRequests(0)) != 0 {
		t.Error("deleted song still ranked")
	}
	if len(st.Played()) != 0 {
		t.Error("delete must not archive")
	}
}

func TestRestoreAdvancesCounters(t *testing.T) {
	st := New(true)
	st.RestoreSong(Song{Key: "song a", DisplayName: "Song A", ID: 7, Voters: []string{"alice"}})
	st.RestoreHistory([]HistoryEntry{{HistoryID: 12, Requester: "alice", SongKey: "song a", SongDisplayName: "Song A"}})

	acc, err := st.SubmitVote("bob", "Song B")
	if err != nil {
		t.Fatal(err)
	}
	if acc.Song.ID != 8 {
		t.Errorf("song id counter not advanced: got %d, want 8", acc.Song.ID)
	}
	recent := st.RecentHistory(1)
	if recent[0].HistoryID != 13 {
		t.Errorf("history id counter not advanced: got %d, want 13", recent[0].HistoryID)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	st := openState(t)
	if _, err := st.SubmitVote("alice", "Song A"); err != nil {
		t.Fatal(err)
	}
	snap := st.Snapshot()
	snap.Songs[0].Voters[0] = "mallory"
	snap.Songs[0].DisplayName = "tampered"

	top := st.TopRequests(0)
	if top[0].Name != "Song A" {
		t.Error("snapshot shares memory with the ledger")
	}
	if _, err := st.SubmitVote("alice", "Song A"); !errors.Is(err, ErrDuplicateVote) {
		t.Error("voter list mutated through snapshot")
	}
}
