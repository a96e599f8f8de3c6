package kv

import (
	"context"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, "requestSettings", "isOpen", "false"); err != nil {
		t.Fatal(err)
	}
	value, ok, err := store.Get(ctx, "requestSettings", "isOpen")
	if err != nil || !ok || value != "false" {
		t.Errorf("got (%q, %v, %v)", value, ok, err)
	}

	_, ok, _ = store.Get(ctx, "requestSettings", "nope")
	if ok {
		t.Error("missing key reported present")
	}
}

func TestMemoryStoreSectionIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, "a", "k", "1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "b", "k", "2"); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteSection(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := store.Get(ctx, "a", "k"); ok {
		t.Error("deleted section still readable")
	}
	if v, ok, _ := store.Get(ctx, "b", "k"); !ok || v != "2" {
		t.Error("sibling section affected by delete")
	}
}

func TestMemoryStorePutSectionCopiesInput(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	values := map[string]string{"song a": "x"}
	if err := store.PutSection(ctx, "requestSongs", values); err != nil {
		t.Fatal(err)
	}
	values["song a"] = "tampered"

	got, _, _ := store.Get(ctx, "requestSongs", "song a")
	if got != "x" {
		t.Error("store shares memory with caller map")
	}

	section, err := store.GetSection(ctx, "requestSongs")
	if err != nil {
		t.Fatal(err)
	}
	section["song a"] = "also tampered"
	got, _, _ = store.Get(ctx, "requestSongs", "song a")
	if got != "x" {
		t.Error("GetSection returns shared map")
	}
}
