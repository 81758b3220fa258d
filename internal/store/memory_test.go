package store

import (
	"sync"
	"testing"
	"time"
)

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	if got := store.GetAll(); len(got) != 0 {
		t.Errorf("GetAll() on new store = %v items, want 0", len(got))
	}
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryStore()

	errMsg := "connection refused"
	store.Update(DigestRecord{
		ID:     "https://example.com/a",
		Name:   "A",
		Status: StatusError,
		Labels: map[string]string{"env": "prod"},
		Error:  &errMsg,
	})

	all := store.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll() = %v items, want 1", len(all))
	}
	if all[0].Status != StatusError {
		t.Errorf("Status = %q, want %q", all[0].Status, StatusError)
	}
	if all[0].Error == nil || *all[0].Error != errMsg {
		t.Errorf("Error = %v, want %q", all[0].Error, errMsg)
	}
	if all[0].Labels["env"] != "prod" {
		t.Errorf("Labels[env] = %q, want prod", all[0].Labels["env"])
	}
}

func TestMemoryStore_Get(t *testing.T) {
	store := NewMemoryStore()
	store.Update(DigestRecord{ID: "a", Name: "A", Digest: "d41d8cd98f00b204e9800998ecf8427e"})

	got, ok := store.Get("a")
	if !ok {
		t.Fatal("Get(a) ok = false")
	}
	if got.Digest != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("Get(a).Digest = %q", got.Digest)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("Get(missing) ok = true")
	}
}

func TestMemoryStore_UpdateOverwrites(t *testing.T) {
	store := NewMemoryStore()

	store.Update(DigestRecord{ID: "a", Name: "A", Status: StatusNew, Digest: "aa"})
	store.Update(DigestRecord{ID: "a", Name: "A", Status: StatusChanged, Digest: "bb", Previous: "aa"})

	all := store.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll() = %v items, want 1", len(all))
	}
	if all[0].Status != StatusChanged || all[0].Previous != "aa" {
		t.Errorf("GetAll()[0] = %+v, want changed from aa", all[0])
	}
}

func TestMemoryStore_KeyedByID(t *testing.T) {
	store := NewMemoryStore()

	// two resources may share a display name
	store.Update(DigestRecord{ID: "https://b.example/x", Name: "X"})
	store.Update(DigestRecord{ID: "https://a.example/x", Name: "X"})
	store.Update(DigestRecord{ID: "/tmp/w", Name: "W"})

	all := store.GetAll()
	if len(all) != 3 {
		t.Fatalf("GetAll() = %v items, want 3", len(all))
	}

	want := []string{"/tmp/w", "https://a.example/x", "https://b.example/x"}
	for i, id := range want {
		if all[i].ID != id {
			t.Errorf("GetAll()[%d].ID = %q, want %q", i, all[i].ID, id)
		}
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	if ch == nil {
		t.Fatal("Subscribe() = nil")
	}

	go func() {
		store.Update(DigestRecord{ID: "a", Name: "Test", Status: StatusNew})
	}()

	select {
	case record := <-ch:
		if record.Name != "Test" {
			t.Errorf("received Name = %v, want %v", record.Name, "Test")
		}
	case <-time.After(1 * time.Second):
		t.Error("Subscribe() channel did not receive update")
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := NewMemoryStore()

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	ch3 := store.Subscribe()

	go func() {
		store.Update(DigestRecord{ID: "a", Name: "Test"})
	}()

	received := 0
	timeout := time.After(1 * time.Second)

	for received < 3 {
		select {
		case <-ch1:
			received++
		case <-ch2:
			received++
		case <-ch3:
			received++
		case <-timeout:
			t.Fatalf("Only received %d/3 updates", received)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	store.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Unsubscribe() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel should be closed immediately")
	}

	// second call is a no-op
	store.Unsubscribe(ch)
}

func TestMemoryStore_UnsubscribeStopsDelivery(t *testing.T) {
	store := NewMemoryStore()

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()

	store.Unsubscribe(ch1)

	go func() {
		store.Update(DigestRecord{ID: "a", Name: "Test"})
	}()

	select {
	case <-ch2:
	case <-time.After(1 * time.Second):
		t.Error("ch2 should still receive updates")
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore()

	_ = store.Subscribe()
	ch2 := store.Subscribe()

	done := make(chan bool)

	go func() {
		for i := 0; i < 2*subscriberBuffer; i++ {
			store.Update(DigestRecord{ID: "a", Name: "Test"})
		}
		done <- true
	}()

	go func() {
		for range ch2 {
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Update() blocked on slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	numGoroutines := 10
	numUpdates := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				store.Update(DigestRecord{ID: "a", Name: "A", Status: StatusUnchanged})
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				_ = store.GetAll()
				_, _ = store.Get("a")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}

	wg.Wait()
}
