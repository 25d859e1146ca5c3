package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"spades-live/internal/codec"
	"spades-live/internal/ledger"
	"spades-live/internal/room"
	"spades-live/spades"
)

func testLobby(t *testing.T) *Lobby {
	t.Helper()
	svc, _, err := ledger.NewServiceFromEnv("memory")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	l := New(spades.DefaultRules(), svc, nil)
	l.SetSender(func(string, []byte) {})
	t.Cleanup(l.Close)
	return l
}

func TestCreateAndGet(t *testing.T) {
	l := testLobby(t)
	r, err := l.CreateGame(nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := l.Get(r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != r {
		t.Fatal("Get returned a different room")
	}
}

func TestGetUnknownGame(t *testing.T) {
	l := testLobby(t)
	_, err := l.Get("nope")
	if !errors.Is(err, codec.ErrGameNotFound) {
		t.Fatalf("err = %v, want ErrGameNotFound", err)
	}
}

func TestCreateGameCustomRules(t *testing.T) {
	l := testLobby(t)
	rules := spades.DefaultRules()
	rules.MaxPoints = 250
	rules.CoinStake = 40
	r, err := l.CreateGame(&rules)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	snap := r.Snapshot()
	if snap.Rules.MaxPoints != 250 || snap.Rules.CoinStake != 40 {
		t.Fatalf("rules not applied: %+v", snap.Rules)
	}
}

func TestCreateGameRejectsBadRules(t *testing.T) {
	l := testLobby(t)
	rules := spades.DefaultRules()
	rules.MaxPoints = -1
	if _, err := l.CreateGame(&rules); err == nil {
		t.Fatal("invalid rules accepted")
	}
}

func TestListActiveSkipsFinishedAndClosed(t *testing.T) {
	l := testLobby(t)
	r1, err := l.CreateGame(nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	r2, err := l.CreateGame(nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	r2.Stop()

	games := l.ListActive()
	if len(games) != 1 {
		t.Fatalf("active games = %d, want 1", len(games))
	}
	if games[0].ID != r1.ID {
		t.Fatalf("listed %s, want %s", games[0].ID, r1.ID)
	}
	if games[0].Phase != "waiting" {
		t.Fatalf("phase = %q, want waiting", games[0].Phase)
	}
}

func TestBroadcastGamesReachesWatchers(t *testing.T) {
	l := testLobby(t)

	var mu sync.Mutex
	var got []codec.ServerEnvelope
	l.SetListNotifier(func(data []byte) {
		var env codec.ServerEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Errorf("bad games_update frame: %v", err)
			return
		}
		mu.Lock()
		got = append(got, env)
		mu.Unlock()
	})

	if _, err := l.CreateGame(nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	l.BroadcastGames()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(got))
	}
	env := got[0]
	if env.Type != codec.TypeGamesUpdate {
		t.Fatalf("type = %q", env.Type)
	}
	if len(env.Games) != 1 {
		t.Fatalf("games = %d, want 1", len(env.Games))
	}
	if env.ServerSeq == 0 {
		t.Fatal("games_update carries no sequence number")
	}
}

func TestHandEndHookRecordsSettlement(t *testing.T) {
	svc, err := ledger.NewSQLiteService(":memory:")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	rules := spades.DefaultRules()
	rules.CoinStake = 25
	l := New(rules, svc, nil)
	l.SetSender(func(string, []byte) {})
	t.Cleanup(l.Close)

	snap := spades.Snapshot{
		Rules: rules,
		Players: []spades.PlayerSnapshot{
			{Identity: spades.Identity{ID: "a"}, Seat: 0, Team: 1},
			{Identity: spades.Identity{ID: "b"}, Seat: 1, Team: 2},
			{Identity: spades.Identity{ID: "c"}, Seat: 2, Team: 1},
			{Identity: spades.Identity{ID: "d"}, Seat: 3, Team: 2},
		},
	}
	res := &spades.HandResult{
		HandNo:   3,
		Team1:    spades.TeamResult{Team: 1, Bid: 5, Tricks: 7, Score: 52, Total: 510},
		Team2:    spades.TeamResult{Team: 2, Bid: 6, Tricks: 6, Score: 60, Total: 380},
		GameOver: true,
		Winner:   1,
	}
	l.onHandEnd(room.HandEndInfo{RoomID: "g-settle", Result: res, Snapshot: snap})

	bal, err := svc.Balance(context.Background(), "a")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 25 {
		t.Fatalf("winner balance = %d, want 25", bal)
	}
	bal, err = svc.Balance(context.Background(), "b")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != -25 {
		t.Fatalf("loser balance = %d, want -25", bal)
	}

	// Replaying the hook must not double-apply.
	l.onHandEnd(room.HandEndInfo{RoomID: "g-settle", Result: res, Snapshot: snap})
	bal, err = svc.Balance(context.Background(), "a")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 25 {
		t.Fatalf("replayed balance = %d, want 25", bal)
	}
}

func TestSweeperClosesIdleRooms(t *testing.T) {
	l := testLobby(t)
	r, err := l.CreateGame(nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	r.Stop() // a closed room reports idle immediately

	l.sweepIdle()
	if _, err := l.Get(r.ID); !errors.Is(err, codec.ErrGameNotFound) {
		t.Fatalf("swept room still resolvable: %v", err)
	}
}

func TestSweepRacesBusyRoomWithoutStalling(t *testing.T) {
	l := testLobby(t)
	r, err := l.CreateGame(nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := spades.Identity{ID: "u0", Name: "u0"}
	if err := r.SubmitEvent(room.Event{Type: room.EventJoin, Identity: id, Seat: 0}); err != nil {
		t.Fatalf("join: %v", err)
	}

	// A room actor fanning out frames through the lobby must never wedge
	// against a concurrent sweep pass.
	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if err := r.SubmitEvent(room.Event{Type: room.EventResync, Identity: id}); err != nil {
					t.Errorf("resync: %v", err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				l.sweepIdle()
			}
		}()
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("resync and sweep loops never completed")
	}
	if _, err := l.Get(r.ID); err != nil {
		t.Fatalf("occupied room was swept: %v", err)
	}
}

func TestSweeperRunsOnInterval(t *testing.T) {
	l := testLobby(t)
	r, err := l.CreateGame(nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	r.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.StartSweeper(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := l.Get(r.ID); errors.Is(err, codec.ErrGameNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sweeper never removed the stopped room")
}
