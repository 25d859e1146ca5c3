package room

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"spades-live/card"
	"spades-live/internal/codec"
	"spades-live/spades"
)

// frameSink collects frames the room pushes, keyed by user.
type frameSink struct {
	mu     sync.Mutex
	frames map[string][]codec.ServerEnvelope
}

func newFrameSink() *frameSink {
	return &frameSink{frames: make(map[string][]codec.ServerEnvelope)}
}

func (s *frameSink) send(userID string, data []byte) {
	var env codec.ServerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	s.mu.Lock()
	s.frames[userID] = append(s.frames[userID], env)
	s.mu.Unlock()
}

func (s *frameSink) last(userID string) (codec.ServerEnvelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.frames[userID]
	if len(fs) == 0 {
		return codec.ServerEnvelope{}, false
	}
	return fs[len(fs)-1], true
}

func testRules() spades.Rules {
	r := spades.DefaultRules()
	r.Seed = 7
	return r
}

func newTestRoom(t *testing.T, sink *frameSink) *Room {
	t.Helper()
	r, err := New("r1", testRules(), sink.send)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(r.Stop)
	return r
}

func ident(id string) spades.Identity {
	return spades.Identity{ID: id, Name: "player " + id}
}

func joinFour(t *testing.T, r *Room) {
	t.Helper()
	for seat, uid := range []string{"u0", "u1", "u2", "u3"} {
		if err := r.SubmitEvent(Event{Type: EventJoin, Identity: ident(uid), Seat: seat}); err != nil {
			t.Fatalf("join seat %d: %v", seat, err)
		}
	}
}

func TestJoinStartBroadcastsRedactedViews(t *testing.T) {
	sink := newFrameSink()
	r := newTestRoom(t, sink)
	joinFour(t, r)

	if err := r.SubmitEvent(Event{Type: EventStart, Identity: ident("u0")}); err != nil {
		t.Fatalf("start: %v", err)
	}

	env, ok := sink.last("u0")
	if !ok {
		t.Fatal("no frame delivered to u0")
	}
	if env.Type != codec.TypeGameUpdate {
		t.Fatalf("frame type = %q, want %q", env.Type, codec.TypeGameUpdate)
	}
	if env.Game == nil {
		t.Fatal("frame carries no game view")
	}
	if env.Game.Phase != "bidding" {
		t.Fatalf("phase = %q, want bidding", env.Game.Phase)
	}
	for _, pv := range env.Game.Players {
		if pv.HandCount != spades.HandSize {
			t.Fatalf("seat %d hand_count = %d, want %d", pv.Seat, pv.HandCount, spades.HandSize)
		}
		if pv.Seat == 0 && len(pv.Hand) != spades.HandSize {
			t.Fatalf("viewer's own hand has %d cards, want %d", len(pv.Hand), spades.HandSize)
		}
		if pv.Seat != 0 && len(pv.Hand) != 0 {
			t.Fatalf("seat %d hand leaked to viewer 0", pv.Seat)
		}
	}
	if env.Game.SeatOrder[0] != 0 {
		t.Fatalf("seat order for u0 starts at %d, want 0", env.Game.SeatOrder[0])
	}
}

func TestStartRejectedWithoutFullTable(t *testing.T) {
	sink := newFrameSink()
	r := newTestRoom(t, sink)
	if err := r.SubmitEvent(Event{Type: EventJoin, Identity: ident("u0"), Seat: 0}); err != nil {
		t.Fatalf("join: %v", err)
	}
	err := r.SubmitEvent(Event{Type: EventStart, Identity: ident("u0")})
	if err == nil {
		t.Fatal("start with one seat filled should fail")
	}
}

func TestSeatTakenSurfacesEngineError(t *testing.T) {
	sink := newFrameSink()
	r := newTestRoom(t, sink)
	if err := r.SubmitEvent(Event{Type: EventJoin, Identity: ident("u0"), Seat: 2}); err != nil {
		t.Fatalf("join: %v", err)
	}
	err := r.SubmitEvent(Event{Type: EventJoin, Identity: ident("u1"), Seat: 2})
	if !errors.Is(err, spades.ErrSeatTaken) {
		t.Fatalf("err = %v, want ErrSeatTaken", err)
	}
}

func TestBidFlowAdvancesToPlaying(t *testing.T) {
	sink := newFrameSink()
	r := newTestRoom(t, sink)
	joinFour(t, r)
	if err := r.SubmitEvent(Event{Type: EventStart, Identity: ident("u0")}); err != nil {
		t.Fatalf("start: %v", err)
	}

	users := []string{"u0", "u1", "u2", "u3"}
	snap := r.Snapshot()
	for i := 0; i < spades.NumSeats; i++ {
		seat := snap.TurnSeat
		uid := users[seat]
		if err := r.SubmitEvent(Event{Type: EventBid, Identity: ident(uid), Bid: 3}); err != nil {
			t.Fatalf("bid by %s: %v", uid, err)
		}
		snap = r.Snapshot()
	}
	if snap.Phase != spades.PhasePlaying {
		t.Fatalf("phase after four bids = %v, want playing", snap.Phase)
	}

	env, ok := sink.last("u1")
	if !ok || env.Game == nil {
		t.Fatal("no game frame for u1")
	}
	if env.Game.Phase != "playing" {
		t.Fatalf("broadcast phase = %q, want playing", env.Game.Phase)
	}
}

func TestBidOutOfTurnRejected(t *testing.T) {
	sink := newFrameSink()
	r := newTestRoom(t, sink)
	joinFour(t, r)
	if err := r.SubmitEvent(Event{Type: EventStart, Identity: ident("u0")}); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := r.Snapshot()
	wrong := (snap.TurnSeat + 1) % spades.NumSeats
	uid := []string{"u0", "u1", "u2", "u3"}[wrong]
	err := r.SubmitEvent(Event{Type: EventBid, Identity: ident(uid), Bid: 3})
	if !errors.Is(err, spades.ErrOutOfTurn) {
		t.Fatalf("err = %v, want ErrOutOfTurn", err)
	}
}

func TestResyncSendsPrivateFrame(t *testing.T) {
	sink := newFrameSink()
	r := newTestRoom(t, sink)
	joinFour(t, r)
	if err := r.SubmitEvent(Event{Type: EventStart, Identity: ident("u0")}); err != nil {
		t.Fatalf("start: %v", err)
	}

	before, _ := sink.last("u2")
	if err := r.SubmitEvent(Event{Type: EventResync, Identity: ident("u2")}); err != nil {
		t.Fatalf("resync: %v", err)
	}
	after, ok := sink.last("u2")
	if !ok {
		t.Fatal("no resync frame for u2")
	}
	if after.ServerSeq <= before.ServerSeq {
		t.Fatalf("resync seq %d not after broadcast seq %d", after.ServerSeq, before.ServerSeq)
	}
	if after.Game == nil || after.Game.SeatOrder[0] != 2 {
		t.Fatal("resync frame not rotated for seat 2")
	}
	for _, pv := range after.Game.Players {
		if pv.Seat != 2 && len(pv.Hand) != 0 {
			t.Fatalf("resync leaked seat %d hand to u2", pv.Seat)
		}
	}
}

func TestRejoinResyncsSeatedPlayer(t *testing.T) {
	sink := newFrameSink()
	r := newTestRoom(t, sink)
	joinFour(t, r)
	if err := r.SubmitEvent(Event{Type: EventStart, Identity: ident("u0")}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.SubmitEvent(Event{Type: EventConnLost, Identity: ident("u3")}); err != nil {
		t.Fatalf("conn lost: %v", err)
	}
	// Joining again while seated is a resync, not an error.
	if err := r.SubmitEvent(Event{Type: EventJoin, Identity: ident("u3"), Seat: 3}); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	env, ok := sink.last("u3")
	if !ok || env.Game == nil {
		t.Fatal("no frame after rejoin")
	}
	if env.Game.Phase != "bidding" {
		t.Fatalf("rejoin phase = %q, want bidding", env.Game.Phase)
	}
}

func TestLeaveOnlyBeforeStart(t *testing.T) {
	sink := newFrameSink()
	r := newTestRoom(t, sink)
	joinFour(t, r)
	if err := r.SubmitEvent(Event{Type: EventLeave, Identity: ident("u1")}); err != nil {
		t.Fatalf("leave while waiting: %v", err)
	}
	if err := r.SubmitEvent(Event{Type: EventJoin, Identity: ident("u1"), Seat: 1}); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if err := r.SubmitEvent(Event{Type: EventStart, Identity: ident("u0")}); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := r.SubmitEvent(Event{Type: EventLeave, Identity: ident("u1")})
	if !errors.Is(err, spades.ErrAlreadyStarted) {
		t.Fatalf("leave after start: err = %v, want ErrAlreadyStarted", err)
	}
}

func TestHandEndHookFiresOnSettlement(t *testing.T) {
	sink := newFrameSink()
	r := newTestRoom(t, sink)

	hookCh := make(chan HandEndInfo, 1)
	r.AddHandEndHook(func(info HandEndInfo) { hookCh <- info })

	joinFour(t, r)
	if err := r.SubmitEvent(Event{Type: EventStart, Identity: ident("u0")}); err != nil {
		t.Fatalf("start: %v", err)
	}

	users := []string{"u0", "u1", "u2", "u3"}
	for i := 0; i < spades.NumSeats; i++ {
		seat := r.Snapshot().TurnSeat
		if err := r.SubmitEvent(Event{Type: EventBid, Identity: ident(users[seat]), Bid: 3}); err != nil {
			t.Fatalf("bid: %v", err)
		}
	}
	// Play the hand out with the lowest legal card each turn.
	for i := 0; i < spades.NumSeats*spades.TricksPerHand; i++ {
		snap := r.Snapshot()
		seat := snap.TurnSeat
		legal, err := legalFor(r, seat)
		if err != nil {
			t.Fatalf("legal plays: %v", err)
		}
		if err := r.SubmitEvent(Event{Type: EventPlay, Identity: ident(users[seat]), Card: legal[0]}); err != nil {
			t.Fatalf("play %d: %v", i, err)
		}
	}

	select {
	case info := <-hookCh:
		if info.RoomID != "r1" {
			t.Fatalf("hook room = %q", info.RoomID)
		}
		if info.Result.HandNo != 1 {
			t.Fatalf("hook hand = %d, want 1", info.Result.HandNo)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hand end hook never fired")
	}

	snap := r.Snapshot()
	if snap.Phase != spades.PhaseHandSettlement && snap.Phase != spades.PhaseFinished {
		t.Fatalf("phase after 13 tricks = %v", snap.Phase)
	}
}

func TestNextHandDealtAfterSettlementDelay(t *testing.T) {
	sink := newFrameSink()
	r := newTestRoom(t, sink)
	r.SetNextHandDelay(10 * time.Millisecond)

	joinFour(t, r)
	if err := r.SubmitEvent(Event{Type: EventStart, Identity: ident("u0")}); err != nil {
		t.Fatalf("start: %v", err)
	}
	users := []string{"u0", "u1", "u2", "u3"}
	for i := 0; i < spades.NumSeats; i++ {
		seat := r.Snapshot().TurnSeat
		if err := r.SubmitEvent(Event{Type: EventBid, Identity: ident(users[seat]), Bid: 3}); err != nil {
			t.Fatalf("bid: %v", err)
		}
	}
	for i := 0; i < spades.NumSeats*spades.TricksPerHand; i++ {
		seat := r.Snapshot().TurnSeat
		legal, err := legalFor(r, seat)
		if err != nil {
			t.Fatalf("legal plays: %v", err)
		}
		if err := r.SubmitEvent(Event{Type: EventPlay, Identity: ident(users[seat]), Card: legal[0]}); err != nil {
			t.Fatalf("play: %v", err)
		}
	}

	snap := r.Snapshot()
	if snap.Phase == spades.PhaseFinished {
		t.Skip("seed settled the game on hand one")
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap = r.Snapshot()
		if snap.Phase == spades.PhaseBidding && snap.HandNo == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("next hand never dealt: phase=%v hand=%d", snap.Phase, snap.HandNo)
}

func TestTurnTimeoutAutoBids(t *testing.T) {
	sink := newFrameSink()
	rules := testRules()
	rules.TurnTimeout = 50 * time.Millisecond
	r, err := New("r-timeout", rules, sink.send)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(r.Stop)

	joinFour(t, r)
	if err := r.SubmitEvent(Event{Type: EventStart, Identity: ident("u0")}); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Never submit a bid; the actor tick should bid nil for every seat.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := r.Snapshot(); snap.Phase == spades.PhasePlaying {
			for _, pv := range snap.Players {
				if !pv.HasBid || pv.Bid != 0 {
					t.Fatalf("seat %d bid = %d (hasBid=%v), want auto nil", pv.Seat, pv.Bid, pv.HasBid)
				}
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("turn timeout never advanced bidding")
}

func TestSubmitAfterStopReturnsClosed(t *testing.T) {
	sink := newFrameSink()
	r := newTestRoom(t, sink)
	r.Stop()
	err := r.SubmitEvent(Event{Type: EventResync, Identity: ident("u0")})
	if !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("err = %v, want ErrRoomClosed", err)
	}
	if !r.IsIdleFor(0) {
		t.Fatal("stopped room should report idle")
	}
}

func legalFor(r *Room, seat int) (card.CardList, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.game.LegalPlaysFor(seat)
}
