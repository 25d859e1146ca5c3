package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"spades-live/card"
	"spades-live/internal/codec"
	"spades-live/spades"
)

// Room hosts a single game with an actor model: all mutations flow through
// the events channel and are applied by one goroutine. Reads take the lock
// directly.
type Room struct {
	ID string

	mu      sync.RWMutex
	game    *spades.Game
	members map[string]*Member // identity ID -> connection state
	closed  bool

	stopOnce sync.Once
	events   chan Event
	done     chan struct{}

	// Server sequence for event ordering.
	serverSeq uint64

	// Timers and lifecycle metadata.
	turnDeadline time.Time
	turnSeat     int
	nextHandAt   time.Time
	emptySince   time.Time

	nextHandDelay time.Duration

	// Callback to deliver a frame to one user's connections. Never called
	// with r.mu held: frames queue in pending and the actor loop flushes
	// them after releasing the lock, so delivery can take foreign locks
	// (lobby, gateway) without ordering against r.mu.
	send    func(userID string, data []byte)
	pending []frame

	// Optional callbacks invoked after each hand settles.
	handEndHooks []HandEndHook
}

// Member tracks a user known to the room, seated or spectating.
type Member struct {
	Identity spades.Identity
	Online   bool
	LastSeen time.Time
}

// Event types for the actor message queue.
type EventType int

const (
	EventJoin EventType = iota
	EventLeave
	EventStart
	EventBid
	EventPlay
	EventResync
	EventConnLost
	EventConnResume
	EventClose
)

// Event is a message to the room actor.
// frame is a marshaled envelope awaiting delivery to one user.
type frame struct {
	userID string
	data   []byte
}

type Event struct {
	Type      EventType
	Identity  spades.Identity
	Seat      int
	Bid       int
	Card      card.Card
	Timestamp time.Time
	Response  chan error
}

// HandEndInfo is emitted when a hand settlement is finalized.
type HandEndInfo struct {
	RoomID   string
	Result   *spades.HandResult
	Snapshot spades.Snapshot
}

// HandEndHook is a post-settlement callback.
type HandEndHook func(info HandEndInfo)

var ErrRoomClosed = errors.New("room closed")

const (
	defaultNextHandDelay = 6 * time.Second
	offlineSeatGrace     = 30 * time.Second
)

// New creates a room and starts its actor goroutine.
func New(id string, rules spades.Rules, sendFn func(userID string, data []byte)) (*Room, error) {
	game, err := spades.NewGame(id, rules)
	if err != nil {
		return nil, err
	}
	r := &Room{
		ID:            id,
		game:          game,
		members:       make(map[string]*Member),
		events:        make(chan Event, 256),
		done:          make(chan struct{}),
		turnSeat:      spades.InvalidSeat,
		emptySince:    time.Now(),
		nextHandDelay: defaultNextHandDelay,
		send:          sendFn,
	}
	go r.run()
	log.Printf("[Room %s] Created (target=%d, floor=%d, stake=%d)", id, rules.MaxPoints, rules.MinPoints, rules.CoinStake)
	return r, nil
}

// SetNextHandDelay adjusts the pause between settlement and the next deal.
func (r *Room) SetNextHandDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.nextHandDelay = d
	r.mu.Unlock()
}

// AddHandEndHook registers a post-settlement callback.
func (r *Room) AddHandEndHook(hook HandEndHook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	r.handEndHooks = append(r.handEndHooks, hook)
	r.mu.Unlock()
}

// run is the main actor loop.
func (r *Room) run() {
	// Sub-second heartbeat for turn timeouts and inter-hand scheduling.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case event := <-r.events:
			err := r.handleEvent(event)
			r.flushPending()
			if event.Response != nil {
				event.Response <- err
			}
		case <-ticker.C:
			r.tick()
			r.flushPending()
		case <-r.done:
			log.Printf("[Room %s] Actor stopped", r.ID)
			return
		}
	}
}

func (r *Room) handleEvent(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed && e.Type != EventClose {
		return ErrRoomClosed
	}

	switch e.Type {
	case EventJoin:
		return r.handleJoin(e.Identity, e.Seat)
	case EventLeave:
		return r.handleLeave(e.Identity.ID)
	case EventStart:
		return r.handleStart(e.Identity.ID)
	case EventBid:
		return r.handleBid(e.Identity.ID, e.Bid)
	case EventPlay:
		return r.handlePlay(e.Identity.ID, e.Card)
	case EventResync:
		r.sendSnapshotLocked(e.Identity.ID)
		return nil
	case EventConnLost:
		return r.handleConnLost(e.Identity.ID, e.Timestamp)
	case EventConnResume:
		return r.handleConnResume(e.Identity, e.Timestamp)
	case EventClose:
		r.stopLocked()
		return nil
	default:
		return fmt.Errorf("unknown event type: %d", e.Type)
	}
}

func (r *Room) handleJoin(id spades.Identity, seat int) error {
	now := time.Now()
	if m, exists := r.members[id.ID]; exists && r.game.SeatOf(id.ID) != spades.InvalidSeat {
		// Rejoin of a seated player: refresh presence and resync.
		m.Online = true
		m.LastSeen = now
		m.Identity = id
		r.sendSnapshotLocked(id.ID)
		return nil
	}

	if err := r.game.Join(seat, id); err != nil {
		return err
	}
	r.members[id.ID] = &Member{Identity: id, Online: true, LastSeen: now}
	r.emptySince = time.Time{}
	log.Printf("[Room %s] %s (%s) took seat %d", r.ID, id.Name, id.ID, seat)
	r.broadcastGameLocked()
	return nil
}

func (r *Room) handleLeave(userID string) error {
	seat := r.game.SeatOf(userID)
	if seat == spades.InvalidSeat {
		return spades.ErrSeatNotFound
	}
	if err := r.game.Leave(seat); err != nil {
		return err
	}
	delete(r.members, userID)
	if r.game.SeatCount() == 0 {
		r.emptySince = time.Now()
	}
	log.Printf("[Room %s] %s left", r.ID, userID)
	r.broadcastGameLocked()
	return nil
}

func (r *Room) handleStart(userID string) error {
	seat := r.game.SeatOf(userID)
	if err := r.game.Start(seat); err != nil {
		return err
	}
	log.Printf("[Room %s] Game started by seat %d", r.ID, seat)
	r.armTurnTimerLocked(time.Now())
	r.broadcastGameLocked()
	return nil
}

func (r *Room) handleBid(userID string, bid int) error {
	seat := r.game.SeatOf(userID)
	if seat == spades.InvalidSeat {
		return spades.ErrSeatNotFound
	}
	if err := r.game.MakeBid(seat, bid); err != nil {
		return err
	}
	log.Printf("[Room %s] Seat %d bid %d", r.ID, seat, bid)
	r.armTurnTimerLocked(time.Now())
	r.broadcastGameLocked()
	return nil
}

func (r *Room) handlePlay(userID string, c card.Card) error {
	seat := r.game.SeatOf(userID)
	if seat == spades.InvalidSeat {
		return spades.ErrSeatNotFound
	}
	result, err := r.game.PlayCard(seat, c)
	if err != nil {
		return err
	}
	if result != nil {
		r.handleHandEndLocked(result)
	}
	r.armTurnTimerLocked(time.Now())
	r.broadcastGameLocked()
	return nil
}

func (r *Room) handleHandEndLocked(result *spades.HandResult) {
	log.Printf("[Room %s] Hand %d settled: team1=%+d team2=%+d (totals %d/%d)",
		r.ID, result.HandNo, result.Team1.Score, result.Team2.Score, result.Team1.Total, result.Team2.Total)
	r.clearTurnTimerLocked()
	r.dispatchHandEndHooksLocked(result)

	if result.GameOver {
		log.Printf("[Room %s] Game over, team %d wins", r.ID, result.Winner)
		r.nextHandAt = time.Time{}
		return
	}
	// Schedule the next deal from the actor tick (no goroutine self-submit).
	r.nextHandAt = time.Now().Add(r.nextHandDelay)
}

func (r *Room) dispatchHandEndHooksLocked(result *spades.HandResult) {
	if len(r.handEndHooks) == 0 || result == nil {
		return
	}
	info := HandEndInfo{
		RoomID:   r.ID,
		Result:   result,
		Snapshot: r.game.Snapshot(),
	}
	hooks := append([]HandEndHook(nil), r.handEndHooks...)
	for _, hook := range hooks {
		go func(cb HandEndHook) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("[Room %s] hand end hook panic: %v", r.ID, rec)
				}
			}()
			cb(info)
		}(hook)
	}
}

func (r *Room) handleConnLost(userID string, ts time.Time) error {
	m := r.members[userID]
	if m == nil {
		return nil
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	m.Online = false
	m.LastSeen = ts
	log.Printf("[Room %s] %s connection lost", r.ID, userID)
	r.broadcastGameLocked()
	return nil
}

func (r *Room) handleConnResume(id spades.Identity, ts time.Time) error {
	m := r.members[id.ID]
	if m == nil {
		return nil
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	m.Online = true
	m.LastSeen = ts
	m.Identity = id
	r.sendSnapshotLocked(id.ID)
	log.Printf("[Room %s] %s connection resumed", r.ID, id.ID)
	r.broadcastGameLocked()
	return nil
}

func (r *Room) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	now := time.Now()
	if err := r.handleTurnTimeoutLocked(now); err != nil {
		log.Printf("[Room %s] timeout handler failed: %v", r.ID, err)
	}
	r.releaseOfflineSeatsLocked(now)
	if !r.nextHandAt.IsZero() && !now.Before(r.nextHandAt) {
		r.nextHandAt = time.Time{}
		if err := r.game.StartNextHand(); err != nil {
			log.Printf("[Room %s] delayed hand start failed: %v", r.ID, err)
			return
		}
		log.Printf("[Room %s] Next hand dealt", r.ID)
		r.armTurnTimerLocked(now)
		r.broadcastGameLocked()
	}
}

// releaseOfflineSeatsLocked frees seats held by users who dropped before
// the game started. Seated players in a live game keep their seat; the
// game stalls on their turn unless a turn timeout is configured.
func (r *Room) releaseOfflineSeatsLocked(now time.Time) {
	if r.game.Phase() != spades.PhaseWaiting {
		return
	}
	for userID, m := range r.members {
		if m == nil || m.Online {
			continue
		}
		if now.Sub(m.LastSeen) < offlineSeatGrace {
			continue
		}
		if err := r.handleLeave(userID); err != nil {
			m.LastSeen = now
			log.Printf("[Room %s] auto-leave failed for offline user %s: %v", r.ID, userID, err)
			continue
		}
		log.Printf("[Room %s] Released seat of offline user %s after %s", r.ID, userID, offlineSeatGrace)
	}
}

// armTurnTimerLocked starts the auto-action clock for the seat on turn.
// Disabled when the rules carry no timeout.
func (r *Room) armTurnTimerLocked(now time.Time) {
	timeout := r.game.Rules().TurnTimeout
	seat := r.game.TurnSeat()
	if timeout <= 0 || seat == spades.InvalidSeat {
		r.clearTurnTimerLocked()
		return
	}
	r.turnSeat = seat
	r.turnDeadline = now.Add(timeout)
}

func (r *Room) clearTurnTimerLocked() {
	r.turnSeat = spades.InvalidSeat
	r.turnDeadline = time.Time{}
}

func (r *Room) handleTurnTimeoutLocked(now time.Time) error {
	if r.turnSeat == spades.InvalidSeat || r.turnDeadline.IsZero() {
		return nil
	}
	if now.Before(r.turnDeadline) {
		return nil
	}

	seat := r.turnSeat
	r.clearTurnTimerLocked()
	if r.game.TurnSeat() != seat {
		return nil
	}

	switch r.game.Phase() {
	case spades.PhaseBidding:
		bid := 0
		if !r.game.Rules().AllowNil {
			bid = 1
		}
		log.Printf("[Room %s] Turn timeout seat=%d -> auto bid %d", r.ID, seat, bid)
		if err := r.game.MakeBid(seat, bid); err != nil {
			return err
		}
	case spades.PhasePlaying:
		legal, err := r.game.LegalPlaysFor(seat)
		if err != nil {
			return err
		}
		if len(legal) == 0 {
			return fmt.Errorf("no legal plays for timeout seat %d", seat)
		}
		log.Printf("[Room %s] Turn timeout seat=%d -> auto play %s", r.ID, seat, legal[0])
		result, err := r.game.PlayCard(seat, legal[0])
		if err != nil {
			return err
		}
		if result != nil {
			r.handleHandEndLocked(result)
		}
	default:
		return nil
	}
	r.armTurnTimerLocked(now)
	r.broadcastGameLocked()
	return nil
}

// SubmitEvent sends an event to the actor and waits for the result.
func (r *Room) SubmitEvent(e Event) error {
	e.Timestamp = time.Now()
	if e.Response == nil {
		e.Response = make(chan error, 1)
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrRoomClosed
	}

	select {
	case r.events <- e:
	case <-r.done:
		return ErrRoomClosed
	}

	select {
	case err := <-e.Response:
		return err
	case <-r.done:
		return ErrRoomClosed
	}
}

// Stop shuts down the room actor.
func (r *Room) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Room) stopLocked() {
	r.closed = true
	r.nextHandAt = time.Time{}
	r.clearTurnTimerLocked()
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

func (r *Room) IsClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// IsIdleFor reports whether the room has had no seated players for ttl,
// or the game has finished and everyone has been gone for ttl.
func (r *Room) IsIdleFor(ttl time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return true
	}
	if r.game.Finished() {
		for _, m := range r.members {
			if m.Online {
				return false
			}
		}
		return true
	}
	if r.game.SeatCount() > 0 {
		return false
	}
	if r.emptySince.IsZero() {
		return false
	}
	return time.Since(r.emptySince) >= ttl
}

// Snapshot returns the current game state.
func (r *Room) Snapshot() spades.Snapshot {
	return r.game.Snapshot()
}

func (r *Room) nextSeqLocked() uint64 {
	r.serverSeq++
	return r.serverSeq
}

func (r *Room) onlineBySeatLocked() map[int]bool {
	online := make(map[int]bool, spades.NumSeats)
	for userID, m := range r.members {
		seat := r.game.SeatOf(userID)
		if seat != spades.InvalidSeat {
			online[seat] = m.Online
		}
	}
	return online
}

// sendSnapshotLocked pushes the authoritative state to one user, redacted
// and rotated for their seat.
func (r *Room) sendSnapshotLocked(userID string) {
	snap := r.game.Snapshot()
	online := r.onlineBySeatLocked()
	env := codec.ServerEnvelope{
		Type:       codec.TypeGameUpdate,
		GameID:     r.ID,
		ServerSeq:  r.nextSeqLocked(),
		ServerTsMs: time.Now().UnixMilli(),
		Game:       codec.GameViewFor(snap, r.game.SeatOf(userID), online),
	}
	r.sendEnvelopeLocked(userID, env)
}

// broadcastGameLocked pushes the state to every member, each in their own
// redacted frame. One sequence number covers the whole fan-out so all
// viewers order the update identically.
func (r *Room) broadcastGameLocked() {
	snap := r.game.Snapshot()
	online := r.onlineBySeatLocked()
	seq := r.nextSeqLocked()
	ts := time.Now().UnixMilli()
	for userID := range r.members {
		env := codec.ServerEnvelope{
			Type:       codec.TypeGameUpdate,
			GameID:     r.ID,
			ServerSeq:  seq,
			ServerTsMs: ts,
			Game:       codec.GameViewFor(snap, r.game.SeatOf(userID), online),
		}
		r.sendEnvelopeLocked(userID, env)
	}
}

func (r *Room) sendEnvelopeLocked(userID string, env codec.ServerEnvelope) {
	if r.send == nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Room %s] Failed to marshal message: %v", r.ID, err)
		return
	}
	r.pending = append(r.pending, frame{userID: userID, data: data})
}

// flushPending delivers queued frames with no room lock held.
func (r *Room) flushPending() {
	r.mu.Lock()
	frames := r.pending
	r.pending = nil
	send := r.send
	r.mu.Unlock()
	if send == nil {
		return
	}
	for _, f := range frames {
		send(f.userID, f.data)
	}
}
