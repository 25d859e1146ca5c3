package lobby

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"spades-live/internal/codec"
	"spades-live/internal/ledger"
	"spades-live/internal/room"
	"spades-live/spades"
)

// Lobby manages all rooms. It owns room creation, lookup, the finished
// and abandoned room sweep, and the ledger wiring for settlements.
type Lobby struct {
	mu    sync.RWMutex
	rooms map[string]*room.Room

	defaultRules  spades.Rules
	nextHandDelay time.Duration

	ledger    ledger.Service
	publisher *ledger.Publisher

	// sendFn delivers a frame to one user; listNotify pushes a
	// games_update to everyone watching the lobby.
	sendFn     func(userID string, data []byte)
	listNotify func(data []byte)

	serverSeq uint64
}

const roomIdleTTL = 10 * time.Minute

// New creates a lobby. sendFn may be set later via SetSender before any
// room is created.
func New(defaultRules spades.Rules, svc ledger.Service, pub *ledger.Publisher) *Lobby {
	return &Lobby{
		rooms:        make(map[string]*room.Room),
		defaultRules: defaultRules,
		ledger:       svc,
		publisher:    pub,
	}
}

// SetSender installs the per-user frame delivery callback.
func (l *Lobby) SetSender(fn func(userID string, data []byte)) {
	l.mu.Lock()
	l.sendFn = fn
	l.mu.Unlock()
}

// SetListNotifier installs the lobby-wide games_update broadcast.
func (l *Lobby) SetListNotifier(fn func(data []byte)) {
	l.mu.Lock()
	l.listNotify = fn
	l.mu.Unlock()
}

// SetNextHandDelay applies to rooms created afterwards.
func (l *Lobby) SetNextHandDelay(d time.Duration) {
	l.mu.Lock()
	l.nextHandDelay = d
	l.mu.Unlock()
}

// CreateGame makes a new room. Nil rules use the lobby defaults.
func (l *Lobby) CreateGame(rules *spades.Rules) (*room.Room, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := l.defaultRules
	if rules != nil {
		cfg = *rules
	}

	id := uuid.NewString()
	r, err := room.New(id, cfg, l.sendToUser)
	if err != nil {
		return nil, err
	}
	if l.nextHandDelay > 0 {
		r.SetNextHandDelay(l.nextHandDelay)
	}
	r.AddHandEndHook(l.onHandEnd)
	l.rooms[id] = r

	log.Printf("[Lobby] Created game %s (%d active)", id, len(l.rooms))
	return r, nil
}

// Get returns a room by ID, or codec.ErrGameNotFound.
func (l *Lobby) Get(gameID string) (*room.Room, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.rooms[gameID]
	if !ok || r.IsClosed() {
		return nil, codec.ErrGameNotFound
	}
	return r, nil
}

// ListActive returns summaries of rooms that have not finished, ordered
// by game ID for a stable listing.
func (l *Lobby) ListActive() []codec.GameSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]codec.GameSummary, 0, len(l.rooms))
	for _, r := range l.rooms {
		if r.IsClosed() {
			continue
		}
		snap := r.Snapshot()
		if snap.Phase == spades.PhaseFinished {
			continue
		}
		out = append(out, codec.SummaryFor(snap))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BroadcastGames pushes the active game list to every lobby watcher.
func (l *Lobby) BroadcastGames() {
	games := l.ListActive()

	l.mu.Lock()
	notify := l.listNotify
	l.serverSeq++
	seq := l.serverSeq
	l.mu.Unlock()

	if notify == nil {
		return
	}
	env := codec.ServerEnvelope{
		Type:       codec.TypeGamesUpdate,
		ServerSeq:  seq,
		ServerTsMs: time.Now().UnixMilli(),
		Games:      games,
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Lobby] marshal games_update failed: %v", err)
		return
	}
	notify(data)
}

// GamesEnvelope renders the current list for a single requester.
func (l *Lobby) GamesEnvelope() codec.ServerEnvelope {
	l.mu.Lock()
	l.serverSeq++
	seq := l.serverSeq
	l.mu.Unlock()
	return codec.ServerEnvelope{
		Type:       codec.TypeGamesUpdate,
		ServerSeq:  seq,
		ServerTsMs: time.Now().UnixMilli(),
		Games:      l.ListActive(),
	}
}

// StartSweeper closes idle rooms periodically until ctx is done.
func (l *Lobby) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweepIdle()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (l *Lobby) sweepIdle() {
	// Idleness is evaluated with no lobby lock held: IsIdleFor takes the
	// room lock, and a room actor may be delivering frames through the
	// lobby at the same moment. Holding l.mu across that call would order
	// the two locks both ways.
	l.mu.RLock()
	candidates := make(map[string]*room.Room, len(l.rooms))
	for id, r := range l.rooms {
		candidates[id] = r
	}
	l.mu.RUnlock()

	idle := make(map[string]*room.Room)
	for id, r := range candidates {
		if r.IsIdleFor(roomIdleTTL) {
			idle[id] = r
		}
	}
	if len(idle) == 0 {
		return
	}

	var victims []*room.Room
	l.mu.Lock()
	for id, r := range idle {
		if l.rooms[id] == r {
			victims = append(victims, r)
			delete(l.rooms, id)
		}
	}
	l.mu.Unlock()

	for _, r := range victims {
		log.Printf("[Lobby] Sweeping idle game %s", r.ID)
		r.Stop()
	}
	if len(victims) > 0 {
		l.BroadcastGames()
	}
}

// Close stops every room and the ledger connections.
func (l *Lobby) Close() {
	l.mu.Lock()
	rooms := make([]*room.Room, 0, len(l.rooms))
	for _, r := range l.rooms {
		rooms = append(rooms, r)
	}
	l.rooms = make(map[string]*room.Room)
	l.mu.Unlock()

	for _, r := range rooms {
		r.Stop()
	}
}

func (l *Lobby) sendToUser(userID string, data []byte) {
	l.mu.RLock()
	fn := l.sendFn
	l.mu.RUnlock()
	if fn != nil {
		fn(userID, data)
	}
}

// onHandEnd persists the settlement and, when the game is over, the coin
// movement per player. Runs on the room's hook goroutine.
func (l *Lobby) onHandEnd(info room.HandEndInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := info.Result
	recs := []ledger.HandRecord{
		handRecord(info.RoomID, res.HandNo, res.Team1),
		handRecord(info.RoomID, res.HandNo, res.Team2),
	}
	if err := l.ledger.RecordHandSettlement(ctx, recs); err != nil {
		log.Printf("[Lobby] record hand settlement failed: game=%s hand=%d err=%v", info.RoomID, res.HandNo, err)
	}
	l.publisher.PublishHandSettled(info.RoomID, recs)

	if !res.GameOver {
		return
	}

	outcomes := gameOutcomes(info.Snapshot, res.Winner)
	if err := l.ledger.RecordGameResult(ctx, info.RoomID, outcomes); err != nil {
		log.Printf("[Lobby] record game result failed: game=%s err=%v", info.RoomID, err)
	}
	l.publisher.PublishGameFinished(info.RoomID, outcomes)
	l.BroadcastGames()
}

func handRecord(gameID string, handNo int, tr spades.TeamResult) ledger.HandRecord {
	return ledger.HandRecord{
		GameID:     gameID,
		HandNo:     handNo,
		Team:       tr.Team,
		Bid:        tr.Bid,
		Tricks:     tr.Tricks,
		Bags:       tr.Bags,
		BagPenalty: tr.BagPenalty,
		Score:      tr.Score,
		Total:      tr.Total,
	}
}

func gameOutcomes(snap spades.Snapshot, winner int) []ledger.SeatOutcome {
	stake := snap.Rules.CoinStake
	outcomes := make([]ledger.SeatOutcome, 0, len(snap.Players))
	for _, ps := range snap.Players {
		won := ps.Team == winner
		delta := stake
		if !won {
			delta = -stake
		}
		outcomes = append(outcomes, ledger.SeatOutcome{
			UserID: ps.Identity.ID,
			Seat:   ps.Seat,
			Team:   ps.Team,
			Won:    won,
			Delta:  delta,
		})
	}
	return outcomes
}
