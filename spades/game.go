package spades

import (
	"math/rand"
	"sync"
	"time"

	"spades-live/card"
)

// Game is the authoritative state for one table. All mutating entry points
// take the mutex; callers serialize actions per game through the room actor,
// the lock additionally keeps snapshot reads atomic against the next write.
type Game struct {
	ID  string
	cfg Rules
	rng *rand.Rand

	mu sync.Mutex

	phase   Phase
	players [NumSeats]*Player

	handNo       int
	trickNo      int
	dealerSeat   int
	turnSeat     int
	spadesBroken bool
	currentTrick Trick
	playedCards  card.CardList // completed-trick cards of the current hand

	team1Score int
	team2Score int
	team1Bags  int
	team2Bags  int
	winner     int // 0 while running

	lastResult *HandResult
}

func NewGame(id string, cfg Rules) (*Game, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Game{
		ID:         id,
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(seed)),
		phase:      PhaseWaiting,
		dealerSeat: InvalidSeat,
		turnSeat:   InvalidSeat,
	}, nil
}

func (g *Game) Rules() Rules { return g.cfg }

// Join seats an identity. Only possible before the game starts.
func (g *Game) Join(seat int, id Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if seat < 0 || seat >= NumSeats {
		return ErrSeatNotFound
	}
	if g.phase != PhaseWaiting {
		return ErrAlreadyStarted
	}
	if g.players[seat] != nil {
		return ErrSeatTaken
	}
	g.players[seat] = &Player{Identity: id, Seat: seat}
	return nil
}

// Leave vacates a seat. Once the game has started seats are fixed; a
// departing player is handled as an absent seat owner by the caller.
func (g *Game) Leave(seat int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if seat < 0 || seat >= NumSeats {
		return ErrSeatNotFound
	}
	if g.phase != PhaseWaiting {
		return ErrAlreadyStarted
	}
	if g.players[seat] == nil {
		return ErrSeatNotFound
	}
	g.players[seat] = nil
	return nil
}

// SeatCount reports how many seats are filled.
func (g *Game) SeatCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.players {
		if p != nil {
			n++
		}
	}
	return n
}

// SeatOf finds the seat holding the given identity ID, or InvalidSeat.
func (g *Game) SeatOf(identityID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	for seat, p := range g.players {
		if p != nil && p.Identity.ID == identityID {
			return seat
		}
	}
	return InvalidSeat
}

// Start begins the first hand. Only the creator (seat-0 occupant) may start,
// and only with all four seats filled.
func (g *Game) Start(seat int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseWaiting {
		return ErrAlreadyStarted
	}
	if seat != 0 || g.players[0] == nil {
		return ErrOutOfTurn
	}
	for s := 0; s < NumSeats; s++ {
		if g.players[s] == nil {
			return ErrInvalidState("cannot start with open seats")
		}
	}

	g.dealerSeat = g.rng.Intn(NumSeats)
	return g.startHandLocked()
}

// StartNextHand re-enters bidding after a settlement, dealer advanced one.
func (g *Game) StartNextHand() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase == PhaseFinished {
		return ErrGameFinished
	}
	if g.phase != PhaseHandSettlement {
		return ErrWrongPhase
	}
	g.dealerSeat = NextSeat(g.dealerSeat)
	return g.startHandLocked()
}

func (g *Game) startHandLocked() error {
	g.handNo++
	g.trickNo = 0
	g.spadesBroken = false
	g.currentTrick.reset()
	g.playedCards = nil

	deck := make([]card.Card, len(FullDeck))
	copy(deck, FullDeck)
	g.rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	for s := 0; s < NumSeats; s++ {
		p := g.players[s]
		if p == nil {
			return ErrInvalidState("hand start with open seats")
		}
		p.resetForNewHand()
		hand := make(card.CardList, HandSize)
		copy(hand, deck[s*HandSize:(s+1)*HandSize])
		hand.SortBySuit()
		p.setHand(hand)
	}

	g.phase = PhaseBidding
	g.turnSeat = NextSeat(g.dealerSeat)
	return nil
}

// MakeBid validates and records a bid for the acting seat. The fourth bid
// transitions to PLAYING with the seat left of the dealer on lead.
func (g *Game) MakeBid(seat int, value int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseBidding {
		return ErrWrongPhase
	}
	if seat < 0 || seat >= NumSeats || g.players[seat] == nil {
		return ErrSeatNotFound
	}
	p := g.players[seat]
	if _, has := p.Bid(); has {
		// Replay of an accepted bid; never double-applied.
		return ErrAlreadyBid
	}
	if seat != g.turnSeat {
		return ErrOutOfTurn
	}

	blindNil := false
	switch {
	case value == BidBlindNil:
		// Blind nil is its own rule: AllowBlindNil alone gates it, even
		// when plain nil is disabled.
		if !g.cfg.AllowBlindNil {
			return ErrInvalidValue
		}
		blindNil = true
		value = 0
	case value == 0:
		if !g.cfg.AllowNil {
			return ErrInvalidValue
		}
	case value < 0 || value > TricksPerHand:
		return ErrInvalidValue
	}

	p.setBid(value, blindNil)

	for s := 0; s < NumSeats; s++ {
		if _, has := g.players[s].Bid(); !has {
			g.turnSeat = NextSeat(seat)
			return nil
		}
	}

	g.phase = PhasePlaying
	g.turnSeat = NextSeat(g.dealerSeat)
	return nil
}

// LegalPlaysFor returns the playable cards for a seat in the current trick.
func (g *Game) LegalPlaysFor(seat int) (card.CardList, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhasePlaying {
		return nil, ErrWrongPhase
	}
	if seat < 0 || seat >= NumSeats || g.players[seat] == nil {
		return nil, ErrSeatNotFound
	}
	legal := LegalPlays(g.players[seat].Hand(), &g.currentTrick, g.spadesBroken)
	legal.SortBySuit()
	return legal, nil
}

// PlayCard applies one play. When it completes the 13th trick the hand is
// settled synchronously and the result returned; the phase is then
// HAND_SETTLEMENT (next hand pending) or FINISHED (game over).
func (g *Game) PlayCard(seat int, c card.Card) (*HandResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhasePlaying {
		return nil, ErrWrongPhase
	}
	if seat < 0 || seat >= NumSeats || g.players[seat] == nil {
		return nil, ErrSeatNotFound
	}
	if seat != g.turnSeat {
		return nil, ErrOutOfTurn
	}
	p := g.players[seat]
	if !p.Hand().Contains(c) {
		return nil, ErrIllegalPlay
	}
	legal := LegalPlays(p.Hand(), &g.currentTrick, g.spadesBroken)
	if !legal.Contains(c) {
		return nil, ErrIllegalPlay
	}

	hand := p.Hand()
	hand.Remove(c)
	p.setHand(hand)
	g.currentTrick.add(seat, c)
	if c.IsSpade() {
		g.spadesBroken = true
	}

	if g.currentTrick.Size() < NumSeats {
		g.turnSeat = NextSeat(seat)
		return nil, nil
	}

	winner := g.currentTrick.Winner()
	if winner == InvalidSeat {
		return nil, ErrInvalidState("completed trick without winner")
	}
	g.players[winner].addTrick()
	for _, pc := range g.currentTrick.Plays() {
		g.playedCards.Add(pc.Card)
	}
	g.currentTrick.reset()
	g.trickNo++
	g.turnSeat = winner

	if g.trickNo < TricksPerHand {
		return nil, nil
	}

	result := g.settleHandLocked()
	g.lastResult = result
	if result.GameOver {
		g.phase = PhaseFinished
		g.winner = result.Winner
	} else {
		g.phase = PhaseHandSettlement
	}
	g.turnSeat = InvalidSeat
	return result, nil
}

// TurnSeat reports the acting seat, InvalidSeat outside BIDDING/PLAYING.
func (g *Game) TurnSeat() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turnSeat
}

func (g *Game) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

func (g *Game) Finished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase == PhaseFinished
}
