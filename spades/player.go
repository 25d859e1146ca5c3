package spades

import "spades-live/card"

// Identity is the externally-provided player identity. Credential handling
// lives outside the engine; the core only carries these three fields.
type Identity struct {
	ID    string
	Name  string
	Image string
}

type Player struct {
	Identity Identity
	Seat     int

	hand      card.CardList
	bid       int
	hasBid    bool
	blindNil  bool
	tricksWon int
}

func (p *Player) Team() int { return TeamOfSeat(p.Seat) }

func (p *Player) Hand() card.CardList { return p.hand }

// Bid returns the recorded bid and whether one has been made.
func (p *Player) Bid() (int, bool) { return p.bid, p.hasBid }

func (p *Player) IsBlindNil() bool { return p.blindNil }
func (p *Player) TricksWon() int   { return p.tricksWon }

func (p *Player) resetForNewHand() {
	p.hand = nil
	p.bid = 0
	p.hasBid = false
	p.blindNil = false
	p.tricksWon = 0
}

func (p *Player) setHand(cards card.CardList) {
	p.hand = cards
}

func (p *Player) setBid(value int, blindNil bool) {
	p.bid = value
	p.hasBid = true
	p.blindNil = blindNil
}

func (p *Player) addTrick() { p.tricksWon++ }
