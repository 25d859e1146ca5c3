package spades

import "spades-live/card"

type PlayerSnapshot struct {
	Identity  Identity
	Seat      int
	Team      int
	Bid       int
	HasBid    bool
	BlindNil  bool
	TricksWon int
	IsDealer  bool
	Hand      card.CardList // full hand; redacted per viewer by the codec
}

type Snapshot struct {
	ID    string
	Phase Phase
	Rules Rules

	HandNo  int
	TrickNo int

	DealerSeat   int
	TurnSeat     int
	SpadesBroken bool
	CurrentTrick []PlayedCard

	Players []PlayerSnapshot // occupied seats only, seat order

	Team1Score int
	Team2Score int
	Team1Bags  int
	Team2Bags  int
	Winner     int

	LastResult *HandResult
}

func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Snapshot{
		ID:           g.ID,
		Phase:        g.phase,
		Rules:        g.cfg,
		HandNo:       g.handNo,
		TrickNo:      g.trickNo,
		DealerSeat:   g.dealerSeat,
		TurnSeat:     g.turnSeat,
		SpadesBroken: g.spadesBroken,
		CurrentTrick: g.currentTrick.Plays(),
		Team1Score:   g.team1Score,
		Team2Score:   g.team2Score,
		Team1Bags:    g.team1Bags,
		Team2Bags:    g.team2Bags,
		Winner:       g.winner,
		LastResult:   g.lastResult,
	}

	for seat := 0; seat < NumSeats; seat++ {
		p := g.players[seat]
		if p == nil {
			continue
		}
		bid, hasBid := p.Bid()
		s.Players = append(s.Players, PlayerSnapshot{
			Identity:  p.Identity,
			Seat:      seat,
			Team:      p.Team(),
			Bid:       bid,
			HasBid:    hasBid,
			BlindNil:  p.IsBlindNil(),
			TricksWon: p.TricksWon(),
			IsDealer:  seat == g.dealerSeat,
			Hand:      append(card.CardList{}, p.Hand()...),
		})
	}
	return s
}
