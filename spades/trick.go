package spades

import "spades-live/card"

// PlayedCard stores a card along with the seat that played it.
type PlayedCard struct {
	Seat int
	Card card.Card
}

// Trick is the ordered sequence of up to four plays in the current round.
type Trick struct {
	plays []PlayedCard
}

func (t *Trick) Size() int { return len(t.plays) }

func (t *Trick) Plays() []PlayedCard {
	return append([]PlayedCard{}, t.plays...)
}

// LeadSuit returns the suit of the first play. Only valid when Size() > 0.
func (t *Trick) LeadSuit() card.Suit {
	return t.plays[0].Card.Suit()
}

func (t *Trick) add(seat int, c card.Card) {
	t.plays = append(t.plays, PlayedCard{Seat: seat, Card: c})
}

func (t *Trick) reset() {
	t.plays = nil
}

// Winner determines the winning seat: the highest-ranked spade if any spade
// was played, otherwise the highest-ranked card of the led suit. Returns
// InvalidSeat for an empty trick. Ties cannot occur in a single deck.
func (t *Trick) Winner() int {
	if len(t.plays) == 0 {
		return InvalidSeat
	}

	winner := InvalidSeat
	best := -1
	for _, pc := range t.plays {
		if !pc.Card.IsSpade() {
			continue
		}
		if pc.Card.TrickVal() > best {
			best = pc.Card.TrickVal()
			winner = pc.Seat
		}
	}
	if winner != InvalidSeat {
		return winner
	}

	lead := t.LeadSuit()
	for _, pc := range t.plays {
		if pc.Card.Suit() != lead {
			continue
		}
		if pc.Card.TrickVal() > best {
			best = pc.Card.TrickVal()
			winner = pc.Seat
		}
	}
	return winner
}

// LegalPlays computes the playable subset of hand for the current trick.
//
// Leading: spades are excluded until broken, unless the hand holds nothing
// but spades. Following: must follow the led suit when able; a void hand
// may play anything, including a spade (which breaks spades).
func LegalPlays(hand card.CardList, trick *Trick, spadesBroken bool) card.CardList {
	legal := make(card.CardList, 0, len(hand))

	if trick == nil || trick.Size() == 0 {
		if spadesBroken {
			legal = append(legal, hand...)
			return legal
		}
		for _, c := range hand {
			if !c.IsSpade() {
				legal = append(legal, c)
			}
		}
		if len(legal) == 0 {
			// Nothing but spades left; forced to lead one.
			legal = append(legal, hand...)
		}
		return legal
	}

	lead := trick.LeadSuit()
	for _, c := range hand {
		if c.Suit() == lead {
			legal = append(legal, c)
		}
	}
	if len(legal) == 0 {
		legal = append(legal, hand...)
	}
	return legal
}
