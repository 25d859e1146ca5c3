package spades

import "spades-live/card"

const (
	NumSeats      = 4
	TricksPerHand = 13
	HandSize      = 13
)

// InvalidSeat marks "no seat", used for spectators and idle turn pointers.
const InvalidSeat = -1

// BidBlindNil is the wire sentinel for a blind nil bid. It sits outside the
// 0..13 band so it can never collide with a regular bid.
const BidBlindNil = -1

// Phase of a game lifecycle.
type Phase byte

const (
	PhaseWaiting        Phase = 0
	PhaseBidding        Phase = 1
	PhasePlaying        Phase = 2
	PhaseHandSettlement Phase = 3
	PhaseFinished       Phase = 4
)

var PhaseDictionary = map[Phase]string{
	PhaseWaiting:        "waiting",
	PhaseBidding:        "bidding",
	PhasePlaying:        "playing",
	PhaseHandSettlement: "hand_settlement",
	PhaseFinished:       "finished",
}

func (p Phase) String() string {
	if s, ok := PhaseDictionary[p]; ok {
		return s
	}
	return "unknown"
}

// TeamOfSeat derives the team from seat parity: seats 0/2 are team 1,
// seats 1/3 are team 2.
func TeamOfSeat(seat int) int {
	if seat%2 == 0 {
		return 1
	}
	return 2
}

// NextSeat is the next seat clockwise.
func NextSeat(seat int) int {
	return (seat + 1) % NumSeats
}

var FullDeck = []card.Card{
	card.CardSpadeA, card.CardSpade2, card.CardSpade3, card.CardSpade4, card.CardSpade5, card.CardSpade6,
	card.CardSpade7, card.CardSpade8, card.CardSpade9, card.CardSpadeT, card.CardSpadeJ, card.CardSpadeQ, card.CardSpadeK,
	card.CardHeartA, card.CardHeart2, card.CardHeart3, card.CardHeart4, card.CardHeart5, card.CardHeart6,
	card.CardHeart7, card.CardHeart8, card.CardHeart9, card.CardHeartT, card.CardHeartJ, card.CardHeartQ, card.CardHeartK,
	card.CardClubA, card.CardClub2, card.CardClub3, card.CardClub4, card.CardClub5, card.CardClub6,
	card.CardClub7, card.CardClub8, card.CardClub9, card.CardClubT, card.CardClubJ, card.CardClubQ, card.CardClubK,
	card.CardDiamondA, card.CardDiamond2, card.CardDiamond3, card.CardDiamond4, card.CardDiamond5, card.CardDiamond6,
	card.CardDiamond7, card.CardDiamond8, card.CardDiamond9, card.CardDiamondT, card.CardDiamondJ, card.CardDiamondQ, card.CardDiamondK,
}
