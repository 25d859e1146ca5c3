package codec

import (
	"errors"
	"fmt"
	"time"

	"spades-live/card"
	"spades-live/spades"
)

// Client -> server command types.
const (
	TypeCreateGame = "create_game"
	TypeJoinGame   = "join_game"
	TypeLeaveGame  = "leave_game"
	TypeStartGame  = "start_game"
	TypeMakeBid    = "make_bid"
	TypePlayCard   = "play_card"
	TypeGetGame    = "get_game"
	TypeGetGames   = "get_games"
)

// Server -> client event types.
const (
	TypeGameUpdate  = "game_update"
	TypeGamesUpdate = "games_update"
	TypeError       = "error"
)

// Error codes carried on the error event. All are recoverable-by-retry;
// a rejected command never terminates the connection.
const (
	CodeOutOfTurn      = "OUT_OF_TURN"
	CodeWrongPhase     = "WRONG_PHASE"
	CodeInvalidValue   = "INVALID_VALUE"
	CodeIllegalPlay    = "ILLEGAL_PLAY"
	CodeSeatTaken      = "SEAT_TAKEN"
	CodeSeatNotFound   = "SEAT_NOT_FOUND"
	CodeGameNotFound   = "GAME_NOT_FOUND"
	CodeAlreadyStarted = "ALREADY_STARTED"
	CodeAlreadyBid     = "ALREADY_BID"
	CodeBadMessage     = "BAD_MESSAGE"
)

// ErrGameNotFound is returned by lookups above the engine; it maps to
// GAME_NOT_FOUND on the wire.
var ErrGameNotFound = errors.New("game not found")

type ClientEnvelope struct {
	Type     string    `json:"type"`
	GameID   string    `json:"game_id,omitempty"`
	Seat     *int      `json:"seat,omitempty"`
	Identity *Identity `json:"identity,omitempty"`
	Rules    *Rules    `json:"rules,omitempty"`
	Bid      *int      `json:"bid,omitempty"`
	Card     *Card     `json:"card,omitempty"`
}

type ServerEnvelope struct {
	Type       string        `json:"type"`
	GameID     string        `json:"game_id,omitempty"`
	ServerSeq  uint64        `json:"server_seq,omitempty"`
	ServerTsMs int64         `json:"server_ts_ms,omitempty"`
	Game       *GameView     `json:"game,omitempty"`
	Games      []GameSummary `json:"games,omitempty"`
	Error      *ErrorEvent   `json:"error,omitempty"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

func (i Identity) ToEngine() spades.Identity {
	return spades.Identity{ID: i.ID, Name: i.Name, Image: i.Image}
}

func IdentityFromEngine(id spades.Identity) Identity {
	return Identity{ID: id.ID, Name: id.Name, Image: id.Image}
}

// Card is the wire form: suit by name, rank 2..14 with Ace = 14.
type Card struct {
	Suit string `json:"suit"`
	Rank int    `json:"rank"`
}

var suitNames = map[card.Suit]string{
	card.Spade:   "spades",
	card.Heart:   "hearts",
	card.Club:    "clubs",
	card.Diamond: "diamonds",
}

func CardToWire(c card.Card) Card {
	return Card{Suit: suitNames[c.Suit()], Rank: c.TrickVal()}
}

func CardFromWire(w Card) (card.Card, error) {
	for s, name := range suitNames {
		if name == w.Suit {
			return card.FromSuitRank(s, w.Rank)
		}
	}
	return card.CardInvalid, fmt.Errorf("invalid suit: %q", w.Suit)
}

func CardsToWire(cs card.CardList) []Card {
	out := make([]Card, len(cs))
	for i, c := range cs {
		out[i] = CardToWire(c)
	}
	return out
}

// Rules is the wire form of the game configuration.
type Rules struct {
	AllowNil       bool  `json:"allow_nil"`
	AllowBlindNil  bool  `json:"allow_blind_nil"`
	MinPoints      int   `json:"min_points"`
	MaxPoints      int   `json:"max_points"`
	CoinStake      int64 `json:"coin_stake"`
	TurnTimeoutSec int   `json:"turn_timeout_sec,omitempty"`
}

func RulesToWire(r spades.Rules) Rules {
	return Rules{
		AllowNil:       r.AllowNil,
		AllowBlindNil:  r.AllowBlindNil,
		MinPoints:      r.MinPoints,
		MaxPoints:      r.MaxPoints,
		CoinStake:      r.CoinStake,
		TurnTimeoutSec: int(r.TurnTimeout / time.Second),
	}
}

func RulesFromWire(w Rules) spades.Rules {
	return spades.Rules{
		AllowNil:      w.AllowNil,
		AllowBlindNil: w.AllowBlindNil,
		MinPoints:     w.MinPoints,
		MaxPoints:     w.MaxPoints,
		CoinStake:     w.CoinStake,
		TurnTimeout:   time.Duration(w.TurnTimeoutSec) * time.Second,
	}
}

type PlayerView struct {
	Identity  Identity `json:"identity"`
	Seat      int      `json:"seat"`
	Team      int      `json:"team"`
	Bid       *int     `json:"bid,omitempty"`
	BlindNil  bool     `json:"blind_nil,omitempty"`
	TricksWon int      `json:"tricks_won"`
	IsDealer  bool     `json:"is_dealer"`
	Connected bool     `json:"connected"`

	// Hand is present only in the owner's view; everyone else sees the
	// count alone.
	Hand      []Card `json:"hand,omitempty"`
	HandCount int    `json:"hand_count"`
}

type TrickPlayView struct {
	Seat int  `json:"seat"`
	Card Card `json:"card"`
}

type TeamResultView struct {
	Team       int `json:"team"`
	Bid        int `json:"bid"`
	Tricks     int `json:"tricks"`
	BidScore   int `json:"bid_score"`
	NilScore   int `json:"nil_score"`
	Bags       int `json:"bags"`
	BagPenalty int `json:"bag_penalty"`
	Score      int `json:"score"`
	Total      int `json:"total"`
}

type SeatResultView struct {
	Seat      int  `json:"seat"`
	Bid       int  `json:"bid"`
	BlindNil  bool `json:"blind_nil,omitempty"`
	Nil       bool `json:"nil,omitempty"`
	TricksWon int  `json:"tricks_won"`
	NilScore  int  `json:"nil_score,omitempty"`
}

type HandResultView struct {
	HandNo   int              `json:"hand_no"`
	Seats    []SeatResultView `json:"seats,omitempty"`
	Team1    TeamResultView   `json:"team1"`
	Team2    TeamResultView   `json:"team2"`
	GameOver bool             `json:"game_over"`
	Winner   int              `json:"winner,omitempty"`
}

// GameView is the full authoritative snapshot as one viewer sees it.
type GameView struct {
	ID           string          `json:"id"`
	Phase        string          `json:"phase"`
	Rules        Rules           `json:"rules"`
	HandNo       int             `json:"hand_no"`
	TrickNo      int             `json:"trick_no"`
	DealerSeat   int             `json:"dealer_seat"`
	TurnSeat     int             `json:"turn_seat"`
	SpadesBroken bool            `json:"spades_broken"`
	CurrentTrick []TrickPlayView `json:"current_trick"`
	Players      []PlayerView    `json:"players"`
	SeatOrder    [4]int          `json:"seat_order"`
	Team1Score   int             `json:"team1_score"`
	Team2Score   int             `json:"team2_score"`
	Team1Bags    int             `json:"team1_bags"`
	Team2Bags    int             `json:"team2_bags"`
	Winner       int             `json:"winner,omitempty"`
	LastHand     *HandResultView `json:"last_hand,omitempty"`
}

type GameSummary struct {
	ID      string   `json:"id"`
	Phase   string   `json:"phase"`
	Seats   int      `json:"seats"`
	Players []string `json:"players"`
	Rules   Rules    `json:"rules"`
}

func teamResultToView(tr spades.TeamResult) TeamResultView {
	return TeamResultView{
		Team:       tr.Team,
		Bid:        tr.Bid,
		Tricks:     tr.Tricks,
		BidScore:   tr.BidScore,
		NilScore:   tr.NilScore,
		Bags:       tr.Bags,
		BagPenalty: tr.BagPenalty,
		Score:      tr.Score,
		Total:      tr.Total,
	}
}

func HandResultToView(res *spades.HandResult) *HandResultView {
	if res == nil {
		return nil
	}
	out := &HandResultView{
		HandNo:   res.HandNo,
		Team1:    teamResultToView(res.Team1),
		Team2:    teamResultToView(res.Team2),
		GameOver: res.GameOver,
		Winner:   res.Winner,
	}
	for _, sr := range res.Seats {
		out.Seats = append(out.Seats, SeatResultView{
			Seat:      sr.Seat,
			Bid:       sr.Bid,
			BlindNil:  sr.BlindNil,
			Nil:       sr.Nil,
			TricksWon: sr.TricksWon,
			NilScore:  sr.NilScore,
		})
	}
	return out
}

// GameViewFor renders a snapshot for one viewer: the viewer's hand is the
// only hand exposed, and seats are listed in the viewer's rotated frame
// (absolute order for spectators).
func GameViewFor(snap spades.Snapshot, viewerSeat int, online map[int]bool) *GameView {
	view := &GameView{
		ID:           snap.ID,
		Phase:        snap.Phase.String(),
		Rules:        RulesToWire(snap.Rules),
		HandNo:       snap.HandNo,
		TrickNo:      snap.TrickNo,
		DealerSeat:   snap.DealerSeat,
		TurnSeat:     snap.TurnSeat,
		SpadesBroken: snap.SpadesBroken,
		SeatOrder:    spades.Rotate(viewerSeat),
		Team1Score:   snap.Team1Score,
		Team2Score:   snap.Team2Score,
		Team1Bags:    snap.Team1Bags,
		Team2Bags:    snap.Team2Bags,
		Winner:       snap.Winner,
		LastHand:     HandResultToView(snap.LastResult),
	}

	for _, pc := range snap.CurrentTrick {
		view.CurrentTrick = append(view.CurrentTrick, TrickPlayView{Seat: pc.Seat, Card: CardToWire(pc.Card)})
	}

	bySeat := make(map[int]spades.PlayerSnapshot, len(snap.Players))
	for _, ps := range snap.Players {
		bySeat[ps.Seat] = ps
	}
	for _, seat := range view.SeatOrder {
		ps, ok := bySeat[seat]
		if !ok {
			continue
		}
		pv := PlayerView{
			Identity:  IdentityFromEngine(ps.Identity),
			Seat:      ps.Seat,
			Team:      ps.Team,
			BlindNil:  ps.BlindNil,
			TricksWon: ps.TricksWon,
			IsDealer:  ps.IsDealer,
			Connected: online[ps.Seat],
			HandCount: len(ps.Hand),
		}
		if ps.HasBid {
			bid := ps.Bid
			pv.Bid = &bid
		}
		if ps.Seat == viewerSeat {
			pv.Hand = CardsToWire(ps.Hand)
		}
		view.Players = append(view.Players, pv)
	}
	return view
}

func SummaryFor(snap spades.Snapshot) GameSummary {
	s := GameSummary{
		ID:    snap.ID,
		Phase: snap.Phase.String(),
		Seats: len(snap.Players),
		Rules: RulesToWire(snap.Rules),
	}
	for _, ps := range snap.Players {
		s.Players = append(s.Players, ps.Identity.Name)
	}
	return s
}

// WrapError builds an error event for a rejected command.
func WrapError(gameID string, err error) ServerEnvelope {
	return ServerEnvelope{
		Type:       TypeError,
		GameID:     gameID,
		ServerTsMs: time.Now().UnixMilli(),
		Error:      &ErrorEvent{Code: ErrorCode(err), Message: err.Error()},
	}
}

// ErrorCode maps engine and lookup errors to wire codes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, spades.ErrOutOfTurn):
		return CodeOutOfTurn
	case errors.Is(err, spades.ErrWrongPhase), errors.Is(err, spades.ErrGameFinished):
		return CodeWrongPhase
	case errors.Is(err, spades.ErrInvalidValue):
		return CodeInvalidValue
	case errors.Is(err, spades.ErrIllegalPlay):
		return CodeIllegalPlay
	case errors.Is(err, spades.ErrSeatTaken):
		return CodeSeatTaken
	case errors.Is(err, spades.ErrSeatNotFound):
		return CodeSeatNotFound
	case errors.Is(err, spades.ErrAlreadyStarted):
		return CodeAlreadyStarted
	case errors.Is(err, spades.ErrAlreadyBid):
		return CodeAlreadyBid
	case errors.Is(err, ErrGameNotFound):
		return CodeGameNotFound
	default:
		return CodeBadMessage
	}
}
