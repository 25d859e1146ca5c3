package spades

// SeatResult breaks down one player's contribution to a hand settlement.
type SeatResult struct {
	Seat      int
	Bid       int
	BlindNil  bool
	Nil       bool
	TricksWon int
	NilScore  int // ±100 nil, ±200 blind nil, 0 otherwise
}

// TeamResult aggregates one team's hand outcome.
type TeamResult struct {
	Team       int
	Bid        int // sum of non-nil bids
	Tricks     int
	BidScore   int // ±10 × bid
	NilScore   int // net nil component
	Bags       int // bags earned this hand
	BagPenalty int // -100 per crossed multiple of 10 (cumulative bags)
	Score      int // total hand delta
	Total      int // cumulative team score after the hand
	TotalBags  int // cumulative bags after the hand
}

// HandResult is the settlement of one completed 13-trick hand.
type HandResult struct {
	HandNo int
	Seats  []SeatResult
	Team1  TeamResult
	Team2  TeamResult

	GameOver bool
	Winner   int // 1 or 2 when GameOver
}

// settleHandLocked folds the finished hand into cumulative team scores and
// decides completion. Bags accumulate across the whole game; every crossed
// multiple of 10 costs 100 points.
func (g *Game) settleHandLocked() *HandResult {
	out := &HandResult{HandNo: g.handNo}

	t1 := g.scoreTeamLocked(1, g.team1Score, g.team1Bags, out)
	t2 := g.scoreTeamLocked(2, g.team2Score, g.team2Bags, out)

	g.team1Score = t1.Total
	g.team1Bags = t1.TotalBags
	g.team2Score = t2.Total
	g.team2Bags = t2.TotalBags
	out.Team1 = t1
	out.Team2 = t2

	out.GameOver, out.Winner = decideCompletion(t1.Total, t2.Total, g.cfg.MinPoints, g.cfg.MaxPoints)
	return out
}

func (g *Game) scoreTeamLocked(team, prevScore, prevBags int, out *HandResult) TeamResult {
	tr := TeamResult{Team: team}

	for s := 0; s < NumSeats; s++ {
		p := g.players[s]
		if p == nil || p.Team() != team {
			continue
		}
		bid, _ := p.Bid()
		sr := SeatResult{
			Seat:      s,
			Bid:       bid,
			BlindNil:  p.IsBlindNil(),
			Nil:       bid == 0,
			TricksWon: p.TricksWon(),
		}
		tr.Tricks += p.TricksWon()
		switch {
		case p.IsBlindNil():
			if p.TricksWon() == 0 {
				sr.NilScore = 200
			} else {
				sr.NilScore = -200
			}
		case bid == 0:
			if p.TricksWon() == 0 {
				sr.NilScore = 100
			} else {
				sr.NilScore = -100
			}
		default:
			tr.Bid += bid
		}
		tr.NilScore += sr.NilScore
		out.Seats = append(out.Seats, sr)
	}

	if tr.Tricks >= tr.Bid {
		tr.BidScore = 10 * tr.Bid
		tr.Bags = tr.Tricks - tr.Bid
	} else {
		tr.BidScore = -10 * tr.Bid
	}

	tr.TotalBags = prevBags + tr.Bags
	tr.BagPenalty = -100 * (tr.TotalBags/10 - prevBags/10)

	tr.Score = tr.BidScore + tr.Bags + tr.NilScore + tr.BagPenalty
	tr.Total = prevScore + tr.Score
	return tr
}

// decideCompletion applies the threshold decision table. A game ends as
// soon as either score sits beyond a threshold and the scores differ; the
// higher score wins. Equal scores at a shared threshold push the game into
// one more hand.
func decideCompletion(t1, t2, minPoints, maxPoints int) (bool, int) {
	crossed := t1 >= maxPoints || t2 >= maxPoints || t1 <= minPoints || t2 <= minPoints
	if !crossed || t1 == t2 {
		return false, 0
	}
	if t1 > t2 {
		return true, 1
	}
	return true, 2
}
