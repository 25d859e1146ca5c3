package spades

// Rotate maps the four absolute seats into an observer-relative frame: the
// observer's own seat first ("South" slot), proceeding clockwise. Pure and
// total; an unseated or unknown observer gets the absolute order unchanged,
// so spectators and lost seat lookups fall back instead of failing.
func Rotate(observerSeat int) [NumSeats]int {
	var out [NumSeats]int
	if observerSeat < 0 || observerSeat >= NumSeats {
		for i := range out {
			out[i] = i
		}
		return out
	}
	for i := range out {
		out[i] = (observerSeat + i) % NumSeats
	}
	return out
}
