package duel

// RakePercent is the share of the pot retained by the house.
const RakePercent = 5

// PickWinner selects the winning bet: the strictly highest roll wins, and
// equal maximum rolls resolve to the lowest join index. The tie-break is a
// deliberate, auditable rule, not a traversal accident. Returns nil when no
// bet has rolled.
func PickWinner(bets []*Bet) *Bet {
	var winner *Bet
	for _, b := range bets {
		if b.Roll < 0 {
			continue
		}
		if winner == nil || b.Roll > winner.Roll {
			winner = b
		}
	}
	return winner
}

// WinnerPayout is the amount credited to the winning bet: the full pot minus
// the house rake, floored to the smallest currency unit.
func WinnerPayout(amount int64, slotCount int) int64 {
	return amount * int64(slotCount) * (100 - RakePercent) / 100
}
