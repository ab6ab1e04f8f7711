package progression

// NextStreak returns the streak after a day: incremented when the pillar had
// activity, reset to zero otherwise.
func NextStreak(current int, active bool) int {
	if !active {
		return 0
	}
	if current < 0 {
		current = 0
	}
	return current + 1
}

// Activity records which pillars had activity on a given day.
type Activity map[Pillar]bool

// Active reports whether a pillar had activity.
func (a Activity) Active(p Pillar) bool {
	return a[p]
}
