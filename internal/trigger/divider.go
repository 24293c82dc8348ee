package trigger

// Participates reports whether the tick with global count n takes part in a
// purpose with the given divisor. Divisors below 1 behave as 1; config load
// clamps them so the tick path never sees them.
func Participates(n, divisor uint64) bool {
	if divisor <= 1 {
		return true
	}
	return n%divisor == 0
}
