package grading

// Tier is a certificate level derived from a final psychometric score.
type Tier string

const (
	TierAPlus Tier = "A+"
	TierA     Tier = "A"
	TierBPlus Tier = "B+"
	TierB     Tier = "B"
	TierCPlus Tier = "C+"
	TierC     Tier = "C"
	TierNone  Tier = ""
)

var tierFloors = []struct {
	min  float64
	tier Tier
}{
	{70, TierAPlus},
	{65, TierA},
	{60, TierBPlus},
	{55, TierB},
	{50, TierCPlus},
	{46, TierC},
}

// TierFor maps a final score to its tier; lower bounds are inclusive.
func TierFor(score float64) Tier {
	for _, f := range tierFloors {
		if score >= f.min {
			return f.tier
		}
	}
	return TierNone
}

// Label is the tier for display; TierNone reads as "-".
func (t Tier) Label() string {
	if t == TierNone {
		return "-"
	}
	return string(t)
}
