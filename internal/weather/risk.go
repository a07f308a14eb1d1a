package weather

const (
	rainThresholdPercent = 40.0
	windThresholdMs      = 10.0
	coldThresholdC       = 0.0
)

// Classify scores rain, wind and cold risk. Two or more factors make a day
// high risk, one makes it medium. Unknown metrics never count.
func Classify(precip, wind, temp *float64) RiskLevel {
	score := 0
	if precip != nil && *precip >= rainThresholdPercent {
		score++
	}
	if wind != nil && *wind >= windThresholdMs {
		score++
	}
	if temp != nil && *temp <= coldThresholdC {
		score++
	}

	switch {
	case score >= 2:
		return RiskHigh
	case score == 1:
		return RiskMedium
	default:
		return RiskLow
	}
}
