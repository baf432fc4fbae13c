package domain

// RiskFactor is one contribution to a risk score.
type RiskFactor struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Points      int    `json:"points"`
}

// RiskAssessment is the structured result of scoring a charge.
type RiskAssessment struct {
	Score   int          `json:"score"`
	Level   RiskLevel    `json:"level"`
	Factors []RiskFactor `json:"factors"`
}
