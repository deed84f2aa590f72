package model

// ChainFunding is the subtotal of one chain within a project.
type ChainFunding struct {
	Amount   float64 `json:"amount"`
	USDValue float64 `json:"usdValue"`
	Count    int     `json:"count"`
}

// ProjectFunding is the derived funding view of a project.
type ProjectFunding struct {
	ProjectID         string                 `json:"projectId"`
	ByChain           map[Chain]ChainFunding `json:"byChain"`
	TotalUSD          float64                `json:"totalUsd"`
	ContributionCount int                    `json:"contributionCount"`
}
