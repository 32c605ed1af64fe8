package subscription

import "encoding/json"

const (
	tokenPath   = "/auth-v1/users/tokens"
	summaryPath = "/api/products/%s/summary"
	sectionPath = "/api/products/%s/%s/%s"
)

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Data struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	} `json:"data"`
}

// summaryResponse wraps the product summary
type summaryResponse struct {
	Data json.RawMessage `json:"data"`
}
