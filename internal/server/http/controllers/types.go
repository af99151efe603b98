package controllers

import "github.com/rzbill/flocheck/internal/harness"

type healthResp struct {
	Status string `json:"status"`
	Role   string `json:"role"`
}

// runResp is the /v1/run body. Result is set once the run is terminal.
type runResp struct {
	RunID  string          `json:"runId"`
	Status string          `json:"status"`
	Result *harness.Result `json:"result,omitempty"`
}

type ledgerResp struct {
	Count int   `json:"count"`
	IDs   []int `json:"ids,omitempty"`
}

type deadLettersResp struct {
	Topic string `json:"topic"`
	IDs   []int  `json:"ids"`
}
