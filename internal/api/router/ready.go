package router

import (
	"encoding/json"
	"net/http"
)

type readyBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func writeReady(w http.ResponseWriter, status int, checks map[string]string) {
	body := readyBody{Status: "ok", Checks: checks}
	if status != http.StatusOK {
		body.Status = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
