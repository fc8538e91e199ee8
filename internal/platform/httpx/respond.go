// Package httpx provides HTTP response utilities following RFC7807 problem
// details, plus display-time formatting helpers.
package httpx

import (
	"encoding/json"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders an amount for display. Stored amounts are never
// pre-rounded; rounding happens here only.
func FormatMoney(amount float64) string {
	return moneyPrinter.Sprintf("%.2f", amount)
}
