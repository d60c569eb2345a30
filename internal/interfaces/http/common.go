// Package http contains the HTTP handlers for the API surface.
package http

import (
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
