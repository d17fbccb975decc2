// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package consoleapi contains the HTTP controllers of the console server.
package consoleapi

import (
	"encoding/json"
	"net/http"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"
)

var mon = monkit.Package()

func serveJSON(log *zap.Logger, w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.Error("failed to write json response", zap.Error(err))
	}
}

func serveJSONError(log *zap.Logger, w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	var response struct {
		Error string `json:"error"`
	}
	response.Error = err.Error()

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error("failed to write json error response", zap.Error(err))
	}
}
