// Package server wires HTTP handlers into a router for the pairchat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures and returns a router with all application routes
// bound to hub.
func SetupRoutes(hub *Hub) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", HealthHandler)
	r.HandleFunc("/ws", NewWebSocketHandler(hub)).Methods(http.MethodGet)
	r.HandleFunc("/rooms", NewRoomsHandler(hub)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/test", TestPageHandler).Methods(http.MethodGet)
	return r
}
