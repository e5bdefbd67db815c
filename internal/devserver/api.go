package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"quadpong/internal/lobby"
)

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /game", s.handleCreate)
	mux.HandleFunc("GET /game/{id}", s.handleGet)
	mux.HandleFunc("POST /game/{id}/join", s.handleJoin)
	mux.HandleFunc("POST /game/{id}/add_bot", s.handleAddBot)
	mux.HandleFunc("POST /game/{id}/remove_bot", s.handleRemoveBot)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func gameJSON(r *Room) lobby.Game {
	return lobby.Game{ID: r.ID, State: r.State(), CreatedAt: r.CreatedAt}
}

func playerJSON(p Player) lobby.Player {
	side := string(p.Side)
	return lobby.Player{
		ID:             p.ID,
		Name:           p.Name,
		Score:          p.Score,
		Position:       &side,
		PaddlePosition: p.PaddlePos,
		PaddleWidth:    p.PaddleWidth,
		IsReady:        p.Ready,
		IsAI:           p.AI,
	}
}

// room resolves the {id} path value, writing the error response itself.
func (s *Server) room(w http.ResponseWriter, r *http.Request) (*Room, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid game id", http.StatusBadRequest)
		return nil, false
	}
	room, ok := s.rooms.Get(id)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return nil, false
	}
	return room, true
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	room := s.rooms.Create()
	s.log.Info("game created", "game", room.ID)
	writeJSON(w, gameJSON(room))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if room, ok := s.room(w, r); ok {
		writeJSON(w, gameJSON(room))
	}
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	room, ok := s.room(w, r)
	if !ok {
		return
	}
	var req lobby.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	name := ""
	if req.Username != nil {
		name = *req.Username
	}
	p, err := room.AddPlayer(name, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.log.Info("player joined", "game", room.ID, "player", p.ID, "name", p.Name, "side", p.Side)
	writeJSON(w, playerJSON(p))
}

func (s *Server) handleAddBot(w http.ResponseWriter, r *http.Request) {
	room, ok := s.room(w, r)
	if !ok {
		return
	}
	p, err := room.AddPlayer("", true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.log.Info("bot added", "game", room.ID, "side", p.Side)
	writeJSON(w, playerJSON(p))
}

func (s *Server) handleRemoveBot(w http.ResponseWriter, r *http.Request) {
	room, ok := s.room(w, r)
	if !ok {
		return
	}
	if err := room.RemoveBot(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}
