package handler

import (
	"time"

	"meetgogo/backend/internal/archive"
	"meetgogo/backend/internal/matchmaker"
	"meetgogo/backend/internal/store"
)

// Handler carries the wiring every HTTP endpoint needs.
type Handler struct {
	Store       store.Store
	Archive     archive.Archive
	Matchmaker  *matchmaker.Matchmaker
	JWTSecret   []byte
	TypingQuiet time.Duration
	STUNServers []string
}

// NewHandler builds the handler set.
func NewHandler(st store.Store, arch archive.Archive, m *matchmaker.Matchmaker, jwtSecret []byte, typingQuiet time.Duration, stunServers []string) *Handler {
	return &Handler{
		Store:       st,
		Archive:     arch,
		Matchmaker:  m,
		JWTSecret:   jwtSecret,
		TypingQuiet: typingQuiet,
		STUNServers: stunServers,
	}
}
