package service

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/DemidSergeev/notes-bot/internal/domain"
)

// StartData is the static projection rendered on /start.
type StartData struct {
	Message string
	Actions []domain.StartAction
}

// StartInteraction serves the welcome message and top-level actions.
// The message is file-backed so an administrator can change it without a
// restart; reads are cached.
type StartInteraction struct {
	path     string
	fallback string

	mu      sync.RWMutex
	message string
}

// NewStartInteraction loads the welcome file, seeding it with the
// fallback text if it does not exist yet.
func NewStartInteraction(path, fallback string) (*StartInteraction, error) {
	s := &StartInteraction{path: path, fallback: fallback}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		s.message = strings.TrimSpace(string(data))
	case os.IsNotExist(err):
		s.message = fallback
		if err := os.WriteFile(path, []byte(fallback), 0o644); err != nil {
			return nil, fmt.Errorf("seed welcome file: %w", err)
		}
	default:
		return nil, fmt.Errorf("read welcome file: %w", err)
	}
	if s.message == "" {
		s.message = fallback
	}
	return s, nil
}

// GetStartData returns the welcome message plus the fixed action set.
// It has no side effects.
func (s *StartInteraction) GetStartData() StartData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StartData{
		Message: s.message,
		Actions: domain.StartActions(),
	}
}

// SetWelcome replaces the welcome message and persists it.
func (s *StartInteraction) SetWelcome(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("welcome text must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write welcome file: %w", err)
	}
	s.message = text
	return nil
}
