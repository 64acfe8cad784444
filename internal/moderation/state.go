// Package moderation holds the room-wide policy toggles. The state is
// in-memory only: a process restart resets the room to unlocked with
// disappearing messages off, which callers must not rely on surviving.
package moderation

import "sync"

type Settings struct {
	AdminsOnly             bool `json:"adminsOnly"`
	GlobalDisappearingTime int  `json:"globalDisappearingTime"`
}

// Update carries a partial settings change; nil fields are left untouched.
type Update struct {
	AdminsOnly             *bool `json:"adminsOnly,omitempty"`
	GlobalDisappearingTime *int  `json:"globalDisappearingTime,omitempty"`
}

type State struct {
	mu       sync.RWMutex
	settings Settings
}

func NewState() *State {
	return &State{}
}

func (s *State) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Apply merges the update field by field and returns the resulting settings.
func (s *State) Apply(update Update) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.AdminsOnly != nil {
		s.settings.AdminsOnly = *update.AdminsOnly
	}
	if update.GlobalDisappearingTime != nil {
		value := *update.GlobalDisappearingTime
		if value < 0 {
			value = 0
		}
		s.settings.GlobalDisappearingTime = value
	}

	return s.settings
}
