package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestNewStateDefaults(t *testing.T) {
	s := NewState()
	assert.Equal(t, Settings{}, s.Snapshot())
}

func TestApplyMergesPartialUpdates(t *testing.T) {
	s := NewState()

	got := s.Apply(Update{AdminsOnly: boolPtr(true)})
	assert.Equal(t, Settings{AdminsOnly: true}, got)

	// Setting only the timer must not touch the lock.
	got = s.Apply(Update{GlobalDisappearingTime: intPtr(90)})
	assert.Equal(t, Settings{AdminsOnly: true, GlobalDisappearingTime: 90}, got)

	// Empty update changes nothing.
	got = s.Apply(Update{})
	assert.Equal(t, Settings{AdminsOnly: true, GlobalDisappearingTime: 90}, got)

	got = s.Apply(Update{AdminsOnly: boolPtr(false), GlobalDisappearingTime: intPtr(0)})
	assert.Equal(t, Settings{}, got)
}

func TestApplyClampsNegativeTimer(t *testing.T) {
	s := NewState()
	got := s.Apply(Update{GlobalDisappearingTime: intPtr(-5)})
	assert.Equal(t, 0, got.GlobalDisappearingTime)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewState()
	s.Apply(Update{GlobalDisappearingTime: intPtr(30)})

	snap := s.Snapshot()
	snap.GlobalDisappearingTime = 999

	assert.Equal(t, 30, s.Snapshot().GlobalDisappearingTime)
}
