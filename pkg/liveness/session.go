package liveness

import (
	"time"

	"github.com/google/uuid"
)

// State identifies a phase of the liveness session.
type State string

const (
	StateInitial              State = "initial"
	StateCenteringFace        State = "centering_face"
	StatePerformingChallenges State = "performing_challenges"
	StateCompleted            State = "completed"
)

// Session is one end-to-end liveness attempt. The challenge sequence
// is fixed at creation; CurrentChallengeIndex only ever advances, and
// the session reaches StateCompleted exactly when the index equals the
// challenge count. A session is never reused: expiry and reset replace
// it wholesale with a fresh id and a fresh random challenge order.
type Session struct {
	ID                    string
	State                 State
	Challenges            []Challenge
	CurrentChallengeIndex int
	CreatedAt             time.Time
}

// newSession creates a fresh session in the initial state.
func newSession(challenges []Challenge, now time.Time) *Session {
	return &Session{
		ID:         uuid.NewString(),
		State:      StateInitial,
		Challenges: challenges,
		CreatedAt:  now,
	}
}

// Progress returns the completed fraction of the challenge sequence.
func (s *Session) Progress() float64 {
	if len(s.Challenges) == 0 {
		return 0
	}
	return float64(s.CurrentChallengeIndex) / float64(len(s.Challenges))
}

// ActiveChallenge returns the challenge at the cursor, if any.
func (s *Session) ActiveChallenge() (*Challenge, bool) {
	if s.CurrentChallengeIndex >= len(s.Challenges) {
		return nil, false
	}
	return &s.Challenges[s.CurrentChallengeIndex], true
}

// Expired reports whether the session has exceeded the maximum duration.
func (s *Session) Expired(now time.Time, maxDuration time.Duration) bool {
	return now.Sub(s.CreatedAt) >= maxDuration
}

// completeActive marks the active challenge completed and advances the
// cursor. When the cursor reaches the end the session transitions to
// StateCompleted. Returns the completed challenge type.
func (s *Session) completeActive() ChallengeType {
	challenge := &s.Challenges[s.CurrentChallengeIndex]
	challenge.Completed = true
	s.CurrentChallengeIndex++
	if s.CurrentChallengeIndex == len(s.Challenges) {
		s.State = StateCompleted
	}
	return challenge.Type
}

// CompletedTypes returns the types of completed challenges in
// completion order.
func (s *Session) CompletedTypes() []ChallengeType {
	var done []ChallengeType
	for _, c := range s.Challenges {
		if c.Completed {
			done = append(done, c.Type)
		}
	}
	return done
}
