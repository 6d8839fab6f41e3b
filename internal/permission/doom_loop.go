package permission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// DoomLoopThreshold is the number of identical consecutive calls that
// counts as a loop.
const DoomLoopThreshold = 3

// DoomLoopAction is what happens when a loop is detected on an allowed call.
type DoomLoopAction string

const (
	// DoomLoopAsk escalates the call to an operator confirmation.
	DoomLoopAsk DoomLoopAction = "ask"
	// DoomLoopAllow lets the call through.
	DoomLoopAllow DoomLoopAction = "allow"
)

// RepeatReason is the reason attached to escalated calls.
const RepeatReason = "repeated identical call"

type streak struct {
	hash  string
	count int
}

// DoomLoopDetector counts identical consecutive calls per session.
type DoomLoopDetector struct {
	mu      sync.Mutex
	streaks map[string]streak
}

// NewDoomLoopDetector creates a new detector.
func NewDoomLoopDetector() *DoomLoopDetector {
	return &DoomLoopDetector{streaks: make(map[string]streak)}
}

// Observe records a call and reports whether it completes a run of
// DoomLoopThreshold identical calls in the session.
func (d *DoomLoopDetector) Observe(sessionID, toolName string, input any) bool {
	hash := hashCall(toolName, input)

	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.streaks[sessionID]
	if s.hash == hash {
		s.count++
	} else {
		s = streak{hash: hash, count: 1}
	}
	d.streaks[sessionID] = s
	return s.count >= DoomLoopThreshold
}

// Clear forgets a session.
func (d *DoomLoopDetector) Clear(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.streaks, sessionID)
}

func hashCall(toolName string, input any) string {
	// encoding/json sorts map keys, so equal arguments hash equally.
	data, _ := json.Marshal(map[string]any{
		"tool":  toolName,
		"input": input,
	})
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
