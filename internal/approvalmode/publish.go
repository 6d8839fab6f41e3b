package approvalmode

import (
	"context"

	"github.com/opencode-ai/toolgate/internal/event"
)

// PublishChanges publishes a ModeChanged message on bus after every
// transition of s. The returned function stops publishing.
func PublishChanges(s *State, bus *event.Bus) func() {
	return s.Observe(func(prev, next Mode) {
		err := bus.Publish(context.Background(), event.ModeChanged{
			Previous: string(prev),
			Current:  string(next),
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("mode change notification failed")
		}
	})
}
