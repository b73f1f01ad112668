package workflow

import (
	"context"

	"github.com/MarcoPoloResearchLab/logolab/internal/announce"
)

// Notifier posts workflow announcements to the chat platform. Implementations
// return a message reference usable for later in-place updates.
type Notifier interface {
	PostMessage(ctx context.Context, channel string, message announce.Message) (announce.MessageRef, error)
	UpdateMessage(ctx context.Context, channel, timestamp string, message announce.Message) error
	PostEphemeral(ctx context.Context, channel, platformUserID, text string) error
}

// Channels names the two destinations the workflow posts to.
type Channels struct {
	Review string
	Voting string
}
