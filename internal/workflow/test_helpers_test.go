package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/logolab/internal/announce"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const (
	testReviewChannel = "C-REVIEW"
	testVotingChannel = "C-VOTING"
	testAdminID       = "U-ADMIN"
)

type postedMessage struct {
	Channel string
	Message announce.Message
}

type updatedMessage struct {
	Channel   string
	Timestamp string
	Message   announce.Message
}

type ephemeralNotice struct {
	Channel string
	UserID  string
	Text    string
}

// recordingNotifier captures outbound announcements and can be told to fail.
type recordingNotifier struct {
	mu         sync.Mutex
	posted     []postedMessage
	updated    []updatedMessage
	ephemerals []ephemeralNotice
	failPosts  bool
	nextTS     int
}

func (n *recordingNotifier) PostMessage(_ context.Context, channel string, message announce.Message) (announce.MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failPosts {
		return announce.MessageRef{}, fmt.Errorf("post rejected")
	}
	n.posted = append(n.posted, postedMessage{Channel: channel, Message: message})
	n.nextTS++
	return announce.MessageRef{Channel: channel, Timestamp: fmt.Sprintf("170000000%d.000100", n.nextTS)}, nil
}

func (n *recordingNotifier) UpdateMessage(_ context.Context, channel, timestamp string, message announce.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failPosts {
		return fmt.Errorf("update rejected")
	}
	n.updated = append(n.updated, updatedMessage{Channel: channel, Timestamp: timestamp, Message: message})
	return nil
}

func (n *recordingNotifier) PostEphemeral(_ context.Context, channel, userID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ephemerals = append(n.ephemerals, ephemeralNotice{Channel: channel, UserID: userID, Text: text})
	return nil
}

func (n *recordingNotifier) postedTo(channel string) []postedMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var matches []postedMessage
	for _, message := range n.posted {
		if message.Channel == channel {
			matches = append(matches, message)
		}
	}
	return matches
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *recordingNotifier) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&User{}, &Submission{}, &Vote{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	notifier := &recordingNotifier{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000000, 0) },
		IDProvider: NewUUIDProvider(),
		Notifier:   notifier,
		Channels: Channels{
			Review: testReviewChannel,
			Voting: testVotingChannel,
		},
		AdminUserID: testAdminID,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, db, notifier
}

// submitAndApprove seeds one approved submission owned by ownerID.
func submitAndApprove(t *testing.T, service *Service, ownerID, ownerName, text string) string {
	t.Helper()
	submissionID, err := service.Submit(context.Background(), ownerID, ownerName, text)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := service.Approve(context.Background(), testAdminID, "admin", submissionID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	return submissionID
}
