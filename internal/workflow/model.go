package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrValidation indicates malformed command input that the user can correct.
var ErrValidation = errors.New("workflow: invalid command input")

// User is a chat-platform member seen by the bot. Records are created lazily
// on first interaction and never deleted.
type User struct {
	ID          string    `gorm:"column:id;primaryKey;size:36;not null"`
	PlatformID  string    `gorm:"column:platform_id;size:64;not null;uniqueIndex"`
	DisplayName string    `gorm:"column:display_name;size:190;not null"`
	IsModerator bool      `gorm:"column:is_moderator;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Submission is a logo candidate. It becomes votable once IsApproved is set,
// and it survives voting rounds; only votes are purged at close.
type Submission struct {
	ID             string    `gorm:"column:id;primaryKey;size:36;not null"`
	UserID         string    `gorm:"column:user_id;size:36;not null;index"`
	ImageURL       string    `gorm:"column:image_url;size:512;not null"`
	Description    string    `gorm:"column:description;type:text;not null"`
	IsApproved     bool      `gorm:"column:is_approved;not null;default:false;index"`
	MessageChannel string    `gorm:"column:message_channel;size:64"`
	MessageTS      string    `gorm:"column:message_ts;size:64"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Submission) TableName() string {
	return "submissions"
}

// Vote records one member's single ballot. The unique index on user_id is the
// storage-level guarantee behind the one-vote-per-user rule.
type Vote struct {
	ID           string    `gorm:"column:id;primaryKey;size:36;not null"`
	UserID       string    `gorm:"column:user_id;size:36;not null;uniqueIndex:idx_votes_single_voter"`
	SubmissionID string    `gorm:"column:submission_id;size:36;not null;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// SubmissionInput is the parsed form of an upload command's free text.
type SubmissionInput struct {
	Description string
	ImageURL    string
}

// ParseSubmissionInput splits the upload text into a description and an image
// URL. The last whitespace-delimited token is the URL, the remainder the
// description; fewer than two tokens is a validation failure.
func ParseSubmissionInput(text string) (SubmissionInput, error) {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		return SubmissionInput{}, fmt.Errorf("%w: expected a description followed by an image URL", ErrValidation)
	}
	return SubmissionInput{
		Description: strings.Join(parts[:len(parts)-1], " "),
		ImageURL:    parts[len(parts)-1],
	}, nil
}
