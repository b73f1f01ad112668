// Package announce renders workflow outcomes into Block Kit payloads. All
// functions are pure: they never touch the store and the same input always
// yields the same payload.
package announce

import "fmt"

// VoteActionID identifies the interactive vote button in action payloads.
const VoteActionID = "vote"

// MessageRef points at a posted channel message for later in-place updates.
type MessageRef struct {
	Channel   string
	Timestamp string
}

// Message is an outbound notification: fallback text plus optional blocks.
type Message struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks,omitempty"`
}

// Block is a single Block Kit layout element.
type Block struct {
	Type      string     `json:"type"`
	Text      *TextBlock `json:"text,omitempty"`
	Accessory *Accessory `json:"accessory,omitempty"`
	Elements  []Element  `json:"elements,omitempty"`
}

// TextBlock carries markdown or plain text inside a block.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Accessory is the image rendered beside a section block.
type Accessory struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
	AltText  string `json:"alt_text"`
}

// Element is an interactive control inside an actions block.
type Element struct {
	Type     string     `json:"type"`
	Text     *TextBlock `json:"text,omitempty"`
	ActionID string     `json:"action_id,omitempty"`
	Value    string     `json:"value,omitempty"`
}

// CardInput is the submission data a card is rendered from.
type CardInput struct {
	SubmissionID string
	Description  string
	ImageURL     string
	Votes        int64
}

// VotingCard renders the public voting card: description, id, live count and
// a vote button carrying the submission id as its sole parameter.
func VotingCard(input CardInput) Message {
	return Message{
		Text: "Vote for this logo:",
		Blocks: []Block{
			{
				Type: "section",
				Text: &TextBlock{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Description:*\n%s\n\n*Submission ID:*\n%s\n\n*Votes:* %d", input.Description, input.SubmissionID, input.Votes),
				},
				Accessory: &Accessory{
					Type:     "image",
					ImageURL: input.ImageURL,
					AltText:  "Approved logo",
				},
			},
			{
				Type: "actions",
				Elements: []Element{
					{
						Type:     "button",
						Text:     &TextBlock{Type: "plain_text", Text: "Vote"},
						ActionID: VoteActionID,
						Value:    input.SubmissionID,
					},
				},
			},
		},
	}
}

// ReviewAlert renders the moderation-channel notice for a fresh submission.
// It carries no vote control; unapproved logos are not votable.
func ReviewAlert(input CardInput, submitterPlatformID string) Message {
	return Message{
		Text: fmt.Sprintf("New logo submission from <@%s>", submitterPlatformID),
		Blocks: []Block{
			{
				Type: "section",
				Text: &TextBlock{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Description:*\n%s\n\n*Submission ID:*\n%s", input.Description, input.SubmissionID),
				},
				Accessory: &Accessory{
					Type:     "image",
					ImageURL: input.ImageURL,
					AltText:  "Logo submission",
				},
			},
		},
	}
}

// WinnerBanner renders the public close-of-voting announcement.
func WinnerBanner(platformUserID string, votes int64) Message {
	return Message{
		Text: fmt.Sprintf("🎉 <@%s>'s logo won with %d votes! 🎉", platformUserID, votes),
	}
}
