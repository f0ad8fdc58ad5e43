// Package bot turns chat messages into captures and commands.
package bot

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/services/arxiv"
)

// Message is an inbound chat message.
type Message struct {
	Channel    string    `json:"channel"`
	Author     string    `json:"author,omitempty"`
	Text       string    `json:"text,omitempty"`
	AudioURL   string    `json:"audio_url,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	SentAt     time.Time `json:"sent_at,omitzero"`
}

// Transport connects the bot to a chat system.
type Transport interface {
	// Receive delivers messages to handle until ctx is done.
	Receive(ctx context.Context, handle func(context.Context, Message)) error
	Send(ctx context.Context, channel, text string) error
}

// Classification is the kind of capture a message asks for.
type Classification struct {
	Kind    models.Kind
	URL     string
	PaperID string
}

var urlRe = regexp.MustCompile(`https?://[^\s<>"]+`)

// Classify decides what a non-command message captures: a voice
// attachment wins, then an arXiv reference, then any other link; anything
// else is free text.
func Classify(m Message) Classification {
	if m.AudioURL != "" || (m.Transcript != "" && strings.TrimSpace(m.Text) == "") {
		return Classification{Kind: models.KindVoice}
	}
	if id, ok := arxiv.FindID(m.Text); ok {
		return Classification{Kind: models.KindPaper, PaperID: id}
	}
	if u := urlRe.FindString(m.Text); u != "" {
		return Classification{Kind: models.KindArticle, URL: strings.TrimRight(u, ".,;:!?)]}")}
	}
	return Classification{Kind: models.KindText}
}
