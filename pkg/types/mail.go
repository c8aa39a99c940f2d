// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Message is a single email within a thread.
type Message struct {
	ID       string    `json:"id" yaml:"id"`
	From     string    `json:"from" yaml:"from"`
	Subject  string    `json:"subject" yaml:"subject"`
	Body     string    `json:"body" yaml:"body"` // HTML
	SentDate time.Time `json:"sent_date" yaml:"sent_date"`
}

// Thread groups messages that share a conversation. Messages are ordered
// oldest first.
type Thread struct {
	ID       string    `json:"id" yaml:"id"`
	Subject  string    `json:"subject" yaml:"subject"`
	Messages []Message `json:"messages" yaml:"messages"`
}

// Last returns the most recent message of the thread.
func (t Thread) Last() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}
