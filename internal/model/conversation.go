package model

import (
	"encoding/json"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationSession is one ongoing chat. If Summarized is true, Summary is
// guaranteed non-empty; both are cleared together by ClearMemory.
type ConversationSession struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Title        string     `json:"title"`
	DocumentIDs  []string   `json:"document_ids"`
	MessageCount int        `json:"message_count"`
	Summarized   bool       `json:"summarized"`
	Summary      string     `json:"summary,omitempty"`
	SummarizedAt *time.Time `json:"summarized_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Message is one turn of a conversation. Ordering is append-only by
// CreatedAt; Summarized is flipped true only by memory compaction.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Role           Role              `json:"role"`
	Content        string            `json:"content"`
	Context        *RetrievedContext `json:"context,omitempty"`
	Summarized     bool              `json:"summarized"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ContextChunk is one retrieved passage reference inside a context snapshot.
type ContextChunk struct {
	DocumentID string  `json:"document_id,omitempty"`
	Ordinal    int     `json:"ordinal,omitempty"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity,omitempty"`
}

// RetrievedContext is the snapshot of retrieval output attached to a message.
// Historically this payload was stored either as a bare list of passage
// strings or as a structured chunk list, so decoding normalizes both shapes
// into Chunks rather than trusting the shape at each call site.
type RetrievedContext struct {
	Chunks []ContextChunk `json:"chunks"`
}

// Passages returns just the text of every chunk, in stored order.
func (rc *RetrievedContext) Passages() []string {
	if rc == nil || len(rc.Chunks) == 0 {
		return nil
	}
	out := make([]string, 0, len(rc.Chunks))
	for _, c := range rc.Chunks {
		out = append(out, c.Content)
	}
	return out
}

// MarshalJSON always writes the structured form.
func (rc RetrievedContext) MarshalJSON() ([]byte, error) {
	type alias RetrievedContext
	return json.Marshal(alias(rc))
}

// UnmarshalJSON accepts either of the two historical wire shapes:
//
//	["passage one", "passage two"]
//	{"chunks": [{"content": "...", "similarity": 0.92}, ...]}
func (rc *RetrievedContext) UnmarshalJSON(data []byte) error {
	var passages []string
	if err := json.Unmarshal(data, &passages); err == nil {
		rc.Chunks = make([]ContextChunk, 0, len(passages))
		for _, p := range passages {
			rc.Chunks = append(rc.Chunks, ContextChunk{Content: p})
		}
		return nil
	}

	type alias RetrievedContext
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	rc.Chunks = a.Chunks
	return nil
}
