package agent

// ThreadID identifies one logical multi-turn conversation. It is the only key
// into the checkpoint store.
type ThreadID string

// ConversationState is the durable state of one thread.
//
// Version is owned by the checkpoint store: a save must carry the version that
// was loaded and the store bumps it by one on success. A thread that was never
// saved has version 0.
type ConversationState struct {
	ThreadID ThreadID  `json:"thread_id" cbor:"thread_id"`
	Version  int64     `json:"version" cbor:"version"`
	Messages []Message `json:"messages,omitempty" cbor:"messages,omitempty"`
}

// NewConversationState returns the empty state of a new thread, seeded with the
// system prompt when one is configured.
func NewConversationState(threadID ThreadID, systemPrompt string) ConversationState {
	state := ConversationState{ThreadID: threadID}
	if systemPrompt != "" {
		state.Messages = append(state.Messages, Message{
			Role:    RoleSystem,
			Content: systemPrompt,
		})
	}
	return state
}

// CloneConversationState returns a deep copy safe for in-memory stores.
func CloneConversationState(in ConversationState) ConversationState {
	out := in
	out.Messages = CloneMessages(in.Messages)
	return out
}
