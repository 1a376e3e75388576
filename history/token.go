package history

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/model"
	"github.com/pkoukk/tiktoken-go"
)

const summaryPrompt = "Summarize the following conversation concisely, " +
	"preserving facts, decisions and open questions the assistant will need " +
	"to continue it. Reply with the summary only."

// TokenBoundedOptions configure a TokenBounded history.
type TokenBoundedOptions struct {
	// Threshold is the tokenized size at which the buffer is summarized.
	Threshold int
	// Encoding names the tiktoken encoding used for measurement.
	Encoding string
	// Summarizer performs the summarization model call. When nil the policy
	// degrades to pure truncation.
	Summarizer model.Model
	// Logger receives policy events.
	Logger logging.Logger
}

// TokenBounded measures the buffer with a tokenizer and, once a threshold is
// reached, replaces the whole history with a single system-role summarization
// message obtained from a model call. Summarization failure falls back to
// front-truncation so the conversation is never lost.
type TokenBounded struct {
	mu        sync.RWMutex
	threshold int
	encoder   *tiktoken.Tiktoken
	summarize model.Model
	logger    logging.Logger
	messages  []core.Message
}

// NewTokenBounded constructs a token-bounded history.
func NewTokenBounded(optFns ...func(o *TokenBoundedOptions)) (*TokenBounded, error) {
	opts := TokenBoundedOptions{
		Threshold: 6000,
		Encoding:  "cl100k_base",
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	encoder, err := tiktoken.GetEncoding(opts.Encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", opts.Encoding, err)
	}

	return &TokenBounded{
		threshold: opts.Threshold,
		encoder:   encoder,
		summarize: opts.Summarizer,
		logger:    opts.Logger,
	}, nil
}

// Add implements History.
func (h *TokenBounded) Add(ctx context.Context, messages ...core.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, messages...)
	if h.totalTokensLocked() < h.threshold {
		return
	}

	if h.summarize != nil {
		summary, err := h.summarizeLocked(ctx)
		if err == nil {
			h.messages = []core.Message{core.NewSystemMessage(summary)}
			h.logger.Info("history.summarized", "tokens", h.totalTokensLocked())
			return
		}
		h.logger.Warn("history.summarize_failed", "error", err.Error())
	}

	// Fallback: drop from the front until the buffer fits.
	for len(h.messages) > 1 && h.totalTokensLocked() >= h.threshold {
		h.messages = append([]core.Message(nil), h.messages[1:]...)
	}
}

// Snapshot implements History.
func (h *TokenBounded) Snapshot() []core.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]core.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Seed replaces the buffer with previously persisted messages without
// triggering summarization.
func (h *TokenBounded) Seed(messages []core.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append([]core.Message(nil), messages...)
}

// Tokens reports the current tokenized size of the buffer.
func (h *TokenBounded) Tokens() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalTokensLocked()
}

func (h *TokenBounded) totalTokensLocked() int {
	total := 0
	for _, msg := range h.messages {
		total += len(h.encoder.Encode(msg.Content, nil, nil))
		for _, tc := range msg.ToolCalls {
			total += len(h.encoder.Encode(tc.Name+tc.Arguments, nil, nil))
		}
	}
	return total
}

func (h *TokenBounded) summarizeLocked(ctx context.Context) (string, error) {
	var transcript strings.Builder
	for _, msg := range h.messages {
		if msg.Content == "" {
			continue
		}
		transcript.WriteString(string(msg.Role))
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteString("\n")
	}

	result, err := h.summarize.Completion(ctx, model.Request{
		Messages: []core.Message{
			core.NewSystemMessage(summaryPrompt),
			core.NewUserMessage(transcript.String()),
		},
	})
	if err != nil {
		return "", err
	}
	if result.Message.Content == "" {
		return "", fmt.Errorf("empty summary")
	}
	return "Conversation summary: " + result.Message.Content, nil
}
