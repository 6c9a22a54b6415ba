package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"makab-backend/internal/conversation"
	"makab-backend/internal/models"
)

type memoryMessageStore struct {
	messages []*models.Message
	seq      int64
}

func (m *memoryMessageStore) add(userID uuid.UUID, content string, isUser bool) *models.Message {
	m.seq++
	msg := &models.Message{ID: uuid.New(), UserID: userID, Content: content, IsUser: isUser, Seq: m.seq, Timestamp: time.Now()}
	m.messages = append(m.messages, msg)
	return msg
}

func (m *memoryMessageStore) byUser(userID uuid.UUID) []*models.Message {
	var out []*models.Message
	for _, msg := range m.messages {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	return out
}

func (m *memoryMessageStore) CreateExchange(ctx context.Context, userMsg, assistantMsg *models.Message) error {
	for _, msg := range []*models.Message{userMsg, assistantMsg} {
		m.seq++
		msg.ID = uuid.New()
		msg.Seq = m.seq
		copied := *msg
		m.messages = append(m.messages, &copied)
	}
	return nil
}

func (m *memoryMessageStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	for _, msg := range m.messages {
		if msg.ID == id {
			copied := *msg
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memoryMessageStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int, newestFirst bool) ([]*models.Message, error) {
	msgs := m.byUser(userID)
	if newestFirst {
		reversed := make([]*models.Message, 0, len(msgs))
		for i := len(msgs) - 1; i >= 0; i-- {
			reversed = append(reversed, msgs[i])
		}
		msgs = reversed
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (m *memoryMessageStore) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Message, error) {
	return m.ListBefore(ctx, userID, 0, limit)
}

func (m *memoryMessageStore) ListBefore(ctx context.Context, userID uuid.UUID, beforeSeq int64, limit int) ([]*models.Message, error) {
	var msgs []*models.Message
	for _, msg := range m.byUser(userID) {
		if beforeSeq <= 0 || msg.Seq < beforeSeq {
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *memoryMessageStore) LatestUserBefore(ctx context.Context, userID uuid.UUID, beforeSeq int64) (*models.Message, error) {
	msgs := m.byUser(userID)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsUser && msgs[i].Seq < beforeSeq {
			found := *msgs[i]
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memoryMessageStore) UpdateContent(ctx context.Context, id uuid.UUID, content string) error {
	for _, msg := range m.messages {
		if msg.ID == id {
			msg.Content = content
			msg.Rating = nil
		}
	}
	return nil
}

func (m *memoryMessageStore) SetRating(ctx context.Context, id uuid.UUID, rating *string) error {
	for _, msg := range m.messages {
		if msg.ID == id {
			msg.Rating = rating
		}
	}
	return nil
}

func (m *memoryMessageStore) Delete(ctx context.Context, id uuid.UUID) error {
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.ID != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

func (m *memoryMessageStore) DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.UserID == userID {
			n++
			continue
		}
		kept = append(kept, msg)
	}
	m.messages = kept
	return n, nil
}

type recordingPublisher struct {
	events []models.WSMessage
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, userID uuid.UUID, event models.WSMessage) error {
	p.events = append(p.events, event)
	return p.err
}

func newTestChatService(store *memoryMessageStore, c Completer, pub *recordingPublisher) *ChatService {
	return NewChatService(store, c, pub, conversation.DefaultWindow, 20)
}

func seedConversation(store *memoryMessageStore, userID uuid.UUID, exchanges int) {
	for i := 0; i < exchanges; i++ {
		store.add(userID, fmt.Sprintf("q%d", i), true)
		store.add(userID, fmt.Sprintf("a%d", i), false)
	}
}

func ptr(s string) *string { return &s }

func TestChatService_Send(t *testing.T) {
	userID := uuid.New()
	store := &memoryMessageStore{}
	seedConversation(store, userID, 5)
	c := &recordingCompleter{reply: "Hi there! 👋"}
	pub := &recordingPublisher{}
	s := newTestChatService(store, c, pub)

	resp, err := s.Send(context.Background(), userID, models.SendMessageRequest{Message: "Hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AssistantMessage.Content != "Hi there! 👋" || resp.UserMessage.Content != "Hello" {
		t.Fatalf("unexpected exchange: %+v / %+v", resp.UserMessage, resp.AssistantMessage)
	}

	// system + last six stored turns + new message
	if len(c.messages) != conversation.DefaultWindow+2 {
		t.Fatalf("expected %d prompt messages, got %d", conversation.DefaultWindow+2, len(c.messages))
	}
	if c.messages[1].Content != "q2" || c.messages[len(c.messages)-2].Content != "a4" {
		t.Fatalf("window should hold the last three exchanges, got %+v", c.messages)
	}
	if len(store.byUser(userID)) != 12 {
		t.Fatalf("expected both turns to be stored, have %d messages", len(store.byUser(userID)))
	}
	if len(pub.events) != 2 || pub.events[0].Type != models.WSMessageCreated {
		t.Fatalf("expected two created events, got %+v", pub.events)
	}
}

func TestChatService_Send_ProviderFailureStoresNothing(t *testing.T) {
	userID := uuid.New()
	store := &memoryMessageStore{}
	c := &recordingCompleter{err: providerStatusError(500, errors.New("boom"))}
	pub := &recordingPublisher{}
	s := newTestChatService(store, c, pub)

	_, err := s.Send(context.Background(), userID, models.SendMessageRequest{Message: "Hello"})

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if len(store.messages) != 0 || len(pub.events) != 0 {
		t.Fatalf("nothing should be stored or published on failure")
	}
}

func TestChatService_Send_PublishFailureIsIgnored(t *testing.T) {
	userID := uuid.New()
	s := newTestChatService(&memoryMessageStore{}, &recordingCompleter{reply: "ok"}, &recordingPublisher{err: errors.New("redis down")})

	if _, err := s.Send(context.Background(), userID, models.SendMessageRequest{Message: "Hello"}); err != nil {
		t.Fatalf("publish errors must not fail the request: %v", err)
	}
}

func TestChatService_Send_EmptyMessage(t *testing.T) {
	c := &recordingCompleter{reply: "unused"}
	s := newTestChatService(&memoryMessageStore{}, c, &recordingPublisher{})

	_, err := s.Send(context.Background(), uuid.New(), models.SendMessageRequest{Message: "   "})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if c.calls != 0 {
		t.Fatalf("provider must not be called")
	}
}

func TestChatService_Regenerate(t *testing.T) {
	userID := uuid.New()
	store := &memoryMessageStore{}
	seedConversation(store, userID, 5)
	target := store.byUser(userID)[7] // a3
	target.Rating = ptr(models.RatingDown)

	c := &recordingCompleter{reply: "better answer"}
	pub := &recordingPublisher{}
	s := newTestChatService(store, c, pub)

	msg, err := s.Regenerate(context.Background(), userID, target.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "better answer" || msg.Rating != nil {
		t.Fatalf("expected new content and cleared rating, got %+v", msg)
	}

	last := c.messages[len(c.messages)-1]
	if last.Role != models.RoleUser || last.Content != "q3" {
		t.Fatalf("expected the paired user turn q3 to be resent, got %+v", last)
	}
	// q0 a0 q1 a1 q2 a2 precede q3
	if len(c.messages) != conversation.DefaultWindow+2 || c.messages[1].Content != "q0" {
		t.Fatalf("unexpected regeneration window: %+v", c.messages)
	}
	for _, m := range c.messages {
		if m.Content == "a3" || m.Content == "q4" {
			t.Fatalf("context must stop before the regenerated exchange, found %q", m.Content)
		}
	}
	if len(pub.events) != 1 || pub.events[0].Type != models.WSMessageUpdated {
		t.Fatalf("expected one updated event, got %+v", pub.events)
	}
}

func TestChatService_Regenerate_UserMessage(t *testing.T) {
	userID := uuid.New()
	store := &memoryMessageStore{}
	seedConversation(store, userID, 1)

	s := newTestChatService(store, &recordingCompleter{reply: "x"}, &recordingPublisher{})
	_, err := s.Regenerate(context.Background(), userID, store.byUser(userID)[0].ID)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestChatService_Regenerate_AfterDeletedTurn(t *testing.T) {
	userID := uuid.New()
	store := &memoryMessageStore{}
	seedConversation(store, userID, 6)
	turns := store.byUser(userID)
	target := turns[11] // a5
	if err := store.Delete(context.Background(), turns[10].ID); err != nil {
		t.Fatal(err)
	}

	c := &recordingCompleter{reply: "again"}
	s := newTestChatService(store, c, &recordingPublisher{})

	if _, err := s.Regenerate(context.Background(), userID, target.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// q4 now prompts a5; the window is the six turns stored before q4
	want := []string{"q1", "a1", "q2", "a2", "q3", "a3", "q4"}
	if len(c.messages) != len(want)+1 {
		t.Fatalf("expected %d prompt messages, got %+v", len(want)+1, c.messages)
	}
	for i, content := range want {
		if c.messages[i+1].Content != content {
			t.Fatalf("message %d: expected %q, got %+v", i+1, content, c.messages)
		}
	}
}

func TestChatService_Regenerate_ConsecutiveAssistantTurns(t *testing.T) {
	userID := uuid.New()
	store := &memoryMessageStore{}
	store.add(userID, "q0", true)
	var target *models.Message
	for i := 0; i < 9; i++ {
		target = store.add(userID, fmt.Sprintf("a%d", i), false)
	}

	c := &recordingCompleter{reply: "again"}
	s := newTestChatService(store, c, &recordingPublisher{})

	if _, err := s.Regenerate(context.Background(), userID, target.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.messages) != 2 || c.messages[1].Content != "q0" {
		t.Fatalf("expected system plus q0, got %+v", c.messages)
	}
}

func TestChatService_Regenerate_NoUserTurn(t *testing.T) {
	userID := uuid.New()
	store := &memoryMessageStore{}
	target := store.add(userID, "orphan", false)

	c := &recordingCompleter{reply: "x"}
	s := newTestChatService(store, c, &recordingPublisher{})
	_, err := s.Regenerate(context.Background(), userID, target.ID)

	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields["message"] != "message has no user prompt to regenerate from" {
		t.Fatalf("expected no-user-prompt ValidationError, got %v", err)
	}
	if c.calls != 0 {
		t.Fatalf("provider must not be called")
	}
}

func TestRegenerationError(t *testing.T) {
	var verr *ValidationError
	if !errors.As(regenerationError(conversation.ErrNotAssistantTurn), &verr) {
		t.Fatal("user turns should be a validation error")
	}
	if !errors.As(regenerationError(conversation.ErrNoPairedUserTurn), &verr) {
		t.Fatal("missing user turn should be a validation error")
	}
	var nerr *NotFoundError
	if !errors.As(regenerationError(conversation.ErrPositionOutOfRange), &nerr) {
		t.Fatal("out of range position should be not found")
	}
	other := errors.New("boom")
	if regenerationError(other) != other {
		t.Fatal("unknown errors pass through")
	}
}

func TestChatService_Rate_Toggle(t *testing.T) {
	userID := uuid.New()
	store := &memoryMessageStore{}
	seedConversation(store, userID, 1)
	reply := store.byUser(userID)[1]
	s := newTestChatService(store, &recordingCompleter{}, &recordingPublisher{})

	msg, err := s.Rate(context.Background(), userID, reply.ID, ptr(models.RatingUp))
	if err != nil || msg.Rating == nil || *msg.Rating != models.RatingUp {
		t.Fatalf("expected up rating, got %+v err=%v", msg, err)
	}

	msg, err = s.Rate(context.Background(), userID, reply.ID, ptr(models.RatingDown))
	if err != nil || msg.Rating == nil || *msg.Rating != models.RatingDown {
		t.Fatalf("expected down rating, got %+v err=%v", msg, err)
	}

	msg, err = s.Rate(context.Background(), userID, reply.ID, ptr(models.RatingDown))
	if err != nil || msg.Rating != nil {
		t.Fatalf("rating twice with the same value should clear it, got %+v err=%v", msg, err)
	}
}

func TestChatService_Rate_Validation(t *testing.T) {
	userID := uuid.New()
	store := &memoryMessageStore{}
	seedConversation(store, userID, 1)
	s := newTestChatService(store, &recordingCompleter{}, &recordingPublisher{})

	var verr *ValidationError
	if _, err := s.Rate(context.Background(), userID, store.byUser(userID)[1].ID, ptr("meh")); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown rating, got %v", err)
	}
	if _, err := s.Rate(context.Background(), userID, store.byUser(userID)[0].ID, ptr(models.RatingUp)); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for user message, got %v", err)
	}
}

func TestChatService_OwnershipHidesOtherUsers(t *testing.T) {
	owner := uuid.New()
	intruder := uuid.New()
	store := &memoryMessageStore{}
	seedConversation(store, owner, 1)
	reply := store.byUser(owner)[1]
	s := newTestChatService(store, &recordingCompleter{reply: "x"}, &recordingPublisher{})

	var nf *NotFoundError
	if _, err := s.Rate(context.Background(), intruder, reply.ID, ptr(models.RatingUp)); !errors.As(err, &nf) {
		t.Fatalf("rate: expected NotFoundError, got %v", err)
	}
	if _, err := s.Regenerate(context.Background(), intruder, reply.ID); !errors.As(err, &nf) {
		t.Fatalf("regenerate: expected NotFoundError, got %v", err)
	}
	if err := s.Delete(context.Background(), intruder, reply.ID); !errors.As(err, &nf) {
		t.Fatalf("delete: expected NotFoundError, got %v", err)
	}
	if len(store.byUser(owner)) != 2 {
		t.Fatalf("owner's messages must be untouched")
	}
	if err := s.Delete(context.Background(), owner, uuid.New()); !errors.As(err, &nf) {
		t.Fatalf("unknown id: expected NotFoundError, got %v", err)
	}
}

func TestChatService_List(t *testing.T) {
	userID := uuid.New()
	store := &memoryMessageStore{}
	seedConversation(store, userID, 15)
	s := newTestChatService(store, &recordingCompleter{}, &recordingPublisher{})

	msgs, err := s.List(context.Background(), userID, 0, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("expected default page of 20, got %d", len(msgs))
	}
	if msgs[0].Content != "a14" {
		t.Fatalf("expected newest first, got %q", msgs[0].Content)
	}

	msgs, _ = s.List(context.Background(), userID, 1000, false)
	if len(msgs) != 30 || msgs[0].Content != "q0" {
		t.Fatalf("expected all 30 oldest first, got %d starting %q", len(msgs), msgs[0].Content)
	}
}

func TestChatService_DeleteAndClear(t *testing.T) {
	userID := uuid.New()
	other := uuid.New()
	store := &memoryMessageStore{}
	seedConversation(store, userID, 2)
	seedConversation(store, other, 1)
	pub := &recordingPublisher{}
	s := newTestChatService(store, &recordingCompleter{}, pub)

	if err := s.Delete(context.Background(), userID, store.byUser(userID)[0].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.byUser(userID)) != 3 {
		t.Fatalf("expected 3 messages after delete, got %d", len(store.byUser(userID)))
	}

	n, err := s.Clear(context.Background(), userID)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 cleared, got %d err=%v", n, err)
	}
	if len(store.byUser(other)) != 2 {
		t.Fatalf("clearing must not touch other users")
	}
	if pub.events[0].Type != models.WSMessageDeleted || pub.events[1].Type != models.WSHistoryCleared {
		t.Fatalf("unexpected events %+v", pub.events)
	}
}
