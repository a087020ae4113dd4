package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"condo-chat/internal/models"
)

type pairKey struct {
	low, high uuid.UUID
}

type participantKey struct {
	conversationID, userID uuid.UUID
}

// MemStore keeps conversations, participants and messages in process memory.
// It implements every repository interface and is used for local runs
// (STORE_DRIVER=memory) and tests. One mutex serializes all writes, which plays
// the role of the unique constraints of the Postgres schema.
type MemStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]models.Conversation
	direct        map[pairKey]uuid.UUID
	participants  map[participantKey]models.ConversationParticipant
	messages      map[uuid.UUID]models.Message
	users         map[uuid.UUID]struct{}
	seq           int64
}

var (
	_ ConversationRepository = (*MemStore)(nil)
	_ ParticipantRepository  = (*MemStore)(nil)
	_ MessageRepository      = (*MemStore)(nil)
	_ UserDirectory          = (*MemStore)(nil)
)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		conversations: make(map[uuid.UUID]models.Conversation),
		direct:        make(map[pairKey]uuid.UUID),
		participants:  make(map[participantKey]models.ConversationParticipant),
		messages:      make(map[uuid.UUID]models.Message),
		users:         make(map[uuid.UUID]struct{}),
	}
}

// AddUser registers a known user.
func (s *MemStore) AddUser(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
}

// Counts reports the number of stored conversations, participant rows and messages.
func (s *MemStore) Counts() (conversations, participants, messages int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations), len(s.participants), len(s.messages)
}

func (s *MemStore) GetConversation(_ context.Context, id uuid.UUID) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

func (s *MemStore) FindDirectConversation(_ context.Context, userA, userB uuid.UUID) (models.Conversation, error) {
	low, high := models.DirectPair(userA, userB)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.direct[pairKey{low, high}]
	if !ok {
		return models.Conversation{}, ErrConversationNotFound
	}
	return s.conversations[id], nil
}

func (s *MemStore) CreateDirectConversation(_ context.Context, createdBy, userA, userB uuid.UUID, at time.Time) (models.Conversation, error) {
	if userA == userB {
		return models.Conversation{}, ErrSelfConversation
	}
	low, high := models.DirectPair(userA, userB)

	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{low, high}
	if id, ok := s.direct[key]; ok {
		return s.conversations[id], nil
	}
	conv := models.Conversation{
		ID:              uuid.New(),
		Type:            models.ConversationDirect,
		CreatedByUserID: createdBy,
		CreatedAt:       at,
		IsActive:        true,
	}
	s.conversations[conv.ID] = conv
	s.direct[key] = conv.ID
	for _, userID := range []uuid.UUID{low, high} {
		s.participants[participantKey{conv.ID, userID}] = models.ConversationParticipant{
			ConversationID: conv.ID,
			UserID:         userID,
			JoinedAt:       at,
			IsActive:       true,
		}
	}
	return conv, nil
}

func (s *MemStore) FindApartmentConversation(_ context.Context, apartmentID uuid.UUID) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conv, ok := s.activeApartmentConversation(apartmentID); ok {
		return conv, nil
	}
	return models.Conversation{}, ErrConversationNotFound
}

func (s *MemStore) activeApartmentConversation(apartmentID uuid.UUID) (models.Conversation, bool) {
	for _, conv := range s.conversations {
		if conv.Type == models.ConversationGroupApartment && conv.IsActive &&
			conv.ApartmentID != nil && *conv.ApartmentID == apartmentID {
			return conv, true
		}
	}
	return models.Conversation{}, false
}

func (s *MemStore) CreateApartmentConversation(_ context.Context, conv models.Conversation, memberIDs []uuid.UUID) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ApartmentID != nil {
		if _, exists := s.activeApartmentConversation(*conv.ApartmentID); exists {
			return models.Conversation{}, ErrApartmentConversationExists
		}
	}
	conv.Type = models.ConversationGroupApartment
	conv.IsActive = true
	s.conversations[conv.ID] = conv
	for _, userID := range memberSet(conv.CreatedByUserID, memberIDs) {
		s.participants[participantKey{conv.ID, userID}] = models.ConversationParticipant{
			ConversationID: conv.ID,
			UserID:         userID,
			IsAdmin:        userID == conv.CreatedByUserID,
			JoinedAt:       conv.CreatedAt,
			IsActive:       true,
		}
	}
	return conv, nil
}

func (s *MemStore) ListConversationsForUser(_ context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Conversation
	for key, p := range s.participants {
		if key.userID != userID || !p.IsActive {
			continue
		}
		if conv := s.conversations[key.conversationID]; conv.IsActive {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActivityAt().After(out[j].ActivityAt()) })
	return out, nil
}

func (s *MemStore) IsParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantKey{conversationID, userID}]
	return ok && p.IsActive, nil
}

func (s *MemStore) GetParticipant(_ context.Context, conversationID, userID uuid.UUID) (models.ConversationParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantKey{conversationID, userID}]
	if !ok {
		return models.ConversationParticipant{}, ErrParticipantNotFound
	}
	return p, nil
}

func (s *MemStore) ListParticipants(_ context.Context, conversationID uuid.UUID) ([]models.ConversationParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConversationParticipant
	for key, p := range s.participants {
		if key.conversationID == conversationID && p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}

func (s *MemStore) AddParticipant(_ context.Context, p models.ConversationParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey{p.ConversationID, p.UserID}
	if existing, ok := s.participants[key]; ok {
		existing.IsActive = true
		existing.IsAdmin = existing.IsAdmin || p.IsAdmin
		s.participants[key] = existing
		return nil
	}
	p.IsActive = true
	s.participants[key] = p
	return nil
}

func (s *MemStore) DeactivateParticipant(_ context.Context, conversationID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey{conversationID, userID}
	p, ok := s.participants[key]
	if !ok || !p.IsActive {
		return ErrParticipantNotFound
	}
	p.IsActive = false
	s.participants[key] = p
	return nil
}

func (s *MemStore) CreateMessage(_ context.Context, msg models.Message) (models.Message, bool, error) {
	if !msg.ChatTypeConsistent() {
		return models.Message{}, false, ErrInconsistentChatType
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.messages[msg.ID]; ok {
		return existing, false, nil
	}
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return models.Message{}, false, ErrConversationNotFound
	}
	s.seq++
	msg.Seq = s.seq
	s.messages[msg.ID] = msg
	if conv.LastMessageAt == nil || msg.SentAt.After(*conv.LastMessageAt) {
		at := msg.SentAt
		conv.LastMessageAt = &at
		s.conversations[conv.ID] = conv
	}
	return msg, true, nil
}

func (s *MemStore) GetMessage(_ context.Context, messageID uuid.UUID) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, nil
}

func (s *MemStore) ListByConversation(_ context.Context, conversationID uuid.UUID, skip, take int) ([]models.Message, error) {
	msgs := s.filterMessages(func(m models.Message) bool { return m.ConversationID == conversationID })
	if skip >= len(msgs) {
		return nil, nil
	}
	msgs = msgs[skip:]
	if take < len(msgs) {
		msgs = msgs[:take]
	}
	return msgs, nil
}

func (s *MemStore) ListBySender(_ context.Context, senderID uuid.UUID) ([]models.Message, error) {
	return s.filterMessages(func(m models.Message) bool { return m.SenderID == senderID }), nil
}

func (s *MemStore) ListByApartment(_ context.Context, apartmentID uuid.UUID) ([]models.Message, error) {
	return s.filterMessages(func(m models.Message) bool { return m.ApartmentID != nil && *m.ApartmentID == apartmentID }), nil
}

func (s *MemStore) LastMessage(_ context.Context, conversationID uuid.UUID) (models.Message, error) {
	msgs := s.filterMessages(func(m models.Message) bool { return m.ConversationID == conversationID })
	if len(msgs) == 0 {
		return models.Message{}, ErrMessageNotFound
	}
	return msgs[len(msgs)-1], nil
}

func (s *MemStore) UnreadCount(_ context.Context, conversationID, userID uuid.UUID) (int, error) {
	msgs := s.filterMessages(func(m models.Message) bool {
		return m.ConversationID == conversationID && m.SenderID != userID && !m.IsRead
	})
	return len(msgs), nil
}

func (s *MemStore) MarkRead(_ context.Context, messageID uuid.UUID, at time.Time) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	msg.IsRead = true
	if msg.ReadAt == nil {
		msg.ReadAt = &at
	}
	s.messages[messageID] = msg
	return msg, nil
}

func (s *MemStore) MarkDelivered(_ context.Context, messageID uuid.UUID, at time.Time) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	msg.IsDelivered = true
	if msg.DeliveredAt == nil {
		msg.DeliveredAt = &at
	}
	s.messages[messageID] = msg
	return msg, nil
}

func (s *MemStore) UserExists(_ context.Context, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *MemStore) ProvisionPlaceholder(_ context.Context, userID uuid.UUID) error {
	s.AddUser(userID)
	return nil
}

// filterMessages returns matching messages ordered by sent_at, then seq.
func (s *MemStore) filterMessages(keep func(models.Message) bool) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Message
	for _, m := range s.messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}
