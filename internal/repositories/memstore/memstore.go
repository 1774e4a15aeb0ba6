// Package memstore is an in-process implementation of the chat stores.
// It backs the "memory" storage mode and the service tests.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Gopher0727/PropChat/internal/models"
	"github.com/Gopher0727/PropChat/internal/repositories"
)

type memberKey struct{ channelID, userID uint }

type pairKey struct{ low, high uint }

type roleKey struct{ roleID, userID uint }

type Store struct {
	mu  sync.RWMutex
	seq uint

	companies map[uint]models.Company
	users     map[uint]models.User
	servers   map[uint]models.ChatServer
	channels  map[uint]models.Channel
	members   map[memberKey]struct{}
	roles     map[uint]models.ServerRole
	userRoles map[roleKey]struct{}

	messages map[int64]models.Message
	receipts map[memberKey]models.ReadReceipt
	presence map[uint]models.Presence

	dmChannels map[uint]models.DirectMessageChannel
	dmPairs    map[pairKey]uint
	dms        map[int64]models.DirectMessage

	now func() time.Time
}

func New() *Store {
	return &Store{
		companies:  make(map[uint]models.Company),
		users:      make(map[uint]models.User),
		servers:    make(map[uint]models.ChatServer),
		channels:   make(map[uint]models.Channel),
		members:    make(map[memberKey]struct{}),
		roles:      make(map[uint]models.ServerRole),
		userRoles:  make(map[roleKey]struct{}),
		messages:   make(map[int64]models.Message),
		receipts:   make(map[memberKey]models.ReadReceipt),
		presence:   make(map[uint]models.Presence),
		dmChannels: make(map[uint]models.DirectMessageChannel),
		dmPairs:    make(map[pairKey]uint),
		dms:        make(map[int64]models.DirectMessage),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) nextID() uint {
	s.seq++
	return s.seq
}

// ---- seeding ----

func (s *Store) AddCompany(name string) models.Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := models.Company{ID: s.nextID(), Name: name, CreatedAt: s.now()}
	s.companies[c.ID] = c
	return c
}

// AddUser 插入用户；ID 为 0 时自动分配
func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextID()
	}
	if u.Status == "" {
		u.Status = models.UserStatusActive
	}
	u.CreatedAt, u.UpdatedAt = s.now(), s.now()
	s.users[u.ID] = u
	return u
}

func (s *Store) AddServer(companyID uint, name string) models.ChatServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv := models.ChatServer{ID: s.nextID(), CompanyID: companyID, Name: name, CreatedAt: s.now()}
	s.servers[srv.ID] = srv
	return srv
}

func (s *Store) AddChannel(serverID uint, name string, private bool, createdBy uint) models.Channel {
	ch := models.Channel{ServerID: serverID, Name: name, IsPrivate: private, CreatedBy: createdBy}
	_ = s.CreateChannel(context.Background(), &ch)
	return ch
}

func (s *Store) AddRole(serverID uint, name string, perms ...string) models.ServerRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := models.ServerRole{ID: s.nextID(), ServerID: serverID, Name: name, Permissions: perms, CreatedAt: s.now()}
	s.roles[r.ID] = r
	return r
}

func (s *Store) AssignRole(userID, roleID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles[roleKey{roleID, userID}] = struct{}{}
}

// ---- DirectoryStore ----

func (s *Store) GetUser(_ context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUsers(_ context.Context, ids []uint) (map[uint]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = &u
		}
	}
	return out, nil
}

func (s *Store) ListCompanyUsers(_ context.Context, companyID uint) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.User
	for _, u := range s.users {
		if u.CompanyID == companyID && u.IsActive() {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b models.User) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetServer(_ context.Context, id uint) (*models.ChatServer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	srv, ok := s.servers[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &srv, nil
}

func (s *Store) GetServerByCompany(_ context.Context, companyID uint) (*models.ChatServer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, srv := range s.servers {
		if srv.CompanyID == companyID {
			return &srv, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *Store) GetChannel(_ context.Context, id uint) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	ch.CompanyID = s.servers[ch.ServerID].CompanyID
	return &ch, nil
}

func (s *Store) IsMember(_ context.Context, channelID, userID uint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[memberKey{channelID, userID}]
	return ok, nil
}

func (s *Store) AddMember(_ context.Context, channelID, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey{channelID, userID}] = struct{}{}
	return nil
}

func (s *Store) ListVisibleChannels(_ context.Context, serverID, userID uint, includeAllPrivate bool) ([]models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Channel
	for _, ch := range s.channels {
		if ch.ServerID != serverID {
			continue
		}
		if ch.IsPrivate && !includeAllPrivate {
			if _, ok := s.members[memberKey{ch.ID, userID}]; !ok {
				continue
			}
		}
		out = append(out, ch)
	}
	slices.SortFunc(out, func(a, b models.Channel) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) GetUserRoles(_ context.Context, serverID, userID uint) ([]models.ServerRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ServerRole
	for key := range s.userRoles {
		if key.userID != userID {
			continue
		}
		if r, ok := s.roles[key.roleID]; ok && r.ServerID == serverID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b models.ServerRole) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) CreateChannel(_ context.Context, channel *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		if ch.ServerID == channel.ServerID && ch.Name == channel.Name {
			return repositories.ErrDuplicate
		}
	}
	channel.ID = s.nextID()
	channel.CreatedAt, channel.UpdatedAt = s.now(), s.now()
	stored := *channel
	stored.CompanyID = 0
	s.channels[channel.ID] = stored
	if channel.IsPrivate {
		s.members[memberKey{channel.ID, channel.CreatedBy}] = struct{}{}
	}
	return nil
}

// ---- MessageStore ----

func (s *Store) CreateMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.messages[msg.ID]; dup {
		return repositories.ErrDuplicate
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}
	s.messages[msg.ID] = *msg
	return nil
}

func (s *Store) GetMessage(_ context.Context, id int64) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &m, nil
}

func (s *Store) UpdateMessageContent(_ context.Context, id int64, content string, at time.Time) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	m.Content = content
	m.IsEdited = true
	m.UpdatedAt = at
	s.messages[id] = m
	return &m, nil
}

func (s *Store) DeleteMessage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.messages, id)
	for mid, m := range s.messages {
		if m.ParentID != nil && *m.ParentID == id {
			m.ParentID = nil
			s.messages[mid] = m
		}
	}
	return nil
}

func (s *Store) ListMessages(_ context.Context, channelID uint, beforeID int64, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.ChannelID == channelID && (beforeID <= 0 || m.ID < beforeID) {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b models.Message) int { return cmp.Compare(b.ID, a.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- ReceiptStore ----

func (s *Store) UpsertReadReceipt(_ context.Context, channelID, userID uint, messageID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[memberKey{channelID, userID}] = models.ReadReceipt{
		ChannelID:         channelID,
		UserID:            userID,
		LastReadMessageID: messageID,
		LastReadAt:        at,
	}
	return nil
}

func (s *Store) GetReadReceipt(_ context.Context, channelID, userID uint) (*models.ReadReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[memberKey{channelID, userID}]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &r, nil
}

// ---- PresenceStore ----

func (s *Store) UpsertPresence(_ context.Context, userID uint, status string, at time.Time) (*models.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := models.Presence{UserID: userID, Status: status, LastActive: at, UpdatedAt: at}
	s.presence[userID] = p
	return &p, nil
}

func (s *Store) GetPresences(_ context.Context, userIDs []uint) (map[uint]models.Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint]models.Presence, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.presence[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// ---- DMStore ----

func (s *Store) FindDMChannel(_ context.Context, userLow, userHigh uint) (*models.DirectMessageChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.dmPairs[pairKey{userLow, userHigh}]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	ch := s.dmChannels[id]
	return &ch, nil
}

func (s *Store) GetDMChannel(_ context.Context, id uint) (*models.DirectMessageChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.dmChannels[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &ch, nil
}

func (s *Store) CreateDMChannel(_ context.Context, ch *models.DirectMessageChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{ch.UserLow, ch.UserHigh}
	if _, dup := s.dmPairs[key]; dup {
		return repositories.ErrDuplicate
	}
	ch.ID = s.nextID()
	ch.CreatedAt, ch.UpdatedAt = s.now(), s.now()
	s.dmChannels[ch.ID] = *ch
	s.dmPairs[key] = ch.ID
	return nil
}

func (s *Store) ListDMChannels(_ context.Context, userID uint) ([]models.DirectMessageChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DirectMessageChannel
	for _, ch := range s.dmChannels {
		if ch.HasParticipant(userID) {
			out = append(out, ch)
		}
	}
	slices.SortFunc(out, func(a, b models.DirectMessageChannel) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *Store) CreateDirectMessage(_ context.Context, msg *models.DirectMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.dmChannels[msg.ChannelID]
	if !ok {
		return repositories.ErrNotFound
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.UpdatedAt = msg.CreatedAt
	s.dms[msg.ID] = *msg
	ch.UpdatedAt = msg.CreatedAt
	s.dmChannels[ch.ID] = ch
	return nil
}

func (s *Store) ListDirectMessages(_ context.Context, channelID uint, beforeID int64, limit int) ([]models.DirectMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DirectMessage
	for _, m := range s.dms {
		if m.ChannelID == channelID && (beforeID <= 0 || m.ID < beforeID) {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b models.DirectMessage) int { return cmp.Compare(b.ID, a.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LastDirectMessages(_ context.Context, channelIDs []uint) (map[uint]models.DirectMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[uint]bool, len(channelIDs))
	for _, id := range channelIDs {
		want[id] = true
	}
	out := make(map[uint]models.DirectMessage)
	for _, m := range s.dms {
		if !want[m.ChannelID] {
			continue
		}
		if cur, ok := out[m.ChannelID]; !ok || m.ID > cur.ID {
			out[m.ChannelID] = m
		}
	}
	return out, nil
}

// MessageCount 测试辅助
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
