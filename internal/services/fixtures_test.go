package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/config"
	"github.com/Gopher0727/PropChat/internal/models"
	"github.com/Gopher0727/PropChat/internal/repositories"
	"github.com/Gopher0727/PropChat/internal/repositories/memstore"
)

// seqIDs 单调递增的测试 ID
type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NextID() (int64, error) { return s.n.Add(1) * 10, nil }

type testClock struct{ t atomic.Int64 }

func newTestClock() *testClock {
	c := &testClock{}
	c.t.Store(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *testClock) Now() time.Time { return time.Unix(0, c.t.Load()).UTC() }
func (c *testClock) Tick()          { c.t.Add(int64(time.Second)) }

// fixture 两个公司；acme 有 general(公开)、secret(私有) 两个频道
type fixture struct {
	store *memstore.Store
	clock *testClock

	dir      *DirectoryService
	messages *MessageService
	receipts *ReceiptService
	presence *PresenceService
	dms      *DMService
	channels *ChannelService

	acme, globex models.Company
	server       models.ChatServer
	general      models.Channel
	secret       models.Channel

	alice   models.User // 普通成员，secret 成员
	bob     models.User // 普通成员
	admin   models.User // 公司管理员
	mod     models.User // 拥有 manage_messages 角色
	outside models.User // 其他公司
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	clock := newTestClock()
	logger := zap.NewNop()
	cfg := config.Default().Chat

	f := &fixture{store: store, clock: clock}
	f.acme = store.AddCompany("acme")
	f.globex = store.AddCompany("globex")

	f.alice = store.AddUser(models.User{CompanyID: f.acme.ID, Email: "alice@acme.test", FirstName: "Alice", LastName: "A"})
	f.bob = store.AddUser(models.User{CompanyID: f.acme.ID, Email: "bob@acme.test", FirstName: "Bob", LastName: "B"})
	f.admin = store.AddUser(models.User{CompanyID: f.acme.ID, Email: "admin@acme.test", FirstName: "Ada", Role: models.RoleAdmin})
	f.mod = store.AddUser(models.User{CompanyID: f.acme.ID, Email: "mod@acme.test", FirstName: "Mo"})
	f.outside = store.AddUser(models.User{CompanyID: f.globex.ID, Email: "eve@globex.test", FirstName: "Eve"})

	f.server = store.AddServer(f.acme.ID, "acme")
	store.AddServer(f.globex.ID, "globex")
	f.general = store.AddChannel(f.server.ID, "general", false, f.admin.ID)
	f.secret = store.AddChannel(f.server.ID, "secret", true, f.alice.ID)

	role := store.AddRole(f.server.ID, "moderator", models.PermManageMessages, models.PermManageChannels)
	store.AssignRole(f.mod.ID, role.ID)

	ids := &seqIDs{}
	f.dir = NewDirectoryService(store, logger)
	f.receipts = NewReceiptService(store, clock.Now, logger)
	f.messages = NewMessageService(f.dir, store, f.receipts, ids, cfg, clock.Now, logger)
	f.presence = NewPresenceService(f.dir, store, repositories.NewLocalSessionRegistry(), clock.Now, logger)
	f.dms = NewDMService(f.dir, store, ids, cfg, clock.Now, logger)
	f.channels = NewChannelService(f.dir, f.presence, logger)
	return f
}

func (f *fixture) post(t *testing.T, userID, channelID uint, content string) models.MessageView {
	t.Helper()
	v, err := f.messages.Post(context.Background(), userID, SendMessageRequest{ChannelID: channelID, Content: content})
	if err != nil {
		t.Fatalf("post %q: %v", content, err)
	}
	f.clock.Tick()
	return *v
}
