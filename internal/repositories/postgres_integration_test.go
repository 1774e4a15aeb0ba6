package repositories

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Gopher0727/PropChat/internal/models"
)

// 设置 PROPCHAT_TEST_POSTGRES_DSN 后运行，例如
// host=localhost user=postgres password=postgres dbname=propchat_test sslmode=disable
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("PROPCHAT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PROPCHAT_TEST_POSTGRES_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

type pgFixture struct {
	db      *gorm.DB
	company models.Company
	server  models.ChatServer
	users   []models.User
}

func newPGFixture(t *testing.T, db *gorm.DB, nUsers int) *pgFixture {
	t.Helper()
	tag := uuid.NewString()[:8]
	f := &pgFixture{db: db, company: models.Company{Name: "co-" + tag}}
	require.NoError(t, db.Create(&f.company).Error)
	f.server = models.ChatServer{CompanyID: f.company.ID, Name: "srv-" + tag}
	require.NoError(t, db.Create(&f.server).Error)
	for i := range nUsers {
		u := models.User{
			CompanyID: f.company.ID,
			Email:     tag + "-" + string(rune('a'+i)) + "@pg.test",
			FirstName: string(rune('A' + i)),
			Status:    models.UserStatusActive,
		}
		require.NoError(t, db.Create(&u).Error)
		f.users = append(f.users, u)
	}
	return f
}

func TestPostgresDirectory(t *testing.T) {
	db := openTestDB(t)
	f := newPGFixture(t, db, 2)
	repo := NewDirectoryRepository(db, NewUserRepository(db, nil))
	ctx := context.Background()
	owner, other := f.users[0], f.users[1]

	pub := &models.Channel{ServerID: f.server.ID, Name: "general", CreatedBy: owner.ID}
	require.NoError(t, repo.CreateChannel(ctx, pub))
	priv := &models.Channel{ServerID: f.server.ID, Name: "leads", IsPrivate: true, CreatedBy: owner.ID}
	require.NoError(t, repo.CreateChannel(ctx, priv))

	err := repo.CreateChannel(ctx, &models.Channel{ServerID: f.server.ID, Name: "general", CreatedBy: owner.ID})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := repo.GetChannel(ctx, priv.ID)
	require.NoError(t, err)
	assert.Equal(t, f.company.ID, got.CompanyID)
	assert.True(t, got.IsPrivate)

	member, err := repo.IsMember(ctx, priv.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, member)
	member, err = repo.IsMember(ctx, priv.ID, other.ID)
	require.NoError(t, err)
	assert.False(t, member)

	visible, err := repo.ListVisibleChannels(ctx, f.server.ID, other.ID, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "general", visible[0].Name)

	require.NoError(t, repo.AddMember(ctx, priv.ID, other.ID))
	require.NoError(t, repo.AddMember(ctx, priv.ID, other.ID))
	visible, err = repo.ListVisibleChannels(ctx, f.server.ID, other.ID, false)
	require.NoError(t, err)
	assert.Len(t, visible, 2)

	role := models.ServerRole{ServerID: f.server.ID, Name: "mod", Permissions: models.Permissions{models.PermManageMessages}}
	require.NoError(t, db.Create(&role).Error)
	require.NoError(t, db.Create(&models.UserRole{UserID: other.ID, RoleID: role.ID}).Error)
	roles, err := repo.GetUserRoles(ctx, f.server.ID, other.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.True(t, roles[0].Permissions.Has(models.PermManageMessages))

	_, err = repo.GetChannel(ctx, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresMessagesAndReceipts(t *testing.T) {
	db := openTestDB(t)
	f := newPGFixture(t, db, 1)
	dir := NewDirectoryRepository(db, NewUserRepository(db, nil))
	msgs := NewMessageRepository(db)
	receipts := NewReceiptRepository(db)
	ctx := context.Background()
	author := f.users[0]

	ch := &models.Channel{ServerID: f.server.ID, Name: "general", CreatedBy: author.ID}
	require.NoError(t, dir.CreateChannel(ctx, ch))

	base := time.Now().UnixNano()
	var ids []int64
	for i := range 5 {
		m := &models.Message{ID: base + int64(i), ChannelID: ch.ID, UserID: author.ID, Content: "m"}
		require.NoError(t, msgs.CreateMessage(ctx, m))
		ids = append(ids, m.ID)
	}
	reply := &models.Message{ID: base + 10, ChannelID: ch.ID, UserID: author.ID, Content: "re", ParentID: &ids[0]}
	require.NoError(t, msgs.CreateMessage(ctx, reply))

	page, err := msgs.ListMessages(ctx, ch.ID, ids[3], 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, ids[2], page[0].ID, "descending order")

	before, err := msgs.GetMessage(ctx, ids[1])
	require.NoError(t, err)
	edited, err := msgs.UpdateMessageContent(ctx, ids[1], "changed", time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "changed", edited.Content)
	assert.True(t, before.CreatedAt.Equal(edited.CreatedAt))

	_, err = msgs.UpdateMessageContent(ctx, 1, "x", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, msgs.DeleteMessage(ctx, ids[0]))
	assert.ErrorIs(t, msgs.DeleteMessage(ctx, ids[0]), ErrNotFound)
	orphan, err := msgs.GetMessage(ctx, reply.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan.ParentID)

	require.NoError(t, receipts.UpsertReadReceipt(ctx, ch.ID, author.ID, ids[4], time.Now().UTC()))
	require.NoError(t, receipts.UpsertReadReceipt(ctx, ch.ID, author.ID, ids[2], time.Now().UTC()))
	r, err := receipts.GetReadReceipt(ctx, ch.ID, author.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[2], r.LastReadMessageID)
}

func TestPostgresPresenceUpsert(t *testing.T) {
	db := openTestDB(t)
	f := newPGFixture(t, db, 1)
	repo := NewPresenceRepository(db)
	ctx := context.Background()
	uid := f.users[0].ID

	_, err := repo.UpsertPresence(ctx, uid, models.StatusOnline, time.Now().UTC())
	require.NoError(t, err)
	_, err = repo.UpsertPresence(ctx, uid, models.StatusAway, time.Now().UTC())
	require.NoError(t, err)

	got, err := repo.GetPresences(ctx, []uint{uid})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAway, got[uid].Status)
}

func TestPostgresDMChannelUniquePair(t *testing.T) {
	db := openTestDB(t)
	f := newPGFixture(t, db, 2)
	repo := NewDMRepository(db)
	ctx := context.Background()
	low, high := models.SortedPair(f.users[0].ID, f.users[1].ID)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			errs[i] = repo.CreateDMChannel(ctx, &models.DirectMessageChannel{UserLow: low, UserHigh: high})
		})
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t, IsUniqueViolation(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, created)

	ch, err := repo.FindDMChannel(ctx, low, high)
	require.NoError(t, err)

	msg := &models.DirectMessage{ID: time.Now().UnixNano(), ChannelID: ch.ID, SenderID: low, Content: "hi", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateDirectMessage(ctx, msg))
	last, err := repo.LastDirectMessages(ctx, []uint{ch.ID})
	require.NoError(t, err)
	assert.Equal(t, msg.ID, last[ch.ID].ID)

	list, err := repo.ListDMChannels(ctx, high)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ch.ID, list[0].ID)
}
