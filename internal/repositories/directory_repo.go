package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/PropChat/internal/models"
)

// DirectoryRepository 公司、服务器、频道、成员与角色的查询
type DirectoryRepository struct {
	*UserRepository
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB, users *UserRepository) *DirectoryRepository {
	return &DirectoryRepository{UserRepository: users, db: db}
}

func (r *DirectoryRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *DirectoryRepository) GetUsers(ctx context.Context, ids []uint) (map[uint]*models.User, error) {
	return r.GetByIDs(ctx, ids)
}

func (r *DirectoryRepository) ListCompanyUsers(ctx context.Context, companyID uint) ([]models.User, error) {
	return r.ListByCompany(ctx, companyID)
}

func (r *DirectoryRepository) GetServerByCompany(ctx context.Context, companyID uint) (*models.ChatServer, error) {
	var server models.ChatServer
	if err := r.db.WithContext(ctx).Where("company_id = ?", companyID).First(&server).Error; err != nil {
		return nil, translate(err)
	}
	return &server, nil
}

func (r *DirectoryRepository) GetServer(ctx context.Context, id uint) (*models.ChatServer, error) {
	var server models.ChatServer
	if err := r.db.WithContext(ctx).First(&server, id).Error; err != nil {
		return nil, translate(err)
	}
	return &server, nil
}

// GetChannel 查询频道，并通过所属服务器填充 CompanyID
func (r *DirectoryRepository) GetChannel(ctx context.Context, id uint) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.WithContext(ctx).
		Select("chat_channels.*, chat_servers.company_id").
		Joins("JOIN chat_servers ON chat_servers.id = chat_channels.server_id").
		Where("chat_channels.id = ?", id).
		Take(&channel).Error
	if err != nil {
		return nil, translate(err)
	}
	return &channel, nil
}

func (r *DirectoryRepository) IsMember(ctx context.Context, channelID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChannelMember{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *DirectoryRepository) AddMember(ctx context.Context, channelID, userID uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ChannelMember{ChannelID: channelID, UserID: userID}).Error
}

// ListVisibleChannels 公开频道加上用户所在的私有频道；includeAllPrivate 用于管理员
func (r *DirectoryRepository) ListVisibleChannels(ctx context.Context, serverID, userID uint, includeAllPrivate bool) ([]models.Channel, error) {
	q := r.db.WithContext(ctx).Where("server_id = ?", serverID)
	if !includeAllPrivate {
		q = q.Where("is_private = ? OR id IN (?)", false,
			r.db.Model(&models.ChannelMember{}).Select("channel_id").Where("user_id = ?", userID))
	}
	var channels []models.Channel
	if err := q.Order("name").Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

// GetUserRoles 用户在该服务器上的角色
func (r *DirectoryRepository) GetUserRoles(ctx context.Context, serverID, userID uint) ([]models.ServerRole, error) {
	var roles []models.ServerRole
	err := r.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = server_roles.id").
		Where("server_roles.server_id = ? AND user_roles.user_id = ?", serverID, userID).
		Order("server_roles.id").
		Find(&roles).Error
	return roles, err
}

// CreateChannel 创建频道；私有频道在同一事务中把创建者加入成员
func (r *DirectoryRepository) CreateChannel(ctx context.Context, channel *models.Channel) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(channel).Error; err != nil {
			return err
		}
		if !channel.IsPrivate {
			return nil
		}
		return tx.Create(&models.ChannelMember{ChannelID: channel.ID, UserID: channel.CreatedBy}).Error
	}))
}
