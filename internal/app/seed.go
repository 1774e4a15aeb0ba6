package app

import (
	"context"

	"github.com/Gopher0727/PropChat/internal/models"
	"github.com/Gopher0727/PropChat/internal/repositories/memstore"
)

// Demo memory 模式下预置的公司、频道与用户
type Demo struct {
	Company models.Company
	Server  models.ChatServer

	General    models.Channel
	Random     models.Channel
	Leadership models.Channel // 私有频道，仅 Admin 与 Alice

	Admin models.User
	Alice models.User // 拥有 moderator 角色
	Bob   models.User
}

// SeedDemo 写入演示数据
func SeedDemo(store *memstore.Store) *Demo {
	d := &Demo{}
	d.Company = store.AddCompany("Demo Properties")
	d.Server = store.AddServer(d.Company.ID, "Demo Properties")

	d.Admin = store.AddUser(models.User{CompanyID: d.Company.ID, Email: "admin@demo.local", FirstName: "Dana", LastName: "Admin", Role: models.RoleAdmin})
	d.Alice = store.AddUser(models.User{CompanyID: d.Company.ID, Email: "alice@demo.local", FirstName: "Alice", LastName: "Manager"})
	d.Bob = store.AddUser(models.User{CompanyID: d.Company.ID, Email: "bob@demo.local", FirstName: "Bob", LastName: "Agent"})

	d.General = store.AddChannel(d.Server.ID, "general", false, d.Admin.ID)
	d.Random = store.AddChannel(d.Server.ID, "random", false, d.Admin.ID)
	d.Leadership = store.AddChannel(d.Server.ID, "leadership", true, d.Admin.ID)

	moderator := store.AddRole(d.Server.ID, "moderator", models.PermManageMessages, models.PermManageChannels)
	store.AssignRole(d.Alice.ID, moderator.ID)
	_ = store.AddMember(context.Background(), d.Leadership.ID, d.Alice.ID)
	return d
}

func (d *Demo) Users() []models.User {
	return []models.User{d.Admin, d.Alice, d.Bob}
}
