package model

import (
	"time"
)

// Role 账户角色
// 用显式的角色类型代替散落在各处的布尔判断，
// 授权策略表可以对角色做穷举匹配
type Role string

const (
	RoleCustomer Role = "CUSTOMER" // 客户：发起付款
	RoleStaff    Role = "STAFF"    // 员工：审核与提交付款
)

// Account 账户表
// 客户通过自助注册创建，员工账户只能由已有员工创建
// 账户在本系统内不会被删除
type Account struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username      string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"username"` // 用户名，创建后不可修改
	FullName      string    `gorm:"type:varchar(128);not null" json:"full_name"`
	NationalID    string    `gorm:"type:varchar(32);not null" json:"national_id"`          // 身份证件号
	AccountNumber string    `gorm:"type:varchar(32);index;not null" json:"account_number"` // 银行账号，登录时与用户名联合校验
	PasswordHash  string    `gorm:"type:varchar(128);not null" json:"-"`                   // bcrypt 摘要，永不外泄
	IsStaff       bool      `gorm:"not null;default:false" json:"is_staff"`                // 仅创建时设置
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// Role 返回账户角色
func (a *Account) Role() Role {
	if a.IsStaff {
		return RoleStaff
	}
	return RoleCustomer
}
