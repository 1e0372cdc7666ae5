// Package model 定义核心数据模型
//
// 本包只包含纯数据结构和零依赖的领域方法，
// 供 storage 层（bson/db tag）和 apiserver 层（json tag）共用。
package model

import "time"

// AccountRole 账户角色
type AccountRole string

const (
	AccountRoleAdmin AccountRole = "admin"
	AccountRoleUser  AccountRole = "user"
)

// AccountStatus 账户状态
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusDeleted   AccountStatus = "deleted" // 软删除，记录保留
)

// Account 用户账户
//
// 凭证不变式：PasswordHash 和 ExternalProvider/ExternalSubject
// 至少有一组存在；两者同时存在表示本地账户已关联外部身份。
type Account struct {
	ID        string `json:"id" bson:"_id" db:"id"`
	Email     string `json:"email" bson:"email" db:"email"` // 存储时统一小写
	FirstName string `json:"firstName" bson:"first_name" db:"first_name"`
	LastName  string `json:"lastName" bson:"last_name" db:"last_name"`

	// 本地凭证
	PasswordHash string `json:"-" bson:"password_hash,omitempty" db:"password_hash"` // never expose in JSON

	// 外部身份（OAuth 风格登录）
	ExternalProvider string `json:"externalProvider,omitempty" bson:"external_provider,omitempty" db:"external_provider"`
	ExternalSubject  string `json:"-" bson:"external_subject,omitempty" db:"external_subject"`

	Verified bool          `json:"verified" bson:"verified" db:"verified"`
	Role     AccountRole   `json:"role" bson:"role" db:"role"`
	Status   AccountStatus `json:"status" bson:"status" db:"status"`

	// 登录安全计数器
	FailedLoginAttempts int        `json:"-" bson:"failed_login_attempts" db:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"-" bson:"locked_until,omitempty" db:"locked_until"`

	// 密码重置令牌（只存哈希，10 分钟过期）
	ResetTokenHash    string     `json:"-" bson:"reset_token_hash,omitempty" db:"reset_token_hash"`
	ResetTokenExpires *time.Time `json:"-" bson:"reset_token_expires,omitempty" db:"reset_token_expires"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty" bson:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt   time.Time  `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"-" bson:"deleted_at,omitempty" db:"deleted_at"`
}

// HasLocalCredential 是否设置了本地密码
func (a *Account) HasLocalCredential() bool {
	return a.PasswordHash != ""
}

// HasExternalIdentity 是否关联了外部身份
func (a *Account) HasExternalIdentity() bool {
	return a.ExternalProvider != "" && a.ExternalSubject != ""
}

// IsLocked 账户是否处于锁定窗口内
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// CanAuthenticate 账户是否允许登录（状态检查，不含锁定窗口）
func (a *Account) CanAuthenticate() bool {
	return a.Status == AccountStatusActive
}
