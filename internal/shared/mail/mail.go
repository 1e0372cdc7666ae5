// Package mail 邮件发送封装
//
// 目前仅用于发送密码重置邮件。SMTP 未配置时使用 NoOpSender，
// 重置链接只写入日志。
package mail

import (
	"context"
	"fmt"
	"log"

	gomail "github.com/wneessen/go-mail"
)

// Sender 邮件发送接口
type Sender interface {
	SendPasswordReset(ctx context.Context, to, resetURL string) error
}

// Config SMTP 配置
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Enabled 判断 SMTP 是否已配置
func (c Config) Enabled() bool {
	return c.Host != ""
}

// ============================================================================
// SMTP 实现
// ============================================================================

// SMTPSender 基于 go-mail 的 SMTP 发送器
type SMTPSender struct {
	client *gomail.Client
	from   string
}

// NewSMTPSender 创建 SMTP 发送器
func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &SMTPSender{client: client, from: cfg.From}, nil
}

// SendPasswordReset 发送密码重置邮件
func (s *SMTPSender) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	msg.Subject("重置你的密码")
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf(
		"你请求了密码重置。请在 10 分钟内访问以下链接设置新密码：\n\n%s\n\n如果这不是你的操作，请忽略本邮件。\n", resetURL))

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send password reset to %s: %w", to, err)
	}
	return nil
}

// ============================================================================
// NoOpSender - 未配置 SMTP 时的实现
// ============================================================================

// NoOpSender 不发送邮件，仅记录日志
type NoOpSender struct{}

// NewNoOpSender 创建 NoOpSender 实例
func NewNoOpSender() *NoOpSender {
	return &NoOpSender{}
}

// SendPasswordReset 写日志代替发送
func (s *NoOpSender) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	log.Printf("[mail] SMTP not configured, password reset for %s: %s", to, resetURL)
	return nil
}

var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*NoOpSender)(nil)
)
