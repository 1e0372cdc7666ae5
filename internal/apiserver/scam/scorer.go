// Package scam 实现职位信息的欺诈风险评分策略
//
// 纯函数、确定性、无 I/O：输入归一化后的提交内容，输出触发的
// 警告标记和 0-100 的欺诈概率。规则以数据表形式定义，新增规则
// 只需追加表项，不需要改动控制流。
package scam

import (
	"strings"
	"unicode/utf8"

	"jobshield/internal/shared/model"
)

// Input 评分输入
type Input struct {
	Description  string // 职位描述（含合并后的上传文件文本）
	CompanyEmail string // 公司联系邮箱，可为空
	HasWebsite   bool   // 是否提供了公司网站
}

// Result 评分输出
type Result struct {
	Flags       []model.WarningFlag
	Probability int // 0-100
	RiskLevel   model.RiskLevel
}

// maxProbability 概率上限，触发分数求和后截断
const maxProbability = 100

// 触发 vague_description 的描述长度下限
const minDescriptionLength = 100

// freeMailDomains 个人邮箱域名，正规公司招聘不应使用
var freeMailDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
}

// rule 一条评分规则
//
// match 在小写化后的描述上做子串匹配；keywords 为空的规则
// 由 trigger 函数判定（长度、邮箱域名等非文本信号）。
type rule struct {
	category    model.FlagCategory
	severity    model.FlagSeverity
	score       int
	description string
	keywords    []string
	trigger     func(in Input) bool
}

// rules 规则表，按表序求值，分数累加后截断到 [0,100]
var rules = []rule{
	{
		category:    model.FlagUnrealisticSalary,
		severity:    model.FlagSeverityHigh,
		score:       25,
		description: "Promises of unrealistic earnings or quick money",
		keywords:    []string{"earn $", "make money fast", "unlimited income", "get rich"},
	},
	{
		category:    model.FlagUpfrontPayment,
		severity:    model.FlagSeverityHigh,
		score:       30,
		description: "Requests payment, fees or deposits from the applicant",
		keywords:    []string{"pay", "fee", "deposit", "investment required"},
	},
	{
		category:    model.FlagPressureTactics,
		severity:    model.FlagSeverityMedium,
		score:       15,
		description: "Uses urgency or pressure to rush the applicant",
		keywords:    []string{"act now", "limited time", "urgent", "immediate start"},
	},
	{
		category:    model.FlagVagueDescription,
		severity:    model.FlagSeverityMedium,
		score:       10,
		description: "Job description is too short to be a real posting",
		// 空描述不算 vague：只有显式给出且过短的描述才触发。
		// 按字符数而非字节数判定，多字节文本不会被误判过短。
		trigger: func(in Input) bool {
			n := utf8.RuneCountInString(in.Description)
			return n > 0 && n < minDescriptionLength
		},
	},
	{
		category:    model.FlagPersonalInfoRequest,
		severity:    model.FlagSeverityHigh,
		score:       30,
		description: "Asks for sensitive personal or financial information",
		keywords:    []string{"social security", "ssn", "bank account", "credit card"},
	},
	{
		category:    model.FlagSuspiciousEmail,
		severity:    model.FlagSeverityMedium,
		score:       15,
		description: "Company uses a free personal email provider",
		trigger: func(in Input) bool {
			return freeMailDomains[emailDomain(in.CompanyEmail)]
		},
	},
	{
		category:    model.FlagNoCompanyPresence,
		severity:    model.FlagSeverityMedium,
		score:       10,
		description: "No company website provided",
		trigger: func(in Input) bool {
			return !in.HasWebsite
		},
	},
}

// Score 对一次提交评分
//
// 每条规则独立求值；只有触发的规则产生标记（Detected=true），
// 分数求和后截断到 100，风险等级由标记严重度与概率共同推导。
func Score(in Input) Result {
	text := strings.ToLower(in.Description)

	var flags []model.WarningFlag
	total := 0
	for _, r := range rules {
		if !r.fires(in, text) {
			continue
		}
		flags = append(flags, model.WarningFlag{
			Category:    r.category,
			Severity:    r.severity,
			Description: r.description,
			Detected:    true,
		})
		total += r.score
	}
	if total > maxProbability {
		total = maxProbability
	}

	return Result{
		Flags:       flags,
		Probability: total,
		RiskLevel:   deriveRiskLevel(flags, total),
	}
}

// fires 判断规则是否触发；text 为小写化后的描述
func (r rule) fires(in Input, text string) bool {
	if r.trigger != nil {
		return r.trigger(in)
	}
	for _, kw := range r.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// deriveRiskLevel 由触发标记与概率推导风险等级
//
//	high:   ≥2 个 high 标记，或概率 ≥70
//	medium: ≥1 个 high 标记，或 ≥2 个 medium 标记，或概率 ≥40
//	low:    其余
func deriveRiskLevel(flags []model.WarningFlag, probability int) model.RiskLevel {
	high, medium := 0, 0
	for _, f := range flags {
		switch f.Severity {
		case model.FlagSeverityHigh:
			high++
		case model.FlagSeverityMedium:
			medium++
		}
	}

	switch {
	case high >= 2 || probability >= 70:
		return model.RiskLevelHigh
	case high >= 1 || medium >= 2 || probability >= 40:
		return model.RiskLevelMedium
	default:
		return model.RiskLevelLow
	}
}

// emailDomain 提取邮箱域名（小写）；无效邮箱返回空串
func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
