package model

import "time"

// SubmissionStatus 提交状态
//
// 状态机：pending → analyzing → completed | failed
// completed 和 failed 为终态。
type SubmissionStatus string

const (
	SubmissionStatusPending   SubmissionStatus = "pending"
	SubmissionStatusAnalyzing SubmissionStatus = "analyzing"
	SubmissionStatusCompleted SubmissionStatus = "completed"
	SubmissionStatusFailed    SubmissionStatus = "failed"
)

// RiskLevel 风险等级（由评分结果推导，不可独立设置）
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// FlagSeverity 警告标记严重度
type FlagSeverity string

const (
	FlagSeverityMedium FlagSeverity = "medium"
	FlagSeverityHigh   FlagSeverity = "high"
)

// FlagCategory 警告标记类别
type FlagCategory string

const (
	FlagUnrealisticSalary   FlagCategory = "unrealistic_salary"
	FlagUpfrontPayment      FlagCategory = "upfront_payment"
	FlagPressureTactics     FlagCategory = "pressure_tactics"
	FlagVagueDescription    FlagCategory = "vague_description"
	FlagPersonalInfoRequest FlagCategory = "personal_info_request"
	FlagSuspiciousEmail     FlagCategory = "suspicious_email"
	FlagNoCompanyPresence   FlagCategory = "no_company_presence"

	// 以下类别为 schema 占位，外部信号校验尚未接入，永远不会触发
	FlagNoOnlinePresence FlagCategory = "no_online_presence"
	FlagSuspiciousDomain FlagCategory = "suspicious_domain"
	FlagInvalidSSL       FlagCategory = "invalid_ssl"
)

// WarningFlag 一条评分结果标记
type WarningFlag struct {
	Category    FlagCategory `json:"category" bson:"category" db:"category"`
	Severity    FlagSeverity `json:"severity" bson:"severity" db:"severity"`
	Description string       `json:"description" bson:"description" db:"description"`
	Detected    bool         `json:"detected" bson:"detected" db:"detected"`
}

// Submission 一次职位扫描请求及其结果
//
// UserID 创建后不可变更；Flags/ScamProbability/RiskLevel 在评分完成后
// 一次性写入，此后不再修改。
type Submission struct {
	ID     string `json:"id" bson:"_id" db:"id"`
	UserID string `json:"userId" bson:"user_id" db:"user_id"`

	// 输入：URL / 描述文本 / 上传文件 至少一项
	JobURL         string `json:"jobUrl,omitempty" bson:"job_url,omitempty" db:"job_url"`
	Description    string `json:"description,omitempty" bson:"description,omitempty" db:"description"`
	CompanyName    string `json:"companyName,omitempty" bson:"company_name,omitempty" db:"company_name"`
	CompanyEmail   string `json:"companyEmail,omitempty" bson:"company_email,omitempty" db:"company_email"`
	CompanyWebsite string `json:"companyWebsite,omitempty" bson:"company_website,omitempty" db:"company_website"`

	// 上传文件元信息（FilePath 为对象存储 key）
	FileName    string `json:"fileName,omitempty" bson:"file_name,omitempty" db:"file_name"`
	FilePath    string `json:"-" bson:"file_path,omitempty" db:"file_path"`
	FileSize    int64  `json:"fileSize,omitempty" bson:"file_size,omitempty" db:"file_size"`
	ContentType string `json:"contentType,omitempty" bson:"content_type,omitempty" db:"content_type"`

	// 评分结果
	Flags           []WarningFlag `json:"flags" bson:"flags" db:"flags"`
	ScamProbability int           `json:"scamProbability" bson:"scam_probability" db:"scam_probability"`
	RiskLevel       RiskLevel     `json:"riskLevel,omitempty" bson:"risk_level,omitempty" db:"risk_level"`

	Status SubmissionStatus `json:"status" bson:"status" db:"status"`

	// 用户可更新字段
	ReportViewed   bool       `json:"reportViewed" bson:"report_viewed" db:"report_viewed"`
	ReportViewedAt *time.Time `json:"reportViewedAt,omitempty" bson:"report_viewed_at,omitempty" db:"report_viewed_at"`
	IsReported     bool       `json:"isReported" bson:"is_reported" db:"is_reported"`
	ReportReason   string     `json:"reportReason,omitempty" bson:"report_reason,omitempty" db:"report_reason"`

	CreatedAt time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at" db:"updated_at"`
}

// HasInput 创建时至少要有 URL、描述或上传文件之一
func (s *Submission) HasInput() bool {
	return s.JobURL != "" || s.Description != "" || s.FilePath != ""
}

// HasFile 是否携带上传文件
func (s *Submission) HasFile() bool {
	return s.FilePath != ""
}

// IsTerminal 是否处于终态
func (s *Submission) IsTerminal() bool {
	return s.Status == SubmissionStatusCompleted || s.Status == SubmissionStatusFailed
}

// DetectedFlags 只返回 Detected=true 的标记
func (s *Submission) DetectedFlags() []WarningFlag {
	var out []WarningFlag
	for _, f := range s.Flags {
		if f.Detected {
			out = append(out, f)
		}
	}
	return out
}

// PublicAlert 公共告警视图：completed 且中高风险的提交投影为
// 安全字段子集，不含所有者 PII、公司邮箱和文件元信息。
type PublicAlert struct {
	ID              string        `json:"id"`
	JobURL          string        `json:"jobUrl,omitempty"`
	CompanyName     string        `json:"companyName,omitempty"`
	RiskLevel       RiskLevel     `json:"riskLevel"`
	ScamProbability int           `json:"scamProbability"`
	Flags           []WarningFlag `json:"flags"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// ToPublicAlert 生成公共告警投影
func (s *Submission) ToPublicAlert() PublicAlert {
	flags := s.DetectedFlags()
	if flags == nil {
		flags = []WarningFlag{}
	}
	return PublicAlert{
		ID:              s.ID,
		JobURL:          s.JobURL,
		CompanyName:     s.CompanyName,
		RiskLevel:       s.RiskLevel,
		ScamProbability: s.ScamProbability,
		Flags:           flags,
		CreatedAt:       s.CreatedAt,
	}
}
