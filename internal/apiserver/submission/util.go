package submission

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// writeJSON 写入成功响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": data})
}

// writeError 写入错误响应
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": message})
}

// writeValidationError 写入字段级校验错误
func writeValidationError(w http.ResponseWriter, fields []fieldError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": fields})
}

// generateID 生成带前缀的随机 ID
// 格式：prefix-xxxxxxxxxxxx（prefix + 12 字符 hex）
func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}

// 按风险等级的评分计数，暴露在 /metrics
var scoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "jobshield",
	Subsystem: "submission",
	Name:      "scored_total",
	Help:      "Number of submissions scored, labeled by resulting risk level",
}, []string{"risk_level"})

func recordScored(riskLevel string) {
	scoredTotal.WithLabelValues(riskLevel).Inc()
}
