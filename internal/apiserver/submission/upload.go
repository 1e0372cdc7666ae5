package submission

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"jobshield/internal/apiserver/auth"
	"jobshield/internal/shared/model"
)

// 按扩展名的 MIME 白名单，multipart 声明的 Content-Type 仅作参考
var extContentTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".rtf":  "application/rtf",
}

// textExtensions 这些格式的内容并入描述参与评分
var textExtensions = map[string]bool{".txt": true, ".md": true}

// CreateWithUpload 提交职位（multipart 文件上传）
//
// 表单字段：file（必填）+ Create 的全部 JSON 字段（可选）。
// 校验不通过的文件不会写入对象存储。
func (h *Handler) CreateWithUpload(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if h.files == nil {
		writeError(w, http.StatusInternalServerError, "file storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.upload.MaxSize+1024)
	if err := r.ParseMultipartForm(h.upload.MaxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file exceeds the size limit or the form is malformed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeValidationError(w, []fieldError{{"file", "file is required"}})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, allowed := extContentTypes[ext]
	if !h.extensionAllowed(ext) || !allowed {
		writeValidationError(w, []fieldError{{"file", "unsupported file type"}})
		return
	}
	if header.Size > h.upload.MaxSize {
		writeValidationError(w, []fieldError{{"file", "file exceeds the size limit"}})
		return
	}

	now := h.now()
	sub := &model.Submission{
		ID:             generateID("sub"),
		UserID:         user.ID,
		JobURL:         r.FormValue("jobUrl"),
		Description:    strings.TrimSpace(r.FormValue("description")),
		CompanyName:    r.FormValue("companyName"),
		CompanyEmail:   r.FormValue("companyEmail"),
		CompanyWebsite: r.FormValue("companyWebsite"),
		FileName:       header.Filename,
		FileSize:       header.Size,
		ContentType:    contentType,
		Status:         model.SubmissionStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	data, err := io.ReadAll(io.LimitReader(file, h.upload.MaxSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	if int64(len(data)) > h.upload.MaxSize {
		writeValidationError(w, []fieldError{{"file", "file exceeds the size limit"}})
		return
	}

	// 文本文件并入描述参与评分
	if textExtensions[ext] {
		text := strings.TrimSpace(string(data))
		if sub.Description == "" {
			sub.Description = text
		} else if text != "" {
			sub.Description = sub.Description + "\n" + text
		}
	}

	sub.FilePath = "submissions/" + sub.ID + "/" + filepath.Base(header.Filename)
	if err := h.files.Upload(r.Context(), sub.FilePath, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		log.Printf("[submission.upload] Upload error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to store uploaded file")
		return
	}

	h.persistAndScore(w, r, sub)
}

func (h *Handler) extensionAllowed(ext string) bool {
	for _, allowed := range h.upload.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
