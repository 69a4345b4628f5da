package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/api/middleware"
	"github.com/qs3c/mpesa_anal_server/internal/intake"
	"github.com/qs3c/mpesa_anal_server/internal/model/dto"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/errs"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/response"
	"github.com/qs3c/mpesa_anal_server/internal/service"
)

// StatementField 上传表单中的文件字段
const StatementField = "mpesa_statement"

// 请求体除文件外留给表单其他部分的余量
const formOverhead = 1 << 20

type AnalysisHandler struct {
	analysisService *service.AnalysisService
	maxSize         int64
}

func NewAnalysisHandler(analysisService *service.AnalysisService, cfg config.UploadConfig) *AnalysisHandler {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = intake.DefaultMaxSize
	}
	return &AnalysisHandler{
		analysisService: analysisService,
		maxSize:         maxSize,
	}
}

// Submit 上传账单并同步等待分析结果
// POST /api/v1/analyze-mpesa
func (h *AnalysisHandler) Submit(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)

	// 文件之前的其他表单字段也要读过，总量设上限
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.maxSize+formOverhead)

	file, err := h.readStatement(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	record, err := h.analysisService.Submit(c.Request.Context(), sessionID, file)
	if err != nil {
		if errs.KindOf(err) == errs.KindUnknown {
			log.Error().Err(err).Str("session_id", sessionID).Msg("submit statement failed")
		}
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "analysis complete", dto.NewAnalyzeResponse(*record))
}

// readStatement 流式读取表单，找到文件字段后最多读取 maxSize+1 字节。
// 超过上限的文件只保留文件名和大小，由校验按规则顺序拒绝（扩展名优先于大小）
func (h *AnalysisHandler) readStatement(c *gin.Context) (*intake.File, error) {
	reader, err := c.Request.MultipartReader()
	if err != nil {
		return nil, errs.ErrMissingFile
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errs.ErrMissingFile
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, errs.ErrFileTooLarge
			}
			return nil, errs.ErrMissingFile
		}

		if part.FormName() != StatementField || part.FileName() == "" {
			part.Close()
			continue
		}
		defer part.Close()

		file := &intake.File{Name: part.FileName()}
		content, err := io.ReadAll(io.LimitReader(part, h.maxSize+1))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if !errors.As(err, &tooLarge) {
				return nil, errs.ErrMissingFile
			}
			// 请求体在文件内容中途超限，文件名已知
			file.Size = h.maxSize + 1
			return file, nil
		}

		file.Size = int64(len(content))
		if file.Size <= h.maxSize {
			file.Content = content
		}
		return file, nil
	}
}
