package attendance

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"kintai-backend/internal/civiltime"
	"kintai-backend/internal/platform/auth"
	"kintai-backend/internal/platform/httpx"
)

type Handler struct{ svc *Service }

// RegisterRoutes: r には RequireAuth 済みのグループを渡すこと
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// 打刻
	r.POST("/attendance/check-in", h.CheckIn)
	r.POST("/attendance/check-out", h.CheckOut)
	r.POST("/attendance/breaks", h.StartBreak)
	r.POST("/attendance/breaks/:break_id/end", h.EndBreak)

	// 参照
	r.GET("/attendance/status", h.Status)
	r.GET("/attendance/monthly", h.Monthly)
	r.GET("/attendance/monthly.csv", h.MonthlyCSV)
	r.GET("/attendance/monthly.xlsx", h.MonthlyXLSX)

	// 管理者: 欠勤・休暇登録
	r.POST("/attendance/days", h.MarkDay)
}

// ---------- handlers ----------

// POST /attendance/check-in
func (h *Handler) CheckIn(c *gin.Context) {
	emp, at, ok := h.punchInput(c)
	if !ok {
		return
	}
	rec, err := h.svc.CheckIn(c.Request.Context(), emp, at)
	if err != nil {
		h.fail(c, "check-in", err)
		return
	}
	c.JSON(http.StatusCreated, rec.toDTO())
}

// POST /attendance/check-out
func (h *Handler) CheckOut(c *gin.Context) {
	emp, at, ok := h.punchInput(c)
	if !ok {
		return
	}
	rec, err := h.svc.CheckOut(c.Request.Context(), emp, at)
	if err != nil {
		h.fail(c, "check-out", err)
		return
	}
	c.JSON(http.StatusOK, rec.toDTO())
}

// POST /attendance/breaks
func (h *Handler) StartBreak(c *gin.Context) {
	emp, ok := currentEmployee(c)
	if !ok {
		return
	}
	var req StartBreakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	kind, err := ParseBreakKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, err.Error()))
		return
	}
	at, err := h.parseAt(req.At)
	if err != nil {
		h.fail(c, "start-break", err)
		return
	}

	rec, err := h.svc.StartBreak(c.Request.Context(), emp, kind, at)
	if err != nil {
		h.fail(c, "start-break", err)
		return
	}
	b := rec.Breaks[len(rec.Breaks)-1]
	c.Header("Location", "/attendance/breaks/"+b.ID)
	c.JSON(http.StatusCreated, rec.toDTO())
}

// POST /attendance/breaks/:break_id/end
func (h *Handler) EndBreak(c *gin.Context) {
	emp, at, ok := h.punchInput(c)
	if !ok {
		return
	}
	rec, err := h.svc.EndBreak(c.Request.Context(), emp, c.Param("break_id"), at)
	if err != nil {
		h.fail(c, "end-break", err)
		return
	}
	c.JSON(http.StatusOK, rec.toDTO())
}

// GET /attendance/status
func (h *Handler) Status(c *gin.Context) {
	emp, ok := currentEmployee(c)
	if !ok {
		return
	}
	view, err := h.svc.CurrentStatus(c.Request.Context(), emp)
	if err != nil {
		h.fail(c, "status", err)
		return
	}
	c.JSON(http.StatusOK, view.toDTO())
}

// GET /attendance/monthly?year=&month=[&employee_id=]
func (h *Handler) Monthly(c *gin.Context) {
	emp, year, month, ok := h.monthInput(c)
	if !ok {
		return
	}
	sum, err := h.svc.ClassifyMonth(c.Request.Context(), emp, year, month)
	if err != nil {
		h.fail(c, "monthly", err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// GET /attendance/monthly.csv?year=&month=&encoding=sjis[&lang=ja]
func (h *Handler) MonthlyCSV(c *gin.Context) {
	emp, year, month, ok := h.monthInput(c)
	if !ok {
		return
	}
	enc, err := ParseCSVEncoding(c.Query("encoding"))
	if err != nil {
		h.fail(c, "monthly-csv", err)
		return
	}
	lang, err := ParseLang(c.Query("lang"), enc.DefaultLang())
	if err != nil {
		h.fail(c, "monthly-csv", err)
		return
	}

	// 途中で失敗したときに壊れた CSV を返さないようバッファしてから書く
	var buf bytes.Buffer
	if err := h.svc.ExportMonthCSV(c.Request.Context(), &buf, emp, year, month, enc, lang); err != nil {
		h.fail(c, "monthly-csv", err)
		return
	}
	ct := "text/csv; charset=utf-8"
	if enc == EncodingShiftJIS {
		ct = "text/csv; charset=Shift_JIS"
	}
	c.Header("Content-Disposition", attachment(emp, year, month, "csv"))
	c.Data(http.StatusOK, ct, buf.Bytes())
}

// GET /attendance/monthly.xlsx?year=&month=[&lang=en]
func (h *Handler) MonthlyXLSX(c *gin.Context) {
	emp, year, month, ok := h.monthInput(c)
	if !ok {
		return
	}
	lang, err := ParseLang(c.Query("lang"), LangJA)
	if err != nil {
		h.fail(c, "monthly-xlsx", err)
		return
	}

	var buf bytes.Buffer
	if err := h.svc.ExportMonthXLSX(c.Request.Context(), &buf, emp, year, month, lang); err != nil {
		h.fail(c, "monthly-xlsx", err)
		return
	}
	c.Header("Content-Disposition", attachment(emp, year, month, "xlsx"))
	c.Data(http.StatusOK, XLSXContentType, buf.Bytes())
}

// POST /attendance/days（admin のみ）
func (h *Handler) MarkDay(c *gin.Context) {
	if !isAdmin(c) {
		c.JSON(http.StatusForbidden, errorBody(CodeForbidden, "admin role required"))
		return
	}
	var req MarkDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	st, err := ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, err.Error()))
		return
	}
	rec, err := h.svc.MarkDay(c.Request.Context(), req.EmployeeID, req.Date, st)
	if err != nil {
		h.fail(c, "mark-day", err)
		return
	}
	c.JSON(http.StatusOK, rec.toDTO())
}

// ---------- helpers ----------

func (h *Handler) punchInput(c *gin.Context) (string, civiltime.Time, bool) {
	emp, ok := currentEmployee(c)
	if !ok {
		return "", civiltime.Time{}, false
	}
	var req PunchRequest
	// body 無しは「今」で打刻
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
			return "", civiltime.Time{}, false
		}
	}
	at, err := h.parseAt(req.At)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return "", civiltime.Time{}, false
	}
	return emp, at, true
}

func (h *Handler) parseAt(v *string) (civiltime.Time, error) {
	if v == nil || *v == "" {
		return h.svc.Normalizer().Now(), nil
	}
	at, err := h.svc.Normalizer().Parse(*v)
	if err != nil {
		return civiltime.Time{}, inputErr(CodeInvalidInstant, "at must be RFC3339")
	}
	return at, nil
}

// monthInput: 他人の月次は admin のみ
func (h *Handler) monthInput(c *gin.Context) (string, int, int, bool) {
	emp, ok := currentEmployee(c)
	if !ok {
		return "", 0, 0, false
	}
	if raw := c.Query("employee_id"); raw != "" {
		other, err := NormalizeEmployeeID(raw)
		if err != nil {
			h.fail(c, "month", err)
			return "", 0, 0, false
		}
		self, _ := NormalizeEmployeeID(emp)
		if other != self && !isAdmin(c) {
			c.JSON(http.StatusForbidden, errorBody(CodeForbidden, "cannot view other employees"))
			return "", 0, 0, false
		}
		emp = other
	}

	now := h.svc.Normalizer().Now().Instant()
	year, err := parseIntDefault(c.Query("year"), now.Year())
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "year must be an integer"))
		return "", 0, 0, false
	}
	month, err := parseIntDefault(c.Query("month"), int(now.Month()))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "month must be an integer"))
		return "", 0, 0, false
	}
	return emp, year, month, true
}

func currentEmployee(c *gin.Context) (string, bool) {
	v, ok := c.Get(auth.CtxUserIDKey)
	emp, _ := v.(string)
	if !ok || emp == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(CodeUnauthenticated, "missing employee identity"))
		return "", false
	}
	return emp, true
}

func isAdmin(c *gin.Context) bool {
	v, _ := c.Get(auth.CtxRoleKey)
	role, _ := v.(string)
	return role == auth.RoleAdmin
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	status := toHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[ERROR] attendance %s req=%s: %v", op, httpx.RequestIDFrom(c), err)
	}
	c.JSON(status, errorFromErr(err))
}

func attachment(emp string, year, month int, ext string) string {
	return fmt.Sprintf(`attachment; filename="attendance-%s-%04d-%02d.%s"`, emp, year, month, ext)
}

// parseIntDefault: 空なら d、数値でなければエラー
func parseIntDefault(s string, d int) (int, error) {
	if s == "" {
		return d, nil
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// 内部エラーの詳細（原因）はレスポンスに出さない
func errorFromErr(err error) errorDTO {
	var de *DomainError
	if errors.As(err, &de) {
		return errorBody(de.Code, de.Message)
	}
	return errorBody(CodeInternal, "internal error")
}
