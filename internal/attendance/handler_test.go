package attendance

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"kintai-backend/internal/platform/auth"
)

type testAPI struct {
	r     *gin.Engine
	auth  *auth.Service
	clock *fixedClock
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, clock := newTestService(t, NewMemoryStore())
	authSvc := auth.NewService(auth.NewMemoryStore(), []byte("test-secret"), time.Hour)

	r := gin.New()
	api := r.Group("/api/v1", auth.RequireAuth(authSvc.Secret()))
	RegisterRoutes(api, svc)
	return &testAPI{r: r, auth: authSvc, clock: clock}
}

func (a *testAPI) do(t *testing.T, method, path, user, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		token, err := a.auth.IssueToken(user, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorDTO {
	t.Helper()
	var e errorDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestHandlerRequiresToken(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/attendance/check-in", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeUnauthenticated, decodeError(t, w).Error.Code)
}

func TestHandlerPunchFlow(t *testing.T) {
	a := newTestAPI(t)

	// body 無しはサーバ時刻（09:00 +05:00）
	w := a.do(t, http.MethodPost, "/api/v1/attendance/check-in", "E001", auth.RoleEmployee, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec RecordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, StatusPresent, rec.Status)
	require.NotNil(t, rec.CheckIn)
	assert.Equal(t, "09:00:00", *rec.CheckIn)

	w = a.do(t, http.MethodPost, "/api/v1/attendance/check-in", "E001", auth.RoleEmployee, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeAlreadyCheckedIn, decodeError(t, w).Error.Code)

	w = a.do(t, http.MethodPost, "/api/v1/attendance/breaks", "E001", auth.RoleEmployee,
		`{"kind":"meal","at":"2025-06-10T12:00:00+05:00"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	require.Len(t, rec.Breaks, 1)
	breakID := rec.Breaks[0].BreakID
	assert.Equal(t, "/attendance/breaks/"+breakID, w.Header().Get("Location"))
	assert.True(t, rec.Breaks[0].Open)

	w = a.do(t, http.MethodPost, "/api/v1/attendance/breaks/"+breakID+"/end", "E001", auth.RoleEmployee,
		`{"at":"2025-06-10T07:30:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, 30, rec.TotalBreakDurationMinutes)

	w = a.do(t, http.MethodPost, "/api/v1/attendance/check-out", "E001", auth.RoleEmployee,
		`{"at":"2025-06-10T18:00:00+05:00"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, StatusCheckedOut, rec.Status)
	assert.Equal(t, 510, rec.NetWorkingMinutes)
	assert.Equal(t, "8h 30m", rec.NetWorking)
}

func TestHandlerPunchValidation(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/attendance/check-in", "E001", auth.RoleEmployee, `{"at":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidInstant, decodeError(t, w).Error.Code)

	w = a.do(t, http.MethodPost, "/api/v1/attendance/check-out", "E001", auth.RoleEmployee, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeNotCheckedIn, decodeError(t, w).Error.Code)

	w = a.do(t, http.MethodPost, "/api/v1/attendance/breaks", "E001", auth.RoleEmployee, `{"kind":"nap"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidArgument, decodeError(t, w).Error.Code)

	w = a.do(t, http.MethodPost, "/api/v1/attendance/check-in", "E001", auth.RoleEmployee, "")
	require.Equal(t, http.StatusCreated, w.Code)
	w = a.do(t, http.MethodPost, "/api/v1/attendance/breaks/NOPE/end", "E001", auth.RoleEmployee, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeBreakNotFound, decodeError(t, w).Error.Code)
}

func TestHandlerStatus(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/api/v1/attendance/status", "E001", auth.RoleEmployee, "")
	require.Equal(t, http.StatusOK, w.Code)
	var st StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, StatusNotStarted, st.Record.Status)
	assert.False(t, st.OnBreak)

	a.do(t, http.MethodPost, "/api/v1/attendance/check-in", "E001", auth.RoleEmployee, "")
	a.clock.Set(time.Date(2025, 6, 10, 5, 30, 0, 0, time.UTC)) // 10:30

	w = a.do(t, http.MethodGet, "/api/v1/attendance/status", "E001", auth.RoleEmployee, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, StatusPresent, st.Record.Status)
	assert.Equal(t, 90, st.ElapsedMinutes)
	assert.Equal(t, "1h 30m", st.Elapsed)
}

func TestHandlerMonthly(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/api/v1/attendance/check-in", "E002", auth.RoleEmployee, "")

	w := a.do(t, http.MethodGet, "/api/v1/attendance/monthly?year=2025&month=6", "E002", auth.RoleEmployee, "")
	require.Equal(t, http.StatusOK, w.Code)
	var sum MonthSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.TotalRecords)
	assert.Equal(t, 100, sum.AttendanceRate)

	w = a.do(t, http.MethodGet, "/api/v1/attendance/monthly?employee_id=E002", "E001", auth.RoleEmployee, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/attendance/monthly?employee_id=E002", "boss", auth.RoleAdmin, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 6, sum.Month)
	assert.Equal(t, 1, sum.TotalRecords)

	w = a.do(t, http.MethodGet, "/api/v1/attendance/monthly?month=13", "E002", auth.RoleEmployee, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerMonthlyInputValidation(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/api/v1/attendance/check-in", "E002", auth.RoleEmployee, "")

	// 全角で書いた自分の社員番号は本人扱い
	w := a.do(t, http.MethodGet, "/api/v1/attendance/monthly?employee_id=%EF%BC%A5%EF%BC%90%EF%BC%90%EF%BC%92", "E002", auth.RoleEmployee, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sum MonthSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.TotalRecords)

	for _, q := range []string{"year=abc", "month=six", "year=2025&month=6x"} {
		w = a.do(t, http.MethodGet, "/api/v1/attendance/monthly?"+q, "E002", auth.RoleEmployee, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, CodeInvalidArgument, decodeError(t, w).Error.Code, q)
	}
}

func TestHandlerMonthlyCSV(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/api/v1/attendance/check-in", "E001", auth.RoleEmployee, "")

	w := a.do(t, http.MethodGet, "/api/v1/attendance/monthly.csv?year=2025&month=6", "E001", auth.RoleEmployee, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance-E001-2025-06.csv")
	assert.Contains(t, w.Body.String(), "2025-06-10,On Time,09:00:00,,0,0,0,0h 00m,0")

	w = a.do(t, http.MethodGet, "/api/v1/attendance/monthly.csv?encoding=ebcdic", "E001", auth.RoleEmployee, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerMarkDay(t *testing.T) {
	a := newTestAPI(t)
	body := `{"employee_id":"E001","date":"2025-06-12","status":"leave"}`

	w := a.do(t, http.MethodPost, "/api/v1/attendance/days", "E001", auth.RoleEmployee, body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, CodeForbidden, decodeError(t, w).Error.Code)

	w = a.do(t, http.MethodPost, "/api/v1/attendance/days", "boss", auth.RoleAdmin, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rec RecordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, StatusLeave, rec.Status)
	assert.Equal(t, "Leave", rec.StatusLabel)

	w = a.do(t, http.MethodPost, "/api/v1/attendance/days", "boss", auth.RoleAdmin,
		`{"employee_id":"E001","date":"2025-06-12","status":"late"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerMonthlyXLSX(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/api/v1/attendance/check-in", "E001", auth.RoleEmployee, "")

	w := a.do(t, http.MethodGet, "/api/v1/attendance/monthly.xlsx?year=2025&month=6&lang=en", "E001", auth.RoleEmployee, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, XLSXContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance-E001-2025-06.xlsx")

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Attendance", "Summary"}, f.GetSheetList())

	w = a.do(t, http.MethodGet, "/api/v1/attendance/monthly.xlsx?lang=de", "E001", auth.RoleEmployee, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
