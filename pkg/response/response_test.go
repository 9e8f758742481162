package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	h(c)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestEnvelope(t *testing.T) {
	w, body := run(t, func(c *gin.Context) { Success(c, gin.H{"total_points": 120}) })
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, CodeSuccess, body.Code)
	require.Equal(t, float64(120), body.Data.(map[string]interface{})["total_points"])

	w, body = run(t, func(c *gin.Context) { Conflict(c, CodeAlreadyClaimed, "already claimed") })
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, CodeAlreadyClaimed, body.Code)
	require.Nil(t, body.Data)

	w, body = run(t, func(c *gin.Context) { Unavailable(c, "storage unavailable") })
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, CodeUnavailable, body.Code)

	w, _ = run(t, func(c *gin.Context) { BusinessError(c, CodeInsufficientPoints, "insufficient points") })
	require.Equal(t, http.StatusBadRequest, w.Code)
}
