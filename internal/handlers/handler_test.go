package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Keoroanthony/orderflow/internal/auth"
	"github.com/Keoroanthony/orderflow/internal/cart"
	"github.com/Keoroanthony/orderflow/internal/catalog"
	"github.com/Keoroanthony/orderflow/internal/db"
	"github.com/Keoroanthony/orderflow/internal/events"
	"github.com/Keoroanthony/orderflow/internal/handlers"
	"github.com/Keoroanthony/orderflow/internal/middleware"
	"github.com/Keoroanthony/orderflow/internal/models"
	"github.com/Keoroanthony/orderflow/internal/orders"
	"github.com/Keoroanthony/orderflow/internal/receipts"
)

const testSecret = "test-secret-key"

type testApp struct {
	router     *gin.Engine
	db         *gorm.DB
	orders     *orders.Service
	receiptDir string
	imageDir   string
}

func setupTestRouter(t *testing.T, limiter *middleware.RateLimiter) *testApp {
	gin.SetMode(gin.TestMode)

	testDB := db.NewTestDB(t)
	repo := catalog.NewRepository(testDB)
	carts := cart.NewService(cart.NewMemoryStore(), repo)
	orderSvc := orders.NewService(testDB, carts, events.NopPublisher{}, nil)
	dir := filepath.Join(t.TempDir(), "uploads")
	imageDir := filepath.Join(dir, "products")

	h := &handlers.Handler{
		Catalog:     repo,
		Carts:       carts,
		Orders:      orderSvc,
		Users:       auth.NewService(testDB),
		Receipts:    receipts.NewStore(dir),
		Images:      receipts.NewStore(imageDir),
		AuthLimiter: limiter,
	}

	return &testApp{router: handlers.NewRouter(h, testSecret), db: testDB, orders: orderSvc, receiptDir: dir, imageDir: imageDir}
}

func (a *testApp) seedUser(t *testing.T, username string, admin bool) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	u := models.User{Username: username, PasswordHash: string(hash), IsAdmin: admin}
	require.NoError(t, a.db.Create(&u).Error)
	return u
}

// sessionCookies forges the cookie a logged-in browser would send.
func sessionCookies(userID uint, cartToken string) []*http.Cookie {
	tempW := httptest.NewRecorder()
	tempC, _ := gin.CreateTestContext(tempW)
	tempC.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	sessions.Sessions(auth.SessionName, cookie.NewStore([]byte(testSecret)))(tempC)

	session := sessions.Default(tempC)
	session.Set("user_id", userID)
	session.Set("cart_token", cartToken)
	session.Save()

	return tempW.Result().Cookies()
}

func perform(router *gin.Engine, method, path string, body io.Reader, contentType string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func postForm(router *gin.Engine, path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	return perform(router, http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", cookies)
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	return multipartFile(t, fields, "receipt", fileName, content)
}

func multipartFile(t *testing.T, fields map[string]string, field, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile(field, fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), v), recorder.Body.String())
}

func TestHealth(t *testing.T) {
	app := setupTestRouter(t, nil)
	recorder := perform(app.router, http.MethodGet, "/health", nil, "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"status":"ok"`)
}
