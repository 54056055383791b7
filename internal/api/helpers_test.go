package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"progitek/server/internal/models"
	"progitek/server/internal/services"
)

const testPassword = "password123"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t        *testing.T
	db       *gorm.DB
	router   *gin.Engine
	hub      *Hub
	auth     *services.AuthService
	users    map[models.UserRole]models.User
	tokens   map[models.UserRole]string
	clientID uint
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	hub := NewHub()
	audit := services.NewAuditService(db)
	notifications := services.NewNotificationService(db, hub, nil, nil)
	numbering := services.NewNumberingService()
	events := services.NopPublisher{}
	invoices := services.NewInvoiceService(db, numbering, audit, notifications, events)
	users := services.NewUserService(db, audit, nil)
	auth := services.NewAuthService(db, audit, "test-secret", time.Hour)

	s := &testServer{
		t:      t,
		db:     db,
		hub:    hub,
		auth:   auth,
		users:  make(map[models.UserRole]models.User),
		tokens: make(map[models.UserRole]string),
	}
	s.router = NewRouter(Deps{
		DB:            db,
		Auth:          auth,
		Users:         users,
		Clients:       services.NewClientService(db, audit),
		Missions:      services.NewMissionService(db, audit, notifications),
		Quotes:        services.NewQuoteService(db, numbering, audit, notifications, events),
		Invoices:      invoices,
		Audit:         audit,
		Notifications: notifications,
		Reports:       services.NewReportService(db, nil, invoices),
		Messages:      services.NewMessageService(db, audit, notifications),
		Documents:     services.NewDocumentService(db, audit, notifications),
		Hub:           hub,
		CORSOrigin:    "http://localhost:3000",
		Version:       "test",
	})

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	for _, role := range []models.UserRole{models.RoleAdmin, models.RoleDG, models.RoleCommercial, models.RoleComptable, models.RoleTechnicien} {
		u := models.User{
			Email:        string(role) + "@progitek.test",
			Name:         strings.ToUpper(string(role)),
			PasswordHash: string(hash),
			Role:         role,
			IsActive:     true,
		}
		require.NoError(t, db.Create(&u).Error)
		token, err := auth.IssueToken(&u)
		require.NoError(t, err)
		s.users[role] = u
		s.tokens[role] = token
	}

	client := models.Client{Name: "Acme SARL", IsActive: true}
	require.NoError(t, db.Create(&client).Error)
	s.clientID = client.ID
	return s
}

// do sends a JSON request as role. An empty role sends no credentials.
func (s *testServer) do(method, path string, role models.UserRole, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[role])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// decode checks the status and unmarshals data into dst (when not nil).
func decode(t *testing.T, w *httptest.ResponseRecorder, status int, dst interface{}) envelope {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if dst != nil {
		require.NoError(t, json.Unmarshal(env.Data, dst))
	}
	return env
}

func scenarioQuote(clientID uint) gin.H {
	return gin.H{
		"client_id": clientID,
		"title":     "Installation réseau",
		"tax_rate":  18,
		"lines": []gin.H{
			{"designation": "Install", "quantity": 2, "unit_price": 100},
			{"designation": "Config", "quantity": 1, "unit_price": 50},
		},
	}
}

// acceptedQuote drives a new quote to accepte_client over HTTP.
func (s *testServer) acceptedQuote() models.Quote {
	s.t.Helper()
	var q models.Quote
	decode(s.t, s.do(http.MethodPost, "/api/v1/devis", models.RoleCommercial, scenarioQuote(s.clientID)), http.StatusCreated, &q)
	path := fmt.Sprintf("/api/v1/devis/%d", q.ID)
	decode(s.t, s.do(http.MethodPost, path+"/submit", models.RoleCommercial, nil), http.StatusOK, nil)
	decode(s.t, s.do(http.MethodPost, path+"/validate", models.RoleDG, gin.H{"approve": true}), http.StatusOK, nil)
	decode(s.t, s.do(http.MethodPost, path+"/client-response", models.RoleCommercial, gin.H{"accept": true}), http.StatusOK, &q)
	return q
}
