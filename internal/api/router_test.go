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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"progitek/server/internal/models"
)

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["database"])
	assert.Equal(t, "test", body["version"])

	metrics := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, metrics.Code)
}

func TestLoginSetsCookieAndMe(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "commercial@progitek.test", "password": "nope"})
	env := decode(t, w, http.StatusUnauthorized, nil)
	assert.False(t, env.Success)

	w = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "commercial@progitek.test", "password": testPassword})
	var login LoginResponse
	decode(t, w, http.StatusOK, &login)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, models.RoleCommercial, login.User.Role)
	assert.NotEmpty(t, login.Capabilities)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == tokenCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	s.router.ServeHTTP(me, req)
	var data struct {
		User models.User `json:"user"`
	}
	decode(t, me, http.StatusOK, &data)
	assert.Equal(t, "commercial@progitek.test", data.User.Email)

	w = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "x"})
	decode(t, w, http.StatusBadRequest, nil)
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	s := newTestServer(t)

	decode(t, s.do(http.MethodGet, "/api/v1/devis", "", nil), http.StatusUnauthorized, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devis", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// query tokens are only honoured on websocket handshakes
	w = s.do(http.MethodGet, "/api/v1/devis?token="+s.tokens[models.RoleAdmin], "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQuoteToInvoiceOverHTTP(t *testing.T) {
	s := newTestServer(t)

	var q models.Quote
	decode(t, s.do(http.MethodPost, "/api/v1/devis", models.RoleCommercial, scenarioQuote(s.clientID)), http.StatusCreated, &q)
	assert.Equal(t, fmt.Sprintf("DEV-%d-0001", time.Now().Year()), q.Number)
	assert.Equal(t, models.QuoteStatusDraft, q.Status)
	assert.Equal(t, 250.0, q.AmountHT)
	assert.Equal(t, 45.0, q.AmountTVA)
	assert.Equal(t, 295.0, q.AmountTTC)
	require.Len(t, q.Lines, 2)

	path := fmt.Sprintf("/api/v1/devis/%d", q.ID)
	decode(t, s.do(http.MethodPost, path+"/submit", models.RoleCommercial, nil), http.StatusOK, &q)
	assert.Equal(t, models.QuoteStatusSent, q.Status)

	decode(t, s.do(http.MethodPost, path+"/validate", models.RoleCommercial, gin.H{"approve": true}), http.StatusForbidden, nil)

	decode(t, s.do(http.MethodPost, path+"/validate", models.RoleDG, gin.H{"approve": true, "comment": "OK"}), http.StatusOK, &q)
	assert.Equal(t, models.QuoteStatusApprovedDG, q.Status)

	decode(t, s.do(http.MethodPost, path+"/client-response", models.RoleCommercial, gin.H{"accept": true}), http.StatusOK, &q)
	assert.Equal(t, models.QuoteStatusAcceptedClient, q.Status)

	var inv models.Invoice
	decode(t, s.do(http.MethodPost, path+"/facture", models.RoleComptable, gin.H{"due_date": time.Now().AddDate(0, 1, 0).Format("2006-01-02")}), http.StatusCreated, &inv)
	assert.Equal(t, fmt.Sprintf("FAC-%d-0001", time.Now().Year()), inv.Number)
	assert.Equal(t, q.ID, inv.QuoteID)
	assert.Equal(t, 295.0, inv.AmountTTC)

	env := decode(t, s.do(http.MethodPost, path+"/facture", models.RoleComptable, nil), http.StatusConflict, nil)
	assert.False(t, env.Success)

	decode(t, s.do(http.MethodGet, path, models.RoleTechnicien, nil), http.StatusOK, &q)
	assert.Equal(t, models.QuoteStatusInvoiced, q.Status)
	require.NotNil(t, q.InvoiceID)
	assert.Equal(t, inv.ID, *q.InvoiceID)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	decode(t, s.do(http.MethodGet, "/api/v1/devis/9999", models.RoleAdmin, nil), http.StatusNotFound, nil)
	decode(t, s.do(http.MethodGet, "/api/v1/devis/abc", models.RoleAdmin, nil), http.StatusBadRequest, nil)

	noLines := gin.H{"client_id": s.clientID, "title": "Vide"}
	decode(t, s.do(http.MethodPost, "/api/v1/devis", models.RoleCommercial, noLines), http.StatusBadRequest, nil)

	badLine := scenarioQuote(s.clientID)
	badLine["lines"] = []gin.H{{"designation": "x", "quantity": -1, "unit_price": 10}}
	decode(t, s.do(http.MethodPost, "/api/v1/devis", models.RoleCommercial, badLine), http.StatusBadRequest, nil)

	var q models.Quote
	decode(t, s.do(http.MethodPost, "/api/v1/devis", models.RoleCommercial, scenarioQuote(s.clientID)), http.StatusCreated, &q)
	path := fmt.Sprintf("/api/v1/devis/%d", q.ID)

	// DG validation on a draft is an invalid transition, not a permission problem
	decode(t, s.do(http.MethodPost, path+"/validate", models.RoleDG, gin.H{"approve": true}), http.StatusBadRequest, nil)
	decode(t, s.do(http.MethodPost, path+"/validate", models.RoleDG, gin.H{"comment": "missing approve"}), http.StatusBadRequest, nil)
	decode(t, s.do(http.MethodPost, path+"/facture", models.RoleComptable, nil), http.StatusBadRequest, nil)

	decode(t, s.do(http.MethodPost, path+"/submit", models.RoleCommercial, nil), http.StatusOK, nil)
	decode(t, s.do(http.MethodPost, path+"/submit", models.RoleCommercial, nil), http.StatusBadRequest, nil)
	decode(t, s.do(http.MethodPut, path, models.RoleCommercial, scenarioQuote(s.clientID)), http.StatusBadRequest, nil)
	decode(t, s.do(http.MethodDelete, path, models.RoleCommercial, nil), http.StatusBadRequest, nil)
}

func TestCapabilityProtectedRoutes(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/users", "/api/v1/audit-logs", "/api/v1/reports/dashboard"} {
		env := decode(t, s.do(http.MethodGet, path, models.RoleTechnicien, nil), http.StatusForbidden, nil)
		assert.Contains(t, env.Message, "Accès refusé", path)
		decode(t, s.do(http.MethodGet, path, models.RoleAdmin, nil), http.StatusOK, nil)
	}

	decode(t, s.do(http.MethodGet, "/api/v1/reports/dashboard", models.RoleComptable, nil), http.StatusOK, nil)
	decode(t, s.do(http.MethodGet, "/api/v1/audit-logs", models.RoleDG, nil), http.StatusOK, nil)

	var techs []models.User
	decode(t, s.do(http.MethodGet, "/api/v1/technicians", models.RoleCommercial, nil), http.StatusOK, &techs)
	require.Len(t, techs, 1)
	assert.Equal(t, models.RoleTechnicien, techs[0].Role)
}

func TestInvoicePaymentOverHTTP(t *testing.T) {
	s := newTestServer(t)
	q := s.acceptedQuote()

	var inv models.Invoice
	decode(t, s.do(http.MethodPost, fmt.Sprintf("/api/v1/devis/%d/facture", q.ID), models.RoleComptable, nil), http.StatusCreated, &inv)
	path := fmt.Sprintf("/api/v1/factures/%d", inv.ID)

	decode(t, s.do(http.MethodPost, path+"/status", models.RoleComptable, gin.H{"status": "envoyee"}), http.StatusOK, &inv)
	assert.Equal(t, models.InvoiceStatusSent, inv.Status)

	decode(t, s.do(http.MethodPost, path+"/pay", models.RoleCommercial, gin.H{"payment_method": "virement"}), http.StatusForbidden, nil)
	decode(t, s.do(http.MethodPost, path+"/pay", models.RoleComptable, gin.H{"payment_method": "bitcoin"}), http.StatusBadRequest, nil)

	decode(t, s.do(http.MethodPost, path+"/pay", models.RoleComptable, gin.H{"payment_method": "virement", "transaction_ref": "VIR-001"}), http.StatusOK, &inv)
	assert.Equal(t, models.InvoiceStatusPaid, inv.Status)
	assert.NotNil(t, inv.PaidAt)

	decode(t, s.do(http.MethodPut, path, models.RoleComptable, gin.H{"transaction_ref": "changed"}), http.StatusBadRequest, nil)
	decode(t, s.do(http.MethodPost, path+"/status", models.RoleComptable, gin.H{"status": "annulee"}), http.StatusBadRequest, nil)

	var page struct {
		Items []models.Invoice `json:"items"`
		Total int64            `json:"total"`
	}
	decode(t, s.do(http.MethodGet, "/api/v1/factures?status=payee", models.RoleComptable, nil), http.StatusOK, &page)
	assert.EqualValues(t, 1, page.Total)
	decode(t, s.do(http.MethodGet, "/api/v1/factures?status=bogus", models.RoleComptable, nil), http.StatusBadRequest, nil)
}

func TestInvoiceExportDownload(t *testing.T) {
	s := newTestServer(t)
	q := s.acceptedQuote()
	decode(t, s.do(http.MethodPost, fmt.Sprintf("/api/v1/devis/%d/facture", q.ID), models.RoleComptable, nil), http.StatusCreated, nil)

	w := s.do(http.MethodGet, "/api/v1/reports/factures.xlsx", models.RoleComptable, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "factures-")
	assert.Equal(t, "1", w.Header().Get("X-Total-Count"))

	book, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Factures")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestNotificationEndpoints(t *testing.T) {
	s := newTestServer(t)

	var q models.Quote
	decode(t, s.do(http.MethodPost, "/api/v1/devis", models.RoleCommercial, scenarioQuote(s.clientID)), http.StatusCreated, &q)
	decode(t, s.do(http.MethodPost, fmt.Sprintf("/api/v1/devis/%d/submit", q.ID), models.RoleCommercial, nil), http.StatusOK, nil)

	var list struct {
		Items  []models.Notification `json:"items"`
		Unread int64                 `json:"unread"`
	}
	decode(t, s.do(http.MethodGet, "/api/v1/notifications", models.RoleDG, nil), http.StatusOK, &list)
	require.Len(t, list.Items, 1)
	assert.EqualValues(t, 1, list.Unread)
	assert.Equal(t, models.NotificationQuoteSubmitted, list.Items[0].Type)

	// another user's notification is invisible
	decode(t, s.do(http.MethodPost, fmt.Sprintf("/api/v1/notifications/%d/read", list.Items[0].ID), models.RoleComptable, nil), http.StatusNotFound, nil)

	decode(t, s.do(http.MethodPost, fmt.Sprintf("/api/v1/notifications/%d/read", list.Items[0].ID), models.RoleDG, nil), http.StatusOK, nil)
	decode(t, s.do(http.MethodGet, "/api/v1/notifications?unread=1", models.RoleDG, nil), http.StatusOK, &list)
	assert.Empty(t, list.Items)
	assert.Zero(t, list.Unread)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devis", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.True(t, strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "PUT"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/devis", nil)
	req.Header.Set("Origin", "http://attacker.example")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSOriginPolicies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	call := func(origins, origin string) http.Header {
		r := gin.New()
		r.Use(CORS(origins))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Header()
	}

	// no configured origin: same-origin only
	h := call("", "http://app.example")
	assert.Empty(t, h.Get("Access-Control-Allow-Origin"))

	// wildcard never grants credentials
	h = call("*", "http://app.example")
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, h.Get("Access-Control-Allow-Credentials"))

	h = call("http://a.example, http://b.example/", "http://b.example")
	assert.Equal(t, "http://b.example", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", h.Get("Access-Control-Allow-Credentials"))

	h = call("http://a.example", "http://sub.a.example")
	assert.Empty(t, h.Get("Access-Control-Allow-Origin"))
}

func TestMessagingOverHTTP(t *testing.T) {
	s := newTestServer(t)
	tech := s.users[models.RoleTechnicien]

	var msg models.Message
	decode(t, s.do(http.MethodPost, "/api/v1/messages", models.RoleCommercial, gin.H{
		"recipient_id": tech.ID,
		"subject":      "Chantier",
		"body":         "Rendez-vous à 8h",
	}), http.StatusCreated, &msg)
	assert.Equal(t, s.users[models.RoleCommercial].ID, msg.SenderID)

	decode(t, s.do(http.MethodPost, "/api/v1/messages", models.RoleCommercial, gin.H{"recipient_id": tech.ID, "body": ""}), http.StatusBadRequest, nil)

	var inbox struct {
		Items  []models.Message `json:"items"`
		Total  int64            `json:"total"`
		Unread int64            `json:"unread"`
	}
	decode(t, s.do(http.MethodGet, "/api/v1/messages", models.RoleTechnicien, nil), http.StatusOK, &inbox)
	require.Len(t, inbox.Items, 1)
	assert.EqualValues(t, 1, inbox.Unread)

	decode(t, s.do(http.MethodGet, "/api/v1/messages?box=sent", models.RoleCommercial, nil), http.StatusOK, &inbox)
	require.Len(t, inbox.Items, 1)
	assert.Zero(t, inbox.Unread)

	path := fmt.Sprintf("/api/v1/messages/%d", msg.ID)
	decode(t, s.do(http.MethodGet, path, models.RoleComptable, nil), http.StatusNotFound, nil)
	decode(t, s.do(http.MethodPost, path+"/read", models.RoleCommercial, nil), http.StatusForbidden, nil)
	decode(t, s.do(http.MethodPost, path+"/read", models.RoleTechnicien, nil), http.StatusOK, &msg)
	assert.True(t, msg.IsRead)

	var notes struct {
		Items []models.Notification `json:"items"`
	}
	decode(t, s.do(http.MethodGet, "/api/v1/notifications", models.RoleTechnicien, nil), http.StatusOK, &notes)
	require.Len(t, notes.Items, 1)
	assert.Equal(t, models.NotificationMessage, notes.Items[0].Type)
}

func TestDocumentsOverHTTP(t *testing.T) {
	s := newTestServer(t)

	var doc models.Document
	decode(t, s.do(http.MethodPost, "/api/v1/documents", models.RoleTechnicien, gin.H{
		"entity_type": "client",
		"entity_id":   s.clientID,
		"category":    "contrat",
		"file_name":   "contrat.pdf",
		"storage_url": "https://files.progitek.test/contrat.pdf",
		"mime_type":   "application/pdf",
		"size_bytes":  1024,
	}), http.StatusCreated, &doc)
	assert.Equal(t, models.DocumentContract, doc.Category)

	decode(t, s.do(http.MethodPost, "/api/v1/documents", models.RoleTechnicien, gin.H{
		"entity_type": "client",
		"entity_id":   s.clientID,
		"file_name":   "x.pdf",
		"storage_url": "ftp://files/x.pdf",
	}), http.StatusBadRequest, nil)

	var docs []models.Document
	decode(t, s.do(http.MethodGet, fmt.Sprintf("/api/v1/documents?entity_type=client&entity_id=%d", s.clientID), models.RoleComptable, nil), http.StatusOK, &docs)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)

	decode(t, s.do(http.MethodGet, "/api/v1/documents?entity_type=user&entity_id=1", models.RoleComptable, nil), http.StatusBadRequest, nil)

	path := fmt.Sprintf("/api/v1/documents/%d", doc.ID)
	decode(t, s.do(http.MethodDelete, path, models.RoleComptable, nil), http.StatusForbidden, nil)
	decode(t, s.do(http.MethodDelete, path, models.RoleTechnicien, nil), http.StatusOK, nil)
	decode(t, s.do(http.MethodGet, path, models.RoleTechnicien, nil), http.StatusNotFound, nil)
}
