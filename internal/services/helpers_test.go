package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"progitek/server/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection: transactions serialize and the memory database lives as long as the pool
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

type recordingPusher struct {
	mu       sync.Mutex
	messages map[uint][][]byte
}

func newRecordingPusher() *recordingPusher {
	return &recordingPusher{messages: make(map[uint][][]byte)}
}

func (p *recordingPusher) SendToUser(userID uint, message []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[userID] = append(p.messages[userID], message)
}

func (p *recordingPusher) count(userID uint) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages[userID])
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	pusher    *recordingPusher
	events    *recordingPublisher
	audit     *AuditService
	notifier  *NotificationService
	quotes    *QuoteService
	invoices  *InvoiceService
	clients   *ClientService
	missions  *MissionService
	users     *UserService
	reports   *ReportService
	messages  *MessageService
	documents *DocumentService
	admin     Actor
	dg        Actor
	sales     Actor
	comptable Actor
	tech      Actor
	client    models.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)

	f := &fixture{db: db, pusher: newRecordingPusher(), events: &recordingPublisher{}}
	f.audit = NewAuditService(db)
	f.notifier = NewNotificationService(db, f.pusher, nil, nil)
	numbering := NewNumberingService()
	f.quotes = NewQuoteService(db, numbering, f.audit, f.notifier, f.events)
	f.invoices = NewInvoiceService(db, numbering, f.audit, f.notifier, f.events)
	f.clients = NewClientService(db, f.audit)
	f.missions = NewMissionService(db, f.audit, f.notifier)
	f.users = NewUserService(db, f.audit, nil)
	f.reports = NewReportService(db, nil, f.invoices)
	f.messages = NewMessageService(db, f.audit, f.notifier)
	f.documents = NewDocumentService(db, f.audit, f.notifier)

	f.admin = f.seedUser(t, "admin@progitek.test", models.RoleAdmin)
	f.dg = f.seedUser(t, "dg@progitek.test", models.RoleDG)
	f.sales = f.seedUser(t, "sales@progitek.test", models.RoleCommercial)
	f.comptable = f.seedUser(t, "compta@progitek.test", models.RoleComptable)
	f.tech = f.seedUser(t, "tech@progitek.test", models.RoleTechnicien)

	f.client = models.Client{Name: "Acme SARL", Email: "contact@acme.test", IsActive: true}
	require.NoError(t, db.Create(&f.client).Error)
	return f
}

func (f *fixture) seedUser(t *testing.T, email string, role models.UserRole) Actor {
	t.Helper()
	u := models.User{Email: email, Name: string(role), PasswordHash: "x", Role: role, IsActive: true}
	require.NoError(t, f.db.Create(&u).Error)
	return Actor{UserID: u.ID, Email: u.Email, Role: role, IP: "127.0.0.1"}
}

func ptr[T any](v T) *T {
	return &v
}
