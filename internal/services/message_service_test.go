package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"progitek/server/internal/models"
	"progitek/server/internal/workflow"
)

func TestSendMessageNotifiesRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.messages.Send(ctx, f.sales, MessageInput{
		RecipientID: f.tech.UserID,
		Subject:     " Chantier Acme ",
		Body:        "Merci de passer demain matin.",
	})
	require.NoError(t, err)
	assert.Equal(t, f.sales.UserID, msg.SenderID)
	assert.Equal(t, "Chantier Acme", msg.Subject)
	assert.False(t, msg.IsRead)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, f.sales.Email, msg.Sender.Email)

	notes, err := f.notifier.List(ctx, f.tech.UserID, true, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationMessage, notes[0].Type)
	assert.Equal(t, "Nouveau message : Chantier Acme", notes[0].Title)

	logs, err := f.audit.List(ctx, AuditFilter{EntityType: "message", EntityID: msg.ID})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inactive := models.User{Email: "old@progitek.test", Name: "old", PasswordHash: "x", Role: models.RoleTechnicien, IsActive: false}
	require.NoError(t, f.db.Create(&inactive).Error)
	require.NoError(t, f.db.Model(&inactive).Update("is_active", false).Error)

	cases := []struct {
		name string
		in   MessageInput
		want error
	}{
		{"empty body", MessageInput{RecipientID: f.tech.UserID, Body: "   "}, workflow.ErrValidation},
		{"no recipient", MessageInput{Body: "hello"}, workflow.ErrValidation},
		{"to self", MessageInput{RecipientID: f.sales.UserID, Body: "hello"}, workflow.ErrValidation},
		{"unknown recipient", MessageInput{RecipientID: 9999, Body: "hello"}, workflow.ErrNotFound},
		{"inactive recipient", MessageInput{RecipientID: inactive.ID, Body: "hello"}, workflow.ErrValidation},
		{"unknown mission", MessageInput{RecipientID: f.tech.UserID, MissionID: ptr(uint(4242)), Body: "hello"}, workflow.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.messages.Send(ctx, f.sales, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Message{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSendMessageAboutMission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mission, err := f.missions.Create(ctx, f.admin, MissionInput{ClientID: f.client.ID, Title: "Maintenance"})
	require.NoError(t, err)

	msg, err := f.messages.Send(ctx, f.admin, MessageInput{RecipientID: f.tech.UserID, MissionID: &mission.ID, Body: "Pièces livrées"})
	require.NoError(t, err)
	require.NotNil(t, msg.MissionID)
	assert.Equal(t, mission.ID, *msg.MissionID)
}

func TestInboxOutboxAndMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	readAt := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	f.messages.now = func() time.Time { return readAt }

	first, err := f.messages.Send(ctx, f.sales, MessageInput{RecipientID: f.tech.UserID, Body: "un"})
	require.NoError(t, err)
	_, err = f.messages.Send(ctx, f.dg, MessageInput{RecipientID: f.tech.UserID, Body: "deux"})
	require.NoError(t, err)

	inbox, total, err := f.messages.List(ctx, f.tech, MessageFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "deux", inbox[0].Body)

	sent, total, err := f.messages.List(ctx, f.sales, MessageFilter{Sent: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, first.ID, sent[0].ID)

	// only the recipient marks a message read
	_, err = f.messages.MarkRead(ctx, f.sales, first.ID)
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	read, err := f.messages.MarkRead(ctx, f.tech, first.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)
	assert.True(t, readAt.Equal(*read.ReadAt))

	f.messages.now = func() time.Time { return readAt.Add(time.Hour) }
	again, err := f.messages.MarkRead(ctx, f.tech, first.ID)
	require.NoError(t, err)
	assert.True(t, readAt.Equal(*again.ReadAt))

	unread, err := f.messages.UnreadCount(ctx, f.tech)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	onlyUnread, _, err := f.messages.List(ctx, f.tech, MessageFilter{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, onlyUnread, 1)
	assert.Equal(t, "deux", onlyUnread[0].Body)
}

func TestMessageHiddenFromOtherUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.messages.Send(ctx, f.sales, MessageInput{RecipientID: f.tech.UserID, Body: "privé"})
	require.NoError(t, err)

	_, err = f.messages.Get(ctx, f.comptable, msg.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = f.messages.MarkRead(ctx, f.admin, msg.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	got, err := f.messages.Get(ctx, f.sales, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "privé", got.Body)
}
