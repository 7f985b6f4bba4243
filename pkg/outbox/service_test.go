package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/pkg/db/dbtest"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
)

func TestEmitStoresEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	ctx := context.Background()

	orderID, buyerID := uuid.New(), uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			RecipientID:   buyerID,
			Data:          map[string]any{"order_id": orderID},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, buyerID, envelope.RecipientID)
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.JSONEq(t, `{"order_id":"`+orderID.String()+`"}`, string(envelope.Data))
}

func TestEmitValidation(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	ctx := context.Background()

	require.Error(t, svc.Emit(ctx, nil, DomainEvent{EventType: enums.EventOrderCreated, RecipientID: uuid.New()}))
	require.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: "nope", RecipientID: uuid.New()}))
	require.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: enums.EventOrderCreated}))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	events := make([]DomainEvent, 0, 3)
	for i := 0; i < 3; i++ {
		events = append(events, DomainEvent{
			EventType:     enums.EventPaymentConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			RecipientID:   uuid.New(),
			Data:          map[string]any{"i": i},
		})
	}
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return svc.EmitAll(ctx, tx, events...)
	}))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New("boom")))
	require.NoError(t, repo.MarkTerminalTx(conn, rows[2].ID, errors.New("bad payload"), 3))

	remaining, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, rows[1].ID, remaining[0].ID)
	require.Equal(t, 1, remaining[0].AttemptCount)
	require.NotNil(t, remaining[0].LastError)
	require.Equal(t, "boom", *remaining[0].LastError)
}

func TestDLQRepositoryInsert(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	ctx := context.Background()

	eventID := uuid.New()
	long := strings.Repeat("x", maxLastErrorLen+10)
	require.NoError(t, repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
	}))

	entry, err := repo.FindByEventID(ctx, eventID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Len(t, *entry.ErrorMessage, maxLastErrorLen)

	missing, err := repo.FindByEventID(ctx, uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)
}
