package channels

import (
	"context"

	"github.com/angelmondragon/webstore-backend/internal/checkout"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
)

// Log writes orders to the structured log. Used for local development.
type Log struct {
	logg *logger.Logger
}

func NewLog(logg *logger.Logger) *Log {
	return &Log{logg: logg}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Send(ctx context.Context, doc checkout.Document) (checkout.Receipt, error) {
	ctx = l.logg.WithFields(ctx, map[string]any{
		"order_id": doc.OrderID,
		"items":    len(doc.Snapshot.Items),
		"total":    doc.Snapshot.Total.StringFixed(2),
		"document": doc.Text,
	})
	l.logg.Info(ctx, "checkout.order_logged")
	return checkout.Receipt{Reference: doc.OrderID}, nil
}
