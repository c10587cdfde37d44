package handler

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/core/service"
)

// sessionSlot carries the librarian resolved by the gate or AuthUnary back up
// to the logging layer, which wraps them and never sees their context.
type sessionSlot struct {
	librarianID int64
}

type sessionSlotKey struct{}

func withSessionSlot(ctx context.Context) (context.Context, *sessionSlot) {
	slot := &sessionSlot{}
	return context.WithValue(ctx, sessionSlotKey{}, slot), slot
}

func withSession(ctx context.Context, s domain.Session) context.Context {
	if slot, ok := ctx.Value(sessionSlotKey{}).(*sessionSlot); ok {
		slot.librarianID = s.Librarian
	}
	return service.ContextWithSession(ctx, s)
}

func (s *sessionSlot) fields() []zap.Field {
	if s.librarianID == 0 {
		return nil
	}
	return []zap.Field{zap.Int64("librarian_id", s.librarianID)}
}
