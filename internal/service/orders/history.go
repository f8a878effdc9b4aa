package orders

import (
	"context"
	"log/slog"

	"fsanano/storefront/internal/model"
)

const (
	MsgLoadFailed   = "Failed to load orders"
	MsgAuthRequired = "Please log in to view your orders"

	dateLayout = "Jan 2, 2006"
)

type API interface {
	ListOrders(ctx context.Context) (*model.OrderPage, error)
}

type Entry struct {
	model.Order
	StatusLabel string `json:"status_label"`
	Placed      string `json:"placed"`
}

type View struct {
	Orders []Entry `json:"orders"`
	Error  string  `json:"error,omitempty"`
}

type History struct {
	api    API
	logger *slog.Logger
}

func NewHistory(api API, logger *slog.Logger) *History {
	return &History{api: api, logger: logger}
}

// Load fetches the signed-in user's orders. Without a user nothing is
// requested.
func (h *History) Load(ctx context.Context, user *model.User) View {
	if user == nil {
		return View{Orders: []Entry{}, Error: MsgAuthRequired}
	}

	page, err := h.api.ListOrders(ctx)
	if err != nil {
		h.logger.Error("failed to load orders", slog.Int("user_id", user.ID), slog.String("error", err.Error()))
		return View{Orders: []Entry{}, Error: MsgLoadFailed}
	}

	entries := make([]Entry, 0, len(page.Results))
	for _, o := range page.Results {
		if !o.Status.Valid() {
			h.logger.Warn("unknown order status", slog.Int("order_id", o.ID), slog.String("status", string(o.Status)))
		}
		entries = append(entries, Entry{
			Order:       o,
			StatusLabel: o.Status.Label(),
			Placed:      o.CreatedAt.Format(dateLayout),
		})
	}
	return View{Orders: entries}
}
