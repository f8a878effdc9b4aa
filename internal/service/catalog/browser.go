package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fsanano/storefront/internal/model"
	"fsanano/storefront/internal/service/storeapi"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

const (
	PageSize      = 12
	DebounceDelay = 500 * time.Millisecond

	MsgLoadFailed      = "Failed to load products"
	MsgProductNotFound = "Product not found"
)

// Categories offered by the category filter.
var Categories = []string{"Electronics", "Clothing", "Home", "Books", "Fitness"}

var (
	ErrUnknownFilter   = errors.New("unknown filter")
	ErrInvalidPrice    = errors.New("price must be a number")
	ErrProductNotFound = errors.New("product not found")
)

type Field string

const (
	FieldSearch   Field = "search"
	FieldCategory Field = "category"
	FieldMinPrice Field = "min_price"
	FieldMaxPrice Field = "max_price"
)

type API interface {
	ListProducts(ctx context.Context, q storeapi.ProductQuery) (*model.ProductPage, error)
	GetProduct(ctx context.Context, id int) (*model.Product, error)
}

type Filters struct {
	Search   string `json:"search"`
	Category string `json:"category"`
	MinPrice string `json:"min_price"`
	MaxPrice string `json:"max_price"`
}

func (f *Filters) ptr(field Field) *string {
	switch field {
	case FieldSearch:
		return &f.Search
	case FieldCategory:
		return &f.Category
	case FieldMinPrice:
		return &f.MinPrice
	case FieldMaxPrice:
		return &f.MaxPrice
	}
	return nil
}

// View is one render of the listing page.
type View struct {
	Filters    Filters  `json:"filters"`
	Applied    Filters  `json:"applied"`
	Categories []string `json:"categories"`
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
	Count      int      `json:"count"`
	Products   []Card   `json:"products"`
	Loading    bool     `json:"loading"`
	Searching  bool     `json:"searching"`
	Error      string   `json:"error,omitempty"`
}

// Browser is the product listing: what the user has typed into the filter
// inputs, what has been applied to the query, and the current page.
type Browser struct {
	api      API
	logger   *slog.Logger
	debounce *debouncer

	mu       sync.Mutex
	input    Filters
	applied  Filters
	page     int
	products []model.Product
	count    int
	loading  bool
	errMsg   string
	seq      uint64
}

func NewBrowser(api API, clock clockwork.Clock, logger *slog.Logger) *Browser {
	return &Browser{
		api:      api,
		logger:   logger,
		debounce: newDebouncer(clock, DebounceDelay),
		page:     1,
		products: []model.Product{},
	}
}

// SetFilter records a filter input. The value is applied to the query once
// that input has been quiet for DebounceDelay; inputs are debounced
// independently of each other.
func (b *Browser) SetFilter(ctx context.Context, field Field, value string) error {
	if err := validate(field, value); err != nil {
		return err
	}

	b.mu.Lock()
	*b.input.ptr(field) = value
	b.mu.Unlock()

	// the request that typed the value is gone by the time the timer fires
	detached := context.WithoutCancel(ctx)
	b.debounce.Trigger(string(field), func() {
		b.apply(detached, field)
	})
	return nil
}

// SetFilters records several inputs at once. Nothing is recorded unless
// every field and value is valid.
func (b *Browser) SetFilters(ctx context.Context, values map[Field]string) error {
	for field, value := range values {
		if err := validate(field, value); err != nil {
			return err
		}
	}
	for field, value := range values {
		if err := b.SetFilter(ctx, field, value); err != nil {
			return err
		}
	}
	return nil
}

func validate(field Field, value string) error {
	if (&Filters{}).ptr(field) == nil {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, field)
	}
	if (field == FieldMinPrice || field == FieldMaxPrice) && value != "" {
		if _, err := decimal.NewFromString(value); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidPrice, value)
		}
	}
	return nil
}

// apply moves one debounced input into the query. An unchanged value does
// not query again.
func (b *Browser) apply(ctx context.Context, field Field) {
	b.mu.Lock()
	value := *b.input.ptr(field)
	if *b.applied.ptr(field) == value {
		b.mu.Unlock()
		return
	}
	*b.applied.ptr(field) = value
	b.page = 1
	b.mu.Unlock()

	_ = b.Load(ctx)
}

// Submit applies every pending input at once, skipping the debounce.
func (b *Browser) Submit(ctx context.Context) error {
	b.debounce.StopAll()

	b.mu.Lock()
	b.applied = b.input
	b.page = 1
	b.mu.Unlock()

	return b.Load(ctx)
}

func (b *Browser) ClearFilters(ctx context.Context) error {
	b.debounce.StopAll()

	b.mu.Lock()
	b.input = Filters{}
	b.applied = Filters{}
	b.page = 1
	b.mu.Unlock()

	return b.Load(ctx)
}

// SetPage moves to page n, kept within the known page range.
func (b *Browser) SetPage(ctx context.Context, n int) error {
	b.mu.Lock()
	if total := totalPages(b.count); total > 0 && n > total {
		n = total
	}
	if n < 1 {
		n = 1
	}
	b.page = n
	b.mu.Unlock()

	return b.Load(ctx)
}

// Load queries the current page with the applied filters. A response to a
// query that has since been superseded is dropped.
func (b *Browser) Load(ctx context.Context) error {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	q := storeapi.ProductQuery{
		Page:     b.page,
		Search:   b.applied.Search,
		Category: b.applied.Category,
		MinPrice: b.applied.MinPrice,
		MaxPrice: b.applied.MaxPrice,
	}
	b.loading = true
	b.mu.Unlock()

	page, err := b.api.ListProducts(ctx, q)

	b.mu.Lock()
	defer b.mu.Unlock()
	if seq != b.seq {
		return err
	}
	b.loading = false
	if err != nil {
		b.logger.Error("failed to load products", slog.Int("page", q.Page), slog.String("error", err.Error()))
		b.errMsg = MsgLoadFailed
		return err
	}

	b.errMsg = ""
	b.products = page.Results
	if b.products == nil {
		b.products = []model.Product{}
	}
	b.count = page.Count
	return nil
}

// Searching reports typed input that has not reached the query yet.
func (b *Browser) Searching() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.input != b.applied
}

func (b *Browser) View(cart CartLookup) View {
	b.mu.Lock()
	defer b.mu.Unlock()

	cards := make([]Card, 0, len(b.products))
	for _, p := range b.products {
		cards = append(cards, NewCard(p, cart))
	}
	return View{
		Filters:    b.input,
		Applied:    b.applied,
		Categories: Categories,
		Page:       b.page,
		TotalPages: totalPages(b.count),
		Count:      b.count,
		Products:   cards,
		Loading:    b.loading,
		Searching:  b.input != b.applied,
		Error:      b.errMsg,
	}
}

// Product loads one product for the detail page. Any failure reads as
// ErrProductNotFound.
func (b *Browser) Product(ctx context.Context, id int) (*model.Product, error) {
	p, err := b.api.GetProduct(ctx, id)
	if err != nil {
		b.logger.Warn("failed to load product", slog.Int("product_id", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrProductNotFound, err)
	}
	return p, nil
}

func totalPages(count int) int {
	return (count + PageSize - 1) / PageSize
}
