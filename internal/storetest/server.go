// Package storetest runs an in-memory stand-in for the store REST API.
// It keeps just enough server-side rules (inventory checks, totals, order
// creation) for storefront tests to observe server-truth behaviour.
package storetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"fsanano/storefront/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const pageSize = 12

type cartLine struct {
	id        int
	productID int
	quantity  int
}

type Server struct {
	*httptest.Server

	mu         sync.Mutex
	products   map[int]model.Product
	lines      map[int]*cartLine
	orders     []model.Order
	nextItemID int
	calls      []string
	cartDelay  time.Duration

	// Token, when set, is the only bearer token accepted.
	Token string
	User  model.User
	// PaymentError makes order creation fail the way a declined charge does.
	PaymentError string
}

func NewServer(products ...model.Product) *Server {
	s := &Server{
		products:   make(map[int]model.Product),
		lines:      make(map[int]*cartLine),
		nextItemID: 1,
		User:       model.User{ID: 1, Username: "shopper", Email: "shopper@example.com"},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Get("/products/", s.listProducts)
	r.Get("/products/{id}/", s.getProduct)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/cart/", s.getCart)
		r.Post("/cart/add/", s.addToCart)
		r.Put("/cart/{id}/", s.updateCartItem)
		r.Delete("/cart/{id}/remove/", s.removeCartItem)
		r.Get("/orders/", s.listOrders)
		r.Post("/orders/create/", s.createOrder)
		r.Get("/users/profile/", s.profile)
	})

	s.Server = httptest.NewServer(r)
	return s
}

// Product builds a catalog entry; price is a decimal string like "25.00".
func Product(id int, name, price string, inventory int, category string) model.Product {
	return model.Product{
		ID:             id,
		Name:           name,
		Description:    name + " description",
		Price:          decimal.RequireFromString(price),
		InventoryCount: inventory,
		Category:       category,
		IsInStock:      inventory > 0,
		ImageURL:       fmt.Sprintf("https://img.example.com/%d.png", id),
	}
}

// CallCount counts requests matching "METHOD /path".
func (s *Server) CallCount(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Server) ResetCalls() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

// PutInCart seeds a cart line directly and returns its item id.
func (s *Server) PutInCart(productID, quantity int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextItemID
	s.nextItemID++
	s.lines[id] = &cartLine{id: id, productID: productID, quantity: quantity}
	return id
}

// SetCartDelay slows GET /cart/ down, to exercise overlapping fetches.
func (s *Server) SetCartDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartDelay = d
}

func (s *Server) Orders() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Order(nil), s.orders...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || (s.Token != "" && auth != "Bearer "+s.Token) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := strings.ToLower(q.Get("search"))
	category := strings.ToLower(q.Get("category"))
	minPrice, _ := decimal.NewFromString(q.Get("min_price"))
	maxPrice, hasMax := decimal.Zero, q.Get("max_price") != ""
	if hasMax {
		maxPrice, _ = decimal.NewFromString(q.Get("max_price"))
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	var matched []model.Product
	for _, p := range s.products {
		if p.InventoryCount <= 0 {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		if category != "" && !strings.Contains(strings.ToLower(p.Category), category) {
			continue
		}
		if p.Price.LessThan(minPrice) || (hasMax && p.Price.GreaterThan(maxPrice)) {
			continue
		}
		matched = append(matched, p)
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}
	writeJSON(w, http.StatusOK, model.ProductPage{Results: append([]model.Product{}, matched[start:end]...), Count: len(matched)})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	s.mu.Lock()
	p, ok := s.products[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay := s.cartDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.cartLocked())
}

func (s *Server) cartLocked() model.Cart {
	c := model.Cart{Items: []model.CartItem{}, Total: decimal.Zero}
	ids := make([]int, 0, len(s.lines))
	for id := range s.lines {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		l := s.lines[id]
		p := s.products[l.productID]
		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(l.quantity)))
		c.Items = append(c.Items, model.CartItem{ID: l.id, Product: p, Quantity: l.quantity, TotalPrice: lineTotal})
		c.Total = c.Total.Add(lineTotal)
	}
	c.Count = len(c.Items)
	return c
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID int `json:"product_id"`
		Quantity  int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[req.ProductID]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"product_id": {"Product does not exist"}})
		return
	}
	if p.InventoryCount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"product_id": {"Product is out of stock"}})
		return
	}
	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"quantity": {"Quantity must be greater than 0"}})
		return
	}

	for _, l := range s.lines {
		if l.productID == req.ProductID {
			if l.quantity+req.Quantity > p.InventoryCount {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Not enough inventory"})
				return
			}
			l.quantity += req.Quantity
			writeJSON(w, http.StatusCreated, map[string]int{"id": l.id})
			return
		}
	}
	if req.Quantity > p.InventoryCount {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Not enough inventory"})
		return
	}
	id := s.nextItemID
	s.nextItemID++
	s.lines[id] = &cartLine{id: id, productID: req.ProductID, quantity: req.Quantity}
	writeJSON(w, http.StatusCreated, map[string]int{"id": id})
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var req struct {
		Quantity int `json:"quantity"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lines[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Valid quantity required"})
		return
	}
	if s.products[l.productID].InventoryCount < req.Quantity {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Not enough inventory"})
		return
	}
	l.quantity = req.Quantity
	writeJSON(w, http.StatusOK, map[string]int{"id": l.id, "quantity": l.quantity})
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	delete(s.lines, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, model.OrderPage{Results: append([]model.Order{}, s.orders...), Count: len(s.orders)})
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShippingAddress string `json:"shipping_address"`
		PaymentMethodID string `json:"payment_method_id"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ShippingAddress == "" || req.PaymentMethodID == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"shipping_address": {"This field is required."}})
		return
	}
	if len(s.lines) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Cart is empty"})
		return
	}
	if s.PaymentError != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Payment failed: " + s.PaymentError})
		return
	}

	c := s.cartLocked()
	order := model.Order{
		ID:              len(s.orders) + 1,
		TotalAmount:     c.Total,
		Status:          model.OrderStatusProcessing,
		ShippingAddress: req.ShippingAddress,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	for _, it := range c.Items {
		order.Items = append(order.Items, model.OrderItem{
			ID:         it.ID,
			Product:    it.Product,
			Quantity:   it.Quantity,
			UnitPrice:  it.Product.Price,
			TotalPrice: it.TotalPrice,
		})
		p := s.products[it.Product.ID]
		p.InventoryCount -= it.Quantity
		p.IsInStock = p.InventoryCount > 0
		s.products[p.ID] = p
	}
	s.orders = append([]model.Order{order}, s.orders...)
	s.lines = make(map[int]*cartLine)
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.User)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
