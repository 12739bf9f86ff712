// Package apitest provides an in-process fake of the admin backend: the REST
// contract plus the websocket event stream. Tests drive it directly to
// exercise the real client, feed and session code end to end.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"foodadmin/internal/model"
)

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Server struct {
	httpServer *httptest.Server
	upgrader   websocket.Upgrader

	mu         sync.Mutex
	admin      model.User
	password   string
	sessions   map[string]bool
	orders     []model.Order
	categories []model.Category
	products   []model.Product
	users      []model.User
	printed    []string
	failOrders bool

	conns map[*websocket.Conn]bool
}

// New starts the fake backend with one seeded admin account
// (admin@example.com / secret).
func New() *Server {
	s := &Server{
		admin: model.User{
			ID:        "u-1",
			FirstName: "Ana",
			LastName:  "Souza",
			Email:     "admin@example.com",
			Role:      "admin",
		},
		password: "secret",
		sessions: make(map[string]bool),
		conns:    make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/orders/admin", s.handleAdminOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/countstatus", s.handleCountStatus).Methods(http.MethodGet)
	api.HandleFunc("/orders/print/{id}", s.handlePrint).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/status", s.handleUpdateStatus).Methods(http.MethodPut)
	api.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/categories/{id}", s.handleCategory).Methods(http.MethodPut, http.MethodDelete)
	api.HandleFunc("/products", s.handleProducts).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/products/{id}", s.handleProduct).Methods(http.MethodPut, http.MethodDelete)
	api.HandleFunc("/users", s.handleUsers).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/users/{id}", s.handleUser).Methods(http.MethodPut, http.MethodDelete)
	r.HandleFunc("/ws", s.handleWS)

	s.httpServer = httptest.NewServer(r)
	return s
}

// URL is the REST base URL.
func (s *Server) URL() string { return s.httpServer.URL }

// StreamURL is the websocket endpoint.
func (s *Server) StreamURL() string {
	return "ws" + strings.TrimPrefix(s.httpServer.URL, "http") + "/ws"
}

func (s *Server) Close() {
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = make(map[*websocket.Conn]bool)
	s.mu.Unlock()
	s.httpServer.Close()
}

// DropConnections severs every live stream connection without stopping the
// server, simulating a network blip for reconnect tests.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = make(map[*websocket.Conn]bool)
}

// SeedOrders replaces the stored order set.
func (s *Server) SeedOrders(orders ...model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append([]model.Order{}, orders...)
}

// FailOrders makes subsequent snapshot fetches return a server error.
func (s *Server) FailOrders(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOrders = fail
}

// Printed returns the order IDs the backend was asked to print.
func (s *Server) Printed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.printed...)
}

// PushEvent broadcasts a named event to every connected stream client.
func (s *Server) PushEvent(event string, data any) {
	raw, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) authenticated(r *http.Request) bool {
	cookie, err := r.Cookie("sid")
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[cookie.Value]
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	s.mu.Lock()
	admin := s.admin
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]any{"user": admin})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if body.Email != s.admin.Email || body.Password != s.password {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	sid := uuid.New().String()
	s.sessions[sid] = true
	http.SetCookie(w, &http.Cookie{Name: "sid", Value: sid, Path: "/"})
	respondJSON(w, http.StatusOK, map[string]any{
		"user":    s.admin,
		"message": "Welcome back!",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("sid"); err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}
	respondJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOrders {
		respondError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}

	status := r.URL.Query().Get("status")
	matched := []model.Order{}
	for _, o := range s.orders {
		if status == "" || o.Status.String() == status {
			matched = append(matched, o)
		}
	}
	respondJSON(w, http.StatusOK, matched)
}

func (s *Server) handleCountStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(model.StatusCounts)
	for _, st := range model.Statuses() {
		counts[st] = 0
	}
	for _, o := range s.orders {
		counts[o.Status]++
	}
	respondJSON(w, http.StatusOK, counts)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	status, err := model.ParseStatus(body.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := mux.Vars(r)["id"]
	s.mu.Lock()
	var updated *model.Order
	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i].Status = status
			o := s.orders[i]
			updated = &o
			break
		}
	}
	s.mu.Unlock()

	if updated == nil {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}

	// Mirror the real backend: the status change is also pushed to every
	// stream client.
	s.PushEvent("orderStatusUpdated", updated)
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	s.mu.Lock()
	s.printed = append(s.printed, mux.Vars(r)["id"])
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]string{"message": "Print queued"})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	if r.Method == http.MethodGet {
		s.mu.Lock()
		defer s.mu.Unlock()
		respondJSON(w, http.StatusOK, s.categories)
		return
	}

	title := parseFields(r)["title"]
	if title == "" {
		respondError(w, http.StatusBadRequest, "Title is required")
		return
	}
	category := model.Category{ID: uuid.New().String(), Title: title}
	s.mu.Lock()
	s.categories = append(s.categories, category)
	s.mu.Unlock()
	respondJSON(w, http.StatusCreated, category)
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.categories {
		if s.categories[i].ID == id {
			if r.Method == http.MethodDelete {
				s.categories = append(s.categories[:i], s.categories[i+1:]...)
				respondJSON(w, http.StatusOK, map[string]string{})
				return
			}
			if title := parseFields(r)["title"]; title != "" {
				s.categories[i].Title = title
			}
			respondJSON(w, http.StatusOK, s.categories[i])
			return
		}
	}
	respondError(w, http.StatusNotFound, "Category not found")
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	if r.Method == http.MethodGet {
		s.mu.Lock()
		defer s.mu.Unlock()
		respondJSON(w, http.StatusOK, s.products)
		return
	}

	fields := parseFields(r)
	product := model.Product{
		ID:         uuid.New().String(),
		Title:      fields["title"],
		CategoryID: fields["category_id"],
	}
	if product.Title == "" {
		respondError(w, http.StatusBadRequest, "Title is required")
		return
	}
	s.mu.Lock()
	s.products = append(s.products, product)
	s.mu.Unlock()
	respondJSON(w, http.StatusCreated, product)
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			if r.Method == http.MethodDelete {
				s.products = append(s.products[:i], s.products[i+1:]...)
				respondJSON(w, http.StatusOK, map[string]string{})
				return
			}
			if title := parseFields(r)["title"]; title != "" {
				s.products[i].Title = title
			}
			respondJSON(w, http.StatusOK, s.products[i])
			return
		}
	}
	respondError(w, http.StatusNotFound, "Product not found")
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	if r.Method == http.MethodGet {
		s.mu.Lock()
		defer s.mu.Unlock()
		respondJSON(w, http.StatusOK, s.users)
		return
	}

	fields := parseFields(r)
	user := model.User{
		ID:        uuid.New().String(),
		FirstName: fields["first_name"],
		LastName:  fields["last_name"],
		Email:     fields["email"],
		Role:      fields["role"],
	}
	if user.Email == "" {
		respondError(w, http.StatusBadRequest, "Email is required")
		return
	}
	s.mu.Lock()
	s.users = append(s.users, user)
	s.mu.Unlock()
	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			if r.Method == http.MethodDelete {
				s.users = append(s.users[:i], s.users[i+1:]...)
				respondJSON(w, http.StatusOK, map[string]string{})
				return
			}
			if email := parseFields(r)["email"]; email != "" {
				s.users[i].Email = email
			}
			respondJSON(w, http.StatusOK, s.users[i])
			return
		}
	}
	respondError(w, http.StatusNotFound, "User not found")
}

// parseFields reads the request body once, accepting either JSON or
// multipart encoding like the real backend's CRUD endpoints do.
func parseFields(r *http.Request) map[string]string {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		fields := map[string]string{}
		_ = json.NewDecoder(r.Body).Decode(&fields)
		return fields
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		_ = r.ParseForm()
	}
	fields := map[string]string{}
	for k, v := range r.Form {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	if r.MultipartForm != nil {
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
	}
	return fields
}
