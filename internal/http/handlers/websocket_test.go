package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/auth"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// stubAccounts backs both the auth service and the socket account directory.
type stubAccounts struct {
	byEmail map[string]*models.User
	byID    map[uuid.UUID]*models.User
}

func newStubAccounts() *stubAccounts {
	return &stubAccounts{
		byEmail: make(map[string]*models.User),
		byID:    make(map[uuid.UUID]*models.User),
	}
}

func (s *stubAccounts) add(user *models.User) {
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
}

func (s *stubAccounts) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return s.byEmail[email], nil
}

func (s *stubAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return s.byID[id], nil
}

func (s *stubAccounts) Update(_ context.Context, user *models.User) error {
	s.add(user)
	return nil
}

func wsContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestResolveSocketSenderLoadsAccountName(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	accounts := newStubAccounts()
	authSvc := auth.NewService(accounts)
	hash, err := authSvc.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &models.User{
		Email:    "carol@example.com",
		Password: hash,
		Name:     "Carol Client",
		Role:     models.RoleClient,
		IsActive: true,
	}
	user.ID = uuid.New()
	accounts.add(user)

	resp, err := authSvc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "hunter22"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	h := NewWebSocketHandler(authSvc, accounts, nil)
	sender, err := h.resolveSocketSender(wsContext("/ws?token=" + resp.AccessToken))
	if err != nil {
		t.Fatalf("resolveSocketSender: %v", err)
	}
	if sender.ID != user.ID {
		t.Errorf("sender id = %s, want %s", sender.ID, user.ID)
	}
	// Messages and participant snapshots persist the display name, so a
	// socket principal must carry it even though JWT claims do not.
	if sender.Name != "Carol Client" {
		t.Errorf("sender name = %q, want %q", sender.Name, "Carol Client")
	}
	if sender.Email != user.Email || sender.Role != models.RoleClient {
		t.Errorf("sender identity = %+v", sender)
	}
}

func TestResolveSocketSenderPublicVisitor(t *testing.T) {
	h := NewWebSocketHandler(auth.NewService(newStubAccounts()), newStubAccounts(), nil)

	id := uuid.New()
	sender, err := h.resolveSocketSender(wsContext("/ws?public_id=" + id.String() + "&name=Visitor&email=visitor%40example.com"))
	if err != nil {
		t.Fatalf("resolveSocketSender: %v", err)
	}
	if sender.ID != id || sender.Role != models.RolePublic {
		t.Errorf("sender = %+v, want public visitor %s", sender, id)
	}
	if sender.Name != "Visitor" || sender.Email != "visitor@example.com" {
		t.Errorf("self-asserted identity = %+v", sender)
	}

	if _, err := h.resolveSocketSender(wsContext("/ws?public_id=not-a-uuid")); err == nil {
		t.Error("malformed public_id accepted")
	}
	if _, err := h.resolveSocketSender(wsContext("/ws")); err == nil {
		t.Error("connection without credentials accepted")
	}
}

func waitForClients(t *testing.T, h *WebSocketHandler, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.GetConnectedClients() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connected clients never reached %d", want)
}

func TestHubEvictsUnresponsiveClients(t *testing.T) {
	h := NewWebSocketHandler(nil, nil, nil)

	// No writePump drains the send channel; the welcome message fills the
	// single-slot buffer so the next broadcast must evict the client.
	client := &WebSocketClient{
		topics: map[string]bool{},
		send:   make(chan WebSocketMessage, 1),
		hub:    h.hub,
	}
	h.hub.register <- client
	waitForClients(t, h, 1)

	// Concurrent count reads while the hub evicts under the write lock.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			h.GetConnectedClients()
		}
		close(done)
	}()
	for i := 0; i < 3; i++ {
		h.Publish("", "new-message", nil)
	}
	<-done
	waitForClients(t, h, 0)
}
