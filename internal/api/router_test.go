package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Rrens/collab-hub/internal/config"
	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/Rrens/collab-hub/internal/hub"
	"github.com/Rrens/collab-hub/internal/repository"
	"github.com/Rrens/collab-hub/internal/repository/sqlite"
	"github.com/Rrens/collab-hub/internal/security"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv    *httptest.Server
	hub    *hub.Hub
	stores *repository.Stores
	jwt    *security.JWTManager
	team   uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	stores := repository.NewSQLiteStores(db)

	jwtManager := security.NewJWTManager("test-secret", "collab-hub", time.Hour)
	h := hub.New(hub.Deps{
		Verifier:    jwtManager,
		Membership:  stores.Membership,
		Presence:    stores.Presence,
		Sessions:    stores.Sessions,
		Operations:  stores.Operations,
		Connections: stores.Connections,
	})

	cfg := &config.Config{
		Server: config.ServerConfig{MiddlewareTimeout: 10 * time.Second},
		Hub: config.HubConfig{
			SendBuffer:     64,
			OverflowPolicy: config.OverflowDisconnect,
			WriteTimeout:   5 * time.Second,
			AllowedOrigins: []string{"*"},
		},
	}

	baseCtx, cancel := context.WithCancel(ctx)
	srv := httptest.NewServer(NewRouter(cfg, Deps{
		BaseCtx:    baseCtx,
		Hub:        h,
		Stores:     stores,
		JWTManager: jwtManager,
	}))
	t.Cleanup(func() {
		h.Shutdown(context.Background())
		cancel()
		srv.Close()
	})

	team := uuid.New()
	now := time.Now()
	require.NoError(t, stores.Membership.CreateTeam(ctx, &domain.Team{ID: team, Name: "core", CreatedAt: now, UpdatedAt: now}))

	return &testServer{srv: srv, hub: h, stores: stores, jwt: jwtManager, team: team}
}

func (s *testServer) member(t *testing.T) (uuid.UUID, string) {
	t.Helper()
	userID := uuid.New()
	require.NoError(t, s.stores.Membership.AddMember(context.Background(), &domain.TeamMember{
		TeamID: s.team, UserID: userID, Role: domain.RoleMember, Status: domain.MemberStatusActive, CreatedAt: time.Now(),
	}))
	return userID, s.token(t, userID)
}

func (s *testServer) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := s.jwt.GenerateAccessToken(userID, "dev@example.com", "Dev", nil)
	require.NoError(t, err)
	return token
}

func (s *testServer) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws?" + query
}

func (s *testServer) dial(t *testing.T, token, resource string) *websocket.Conn {
	t.Helper()
	query := fmt.Sprintf("token=%s&teamId=%s", token, s.team)
	if resource != "" {
		query += "&resourceType=document&resourceId=" + resource
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, s.wsURL(query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func (s *testServer) get(t *testing.T, path, token string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

// readUntil reads frames until one of type typ arrives
func readUntil(t *testing.T, conn *websocket.Conn, typ hub.MessageType) hub.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg hub.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func write(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
}

func TestWebSocket_UpgradeRejections(t *testing.T) {
	s := newTestServer(t)
	_, token := s.member(t)
	outsider := s.token(t, uuid.New())

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing team", "token=" + token, http.StatusBadRequest},
		{"unpaired resource", fmt.Sprintf("token=%s&teamId=%s&resourceId=doc", token, s.team), http.StatusBadRequest},
		{"missing token", "teamId=" + s.team.String(), http.StatusUnauthorized},
		{"bad token", fmt.Sprintf("token=garbage&teamId=%s", s.team), http.StatusUnauthorized},
		{"not a member", fmt.Sprintf("token=%s&teamId=%s", outsider, s.team), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, resp, err := websocket.Dial(ctx, s.wsURL(tt.query), nil)
			if conn != nil {
				conn.CloseNow()
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	assert.Zero(t, s.hub.Stats().Connections)
}

func TestWebSocket_CollaborationFlow(t *testing.T) {
	s := newTestServer(t)
	alice, aliceToken := s.member(t)
	bob, bobToken := s.member(t)

	aliceConn := s.dial(t, aliceToken, "doc-1")
	snapshot := readUntil(t, aliceConn, hub.TypeTeamPresence)
	assert.Equal(t, alice.String(), snapshot.UserID)

	bobConn := s.dial(t, bobToken, "doc-1")
	var bobSnapshot struct {
		Users []domain.Presence `json:"users"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, bobConn, hub.TypeTeamPresence).Data, &bobSnapshot))
	require.Len(t, bobSnapshot.Users, 1)
	assert.Equal(t, alice, bobSnapshot.Users[0].UserID)
	assert.Equal(t, domain.PresenceOnline, bobSnapshot.Users[0].Status)

	join := readUntil(t, aliceConn, hub.TypeJoin)
	assert.Equal(t, bob.String(), join.UserID)

	// A malformed frame only earns an error frame
	write(t, aliceConn, "not-json")
	readUntil(t, aliceConn, hub.TypeError)

	write(t, aliceConn, `{"type":"text_change","data":{"operation_type":"insert","operation":{"pos":0,"text":"hi"},"sequence_number":1}}`)
	change := readUntil(t, bobConn, hub.TypeTextChange)
	assert.Equal(t, alice.String(), change.UserID)
	assert.Equal(t, "doc-1", change.ResourceID)
	var changeData map[string]any
	require.NoError(t, json.Unmarshal(change.Data, &changeData))
	assert.EqualValues(t, 1, changeData["sequence"])

	status, body := s.get(t, fmt.Sprintf("/api/v1/teams/%s/resources/document/doc-1/operations?after=0", s.team), bobToken)
	require.Equal(t, http.StatusOK, status)
	ops := body["data"].(map[string]any)["operations"].([]any)
	require.Len(t, ops, 1)
	assert.EqualValues(t, 1, ops[0].(map[string]any)["sequence"])

	status, body = s.get(t, fmt.Sprintf("/api/v1/teams/%s/presence", s.team), bobToken)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"].([]any), 2)

	require.NoError(t, aliceConn.Close(websocket.StatusNormalClosure, "bye"))
	leave := readUntil(t, bobConn, hub.TypeLeave)
	assert.Equal(t, alice.String(), leave.UserID)
	var leaveData map[string]any
	require.NoError(t, json.Unmarshal(leave.Data, &leaveData))
	assert.Equal(t, "offline", leaveData["status"])

	assert.Eventually(t, func() bool { return s.hub.Stats().Connections == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestREST_Endpoints(t *testing.T) {
	s := newTestServer(t)
	_, token := s.member(t)
	outsider := s.token(t, uuid.New())

	status, body := s.get(t, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = s.get(t, "/api/v1/ready", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["data"].(map[string]any)["backends"].(map[string]any)["sqlite"])

	status, body = s.get(t, "/api/v1/stats", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["data"].(map[string]any)["connections"])

	status, _ = s.get(t, fmt.Sprintf("/api/v1/teams/%s/presence", s.team), "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.get(t, fmt.Sprintf("/api/v1/teams/%s/presence", s.team), outsider)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.get(t, "/api/v1/teams/not-a-uuid/presence", token)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.get(t, fmt.Sprintf("/api/v1/teams/%s/resources/document/doc-1/operations?after=x", s.team), token)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.get(t, fmt.Sprintf("/api/v1/teams/%s/resources/document/untouched/operations", s.team), token)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["data"].(map[string]any)["operations"])
}
