package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campfire/internal/membertoken"
	"campfire/internal/util"
	"campfire/pkg/domain"
	"campfire/pkg/realtime"
	"campfire/pkg/storage"
	"campfire/services/community/internal/app"
	"campfire/services/community/internal/assistantclient"
	"campfire/services/community/internal/billingclient"
	"campfire/services/community/internal/identityclient"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Hub            *realtime.Hub
	TokenVerifier  *membertoken.Verifier
	Identity       *identityclient.Client
	Billing        *billingclient.Client
	Assistant      *assistantclient.Client
	Images         storage.ImageStore
	AllowedOrigins []string
	TrustedProxies *util.TrustedProxies
}

// Server exposes the community HTTP and websocket API.
type Server struct {
	app            *app.App
	hub            *realtime.Hub
	tokenVerifier  *membertoken.Verifier
	identity       *identityclient.Client
	billing        *billingclient.Client
	assistant      *assistantclient.Client
	images         storage.ImageStore
	allowedOrigins []string
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		hub:            cfg.Hub,
		tokenVerifier:  cfg.TokenVerifier,
		identity:       cfg.Identity,
		billing:        cfg.Billing,
		assistant:      cfg.Assistant,
		images:         cfg.Images,
		allowedOrigins: cfg.AllowedOrigins,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("community", s.trustedProxies,
		util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/auth/exchange", s.handleAuthExchange)
	s.mux.HandleFunc("POST /api/billing/webhook", s.handleBillingWebhook)

	s.mux.Handle("GET /api/channels", s.withEntitled(s.handleListChannels))
	s.mux.Handle("POST /api/channels/{slug}/read", s.withEntitled(s.handleMarkRead))
	s.mux.Handle("POST /api/channels/{slug}/typing", s.withEntitled(s.handleTyping))
	s.mux.Handle("GET /api/channels/{slug}/typing", s.withEntitled(s.handleTypingSnapshot))
	s.mux.Handle("POST /api/channels/{slug}/heartbeat", s.withEntitled(s.handleHeartbeat))
	s.mux.Handle("GET /api/channels/{slug}/presence", s.withEntitled(s.handlePresence))
	s.mux.Handle("POST /api/channels/{slug}/announcements", s.withEntitled(s.handleAnnounce))

	s.mux.Handle("GET /api/messages", s.withEntitled(s.handleListMessages))
	s.mux.Handle("POST /api/messages", s.withEntitled(s.handleSendMessage))
	s.mux.Handle("PATCH /api/messages/{id}", s.withEntitled(s.handleEditMessage))
	s.mux.Handle("DELETE /api/messages/{id}", s.withEntitled(s.handleDeleteMessage))
	s.mux.Handle("POST /api/messages/reactions", s.withEntitled(s.handleToggleReaction))
	s.mux.Handle("DELETE /api/messages/reactions", s.withEntitled(s.handleToggleReaction))
	s.mux.Handle("POST /api/messages/report", s.withEntitled(s.handleReportMessage))

	s.mux.Handle("GET /api/notifications", s.withEntitled(s.handleListNotifications))
	s.mux.Handle("POST /api/notifications", s.withEntitled(s.handleMarkNotificationsRead))

	s.mux.Handle("GET /api/forum/posts", s.withEntitled(s.handleListForumPosts))
	s.mux.Handle("POST /api/forum/posts", s.withEntitled(s.handleCreateForumPost))
	s.mux.Handle("GET /api/forum/posts/{id}", s.withEntitled(s.handleGetPostThread))
	s.mux.Handle("POST /api/forum/posts/{id}/comments", s.withEntitled(s.handleCreateForumComment))

	s.mux.Handle("GET /api/search", s.withEntitled(s.handleSearch))
	s.mux.Handle("POST /api/uploads", s.withEntitled(s.handleUploadImage))
	s.mux.Handle("POST /api/assistant", s.withMember(s.handleAssistant))
	s.mux.Handle("POST /api/members/{id}/role", s.withEntitled(s.handlePromoteMember))

	s.mux.Handle("GET /ws", s.withEntitled(s.handleWebsocket))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type memberHandler func(http.ResponseWriter, *http.Request, domain.Member)

func (s *Server) withMember(next memberHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeDomainError(w, domain.ErrUnauthenticated)
			return
		}
		claims, err := s.tokenVerifier.Verify(token)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		member, err := s.app.CurrentMember(r.Context(), claims.Member())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		next(w, r, member)
	})
}

// withEntitled layers the membership paywall over authentication. Staff
// roles pass without a purchase record so moderation never depends on
// billing state.
func (s *Server) withEntitled(next memberHandler) http.Handler {
	return s.withMember(func(w http.ResponseWriter, r *http.Request, member domain.Member) {
		if !member.Premium && !domain.CanModerate(member.Role) {
			writeDomainError(w, domain.ErrNotEntitled)
			return
		}
		next(w, r, member)
	})
}

func (s *Server) handleAuthExchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	tokens, err := s.identity.Exchange(r.Context(), req.Code)
	if err != nil {
		writeClientError(w, err, "identity service unavailable")
		return
	}
	claims, err := s.tokenVerifier.Verify(tokens.AccessToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	member, err := s.app.CurrentMember(r.Context(), claims.Member())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": tokens.AccessToken,
		"expiresIn":   tokens.ExpiresIn,
		"member":      member,
	})
}

func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	entitlement, err := s.billing.Redeem(r.Context(), req.Token)
	if err != nil {
		writeClientError(w, err, "billing service unavailable")
		return
	}
	if err := s.app.SetPremium(r.Context(), entitlement.MemberID, entitlement.Premium); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"applied": true})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request, member domain.Member) {
	overviews, err := s.app.ChannelOverviews(r.Context(), member)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": overviews})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, member domain.Member) {
	ch, err := s.app.ChannelBySlug(r.Context(), member, r.PathValue("slug"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// An omitted body or timestamp means "read up to now".
	var req struct {
		At time.Time `json:"at"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.MarkRead(r.Context(), member, ch.ID, req.At); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request, member domain.Member) {
	ch, err := s.app.ChannelBySlug(r.Context(), member, r.PathValue("slug"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.app.Typing(r.Context(), member, ch.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleTypingSnapshot(w http.ResponseWriter, r *http.Request, member domain.Member) {
	ch, err := s.app.ChannelBySlug(r.Context(), member, r.PathValue("slug"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	typists, err := s.app.TypingSnapshot(r.Context(), member, ch.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"typing": typists})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, member domain.Member) {
	ch, err := s.app.ChannelBySlug(r.Context(), member, r.PathValue("slug"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.app.Heartbeat(r.Context(), member, ch.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request, member domain.Member) {
	ch, err := s.app.ChannelBySlug(r.Context(), member, r.PathValue("slug"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	online, err := s.app.PresenceSnapshot(r.Context(), member, ch.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"online": online})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, member domain.Member) {
	ch, ok := s.resolveChannel(w, r, member, r.URL.Query().Get("channel"))
	if !ok {
		return
	}
	page, err := s.app.ListMessages(r.Context(), member, ch.ID,
		queryInt(r, "limit"), r.URL.Query().Get("cursor"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, member domain.Member) {
	var req struct {
		Channel  string `json:"channel"`
		Content  string `json:"content"`
		ImageURL string `json:"imageUrl"`
		ReplyTo  string `json:"replyTo"`
		TempID   string `json:"tempId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	ch, ok := s.resolveChannel(w, r, member, req.Channel)
	if !ok {
		return
	}
	msg, err := s.app.SendMessage(r.Context(), member, ch.ID, req.Content, req.ImageURL, req.ReplyTo)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg, "tempId": req.TempID})
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request, member domain.Member) {
	ch, ok := s.resolveChannel(w, r, member, r.PathValue("slug"))
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	msg, err := s.app.PostAnnouncement(r.Context(), member, ch.ID, req.Content)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

// resolveChannel turns a client-facing slug into an authorized channel.
func (s *Server) resolveChannel(w http.ResponseWriter, r *http.Request, member domain.Member, slug string) (domain.Channel, bool) {
	if slug == "" {
		writeError(w, http.StatusBadRequest, "channel is required")
		return domain.Channel{}, false
	}
	ch, err := s.app.ChannelBySlug(r.Context(), member, slug)
	if err != nil {
		writeDomainError(w, err)
		return domain.Channel{}, false
	}
	return ch, true
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request, member domain.Member) {
	var req struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	msg, err := s.app.EditMessage(r.Context(), member, r.PathValue("id"), req.Content)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request, member domain.Member) {
	if err := s.app.DeleteMessage(r.Context(), member, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleToggleReaction(w http.ResponseWriter, r *http.Request, member domain.Member) {
	var req struct {
		MessageID string `json:"messageId"`
		Emoji     string `json:"emoji"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	added, err := s.app.ToggleReaction(r.Context(), member, req.MessageID, req.Emoji)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reacted": added})
}

func (s *Server) handleReportMessage(w http.ResponseWriter, r *http.Request, member domain.Member) {
	var req struct {
		MessageID string `json:"messageId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.ReportMessage(r.Context(), member, req.MessageID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"reported": true})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request, member domain.Member) {
	notifications, err := s.app.Notifications(r.Context(), member, queryInt(r, "limit"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (s *Server) handleMarkNotificationsRead(w http.ResponseWriter, r *http.Request, member domain.Member) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := s.app.MarkNotificationsRead(r.Context(), member, req.IDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (s *Server) handleListForumPosts(w http.ResponseWriter, r *http.Request, member domain.Member) {
	ch, ok := s.resolveChannel(w, r, member, r.URL.Query().Get("channel"))
	if !ok {
		return
	}
	page, err := s.app.ListForumPosts(r.Context(), member, ch.ID,
		queryInt(r, "limit"), r.URL.Query().Get("cursor"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateForumPost(w http.ResponseWriter, r *http.Request, member domain.Member) {
	var req struct {
		Channel string `json:"channel"`
		Title   string `json:"title"`
		Body    string `json:"body"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	ch, ok := s.resolveChannel(w, r, member, req.Channel)
	if !ok {
		return
	}
	post, err := s.app.CreateForumPost(r.Context(), member, ch.ID, req.Title, req.Body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"post": post})
}

func (s *Server) handleGetPostThread(w http.ResponseWriter, r *http.Request, member domain.Member) {
	thread, err := s.app.GetPostThread(r.Context(), member, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (s *Server) handleCreateForumComment(w http.ResponseWriter, r *http.Request, member domain.Member) {
	var req struct {
		Body string `json:"body"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	comment, err := s.app.CreateForumComment(r.Context(), member, r.PathValue("id"), req.Body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"comment": comment})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, member domain.Member) {
	results, err := s.app.Search(r.Context(), member, r.URL.Query().Get("q"), queryInt(r, "limit"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request, member domain.Member) {
	if s.images == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxImageBytes+4096)
	if err := r.ParseMultipartForm(storage.MaxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "image must be between 1 byte and 5MB")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image field is required")
		return
	}
	defer file.Close()

	key, err := s.images.Put(r.Context(), member.ID, util.NewID(), file, header.Size)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	url, err := s.images.PresignGet(r.Context(), key, 24*time.Hour)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key, "url": url})
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request, member domain.Member) {
	if !member.Premium {
		writeError(w, http.StatusForbidden, "assistant requires a premium membership")
		return
	}
	if s.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant is not configured")
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	reply, err := s.assistant.Complete(r.Context(), req.Prompt)
	if err != nil {
		writeClientError(w, err, "assistant unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handlePromoteMember(w http.ResponseWriter, r *http.Request, member domain.Member) {
	var req struct {
		Role string `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.PromoteMember(r.Context(), member, r.PathValue("id"), domain.Role(req.Role)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := domain.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	}
	if status == http.StatusTooManyRequests {
		if retryAfter := domain.RetryAfterOf(err); retryAfter > 0 {
			secs := int(math.Ceil(retryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	writeError(w, status, domain.UserMessage(err))
}

func writeClientError(w http.ResponseWriter, err error, fallback string) {
	switch apiErr := err.(type) {
	case *identityclient.APIError:
		writeError(w, apiErr.Status, apiErr.Message)
	case *billingclient.APIError:
		writeError(w, apiErr.Status, apiErr.Message)
	case *assistantclient.APIError:
		writeError(w, apiErr.Status, apiErr.Message)
	default:
		writeError(w, http.StatusBadGateway, fallback)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}
