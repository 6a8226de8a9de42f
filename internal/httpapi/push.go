package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mdonan90/ClawController/internal/pushnotification"
	"github.com/mdonan90/ClawController/internal/pushsubscription"
	"github.com/mdonan90/ClawController/pkg/cerr"
)

type PushServer struct {
	repo   pushsubscription.Repository
	sender *pushnotification.Sender

	publicKey string
}

func NewPushServer(repo pushsubscription.Repository, sender *pushnotification.Sender, publicKey string) *PushServer {
	return &PushServer{repo: repo, sender: sender, publicKey: publicKey}
}

func (s *PushServer) Routes(r chi.Router) {
	r.Get("/push/public-key", s.getPublicKey)
	r.Post("/push/subscribe", s.subscribe)
	r.Post("/push/unsubscribe", s.unsubscribe)
	r.Post("/push/test", s.test)
}

type publicKeyResponse struct {
	PublicKey string `json:"public_key"`
}

func (s *PushServer) getPublicKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.publicKey == "" {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	cerr.SetJSONResponse(ctx, publicKeyResponse{PublicKey: s.publicKey})
}

type subscribeRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh_key"`
	AuthKey   string `json:"auth_key"`
}

func (s *PushServer) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Endpoint == "" || req.P256dhKey == "" || req.AuthKey == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint, p256dh_key and auth_key are required", nil)
		return
	}

	sub := &pushsubscription.Subscription{
		Endpoint:  req.Endpoint,
		P256dhKey: req.P256dhKey,
		AuthKey:   req.AuthKey,
	}
	if err := s.repo.Upsert(ctx, sub); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, ok)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *PushServer) unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req unsubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Endpoint == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	}
	if err := s.repo.DeleteByEndpoint(ctx, req.Endpoint); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, ok)
}

func (s *PushServer) test(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.sender.SendToAll(ctx, &pushnotification.NotificationPayload{
		Title: "ClawController Test",
		Body:  "Push notifications are working!",
	})
	cerr.SetJSONResponse(ctx, ok)
}
