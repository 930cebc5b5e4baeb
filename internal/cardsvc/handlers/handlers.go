package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/avvvet/viand-services/internal/auth"
	"github.com/avvvet/viand-services/internal/cardsvc/service"
	"github.com/avvvet/viand-services/internal/cardsvc/ws"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// maxBodyBytes caps request bodies; photos are URLs, not uploads.
const maxBodyBytes = 1 << 20

const (
	KindValidation      = "validation"
	KindUnauthenticated = "unauthenticated"
	KindForbidden       = "forbidden"
	KindNotFound        = "not_found"
	KindConflict        = "conflict"
	KindInternal        = "internal"
)

type Handler struct {
	tokenAuth      *auth.TokenAuth
	cards          *service.CardService
	users          *service.UserService
	ws             *ws.Ws
	upgrader       websocket.Upgrader
	port           string
	requestTimeout time.Duration
}

type Response struct {
	Message string `json:"msg"`
	Code    int    `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewHandler(tokenAuth *auth.TokenAuth, cards *service.CardService, users *service.UserService, s *ws.Ws, port string) *Handler {
	return &Handler{
		tokenAuth: tokenAuth,
		cards:     cards,
		users:     users,
		ws:        s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		port:           port,
		requestTimeout: 60 * time.Second,
	}
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	h.writeJSON(w, rsp.Code, rsp)
}

// writeJSON encodes v before touching the response, so a value that cannot
// be encoded becomes a 500 instead of an empty body behind a 200.
func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("Failed to encode response: %v", err)
		code = http.StatusInternalServerError
		b, _ = json.Marshal(Response{Message: "Server Error", Code: code, Error: KindInternal})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(append(b, '\n')); err != nil {
		log.Errorf("Failed to write response: %v", err)
	}
}

// writeError maps service errors to a status and a stable kind. Anything
// unrecognised is logged and reported as a bare "Server Error".
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError

	switch {
	case errors.As(err, &verr):
		h.CreateResponse(w, Response{Message: verr.Msg, Code: http.StatusBadRequest, Error: KindValidation})
	case errors.Is(err, service.ErrInvalidCredentials):
		h.CreateResponse(w, Response{Message: "Invalid Credentials", Code: http.StatusBadRequest, Error: KindValidation})
	case errors.Is(err, service.ErrCardNotFound):
		h.CreateResponse(w, Response{Message: "Card not found", Code: http.StatusNotFound, Error: KindNotFound})
	case errors.Is(err, service.ErrUserNotFound):
		h.CreateResponse(w, Response{Message: "User not found", Code: http.StatusNotFound, Error: KindNotFound})
	case errors.Is(err, service.ErrForbidden):
		h.CreateResponse(w, Response{Message: "Not Authorized", Code: http.StatusForbidden, Error: KindForbidden})
	case errors.Is(err, service.ErrCardExists):
		h.CreateResponse(w, Response{Message: "Place already exist", Code: http.StatusConflict, Error: KindConflict})
	case errors.Is(err, service.ErrUserExists):
		h.CreateResponse(w, Response{Message: "User already exists", Code: http.StatusConflict, Error: KindConflict})
	default:
		log.WithField("path", r.URL.Path).Errorf("request failed: %s", err)
		h.CreateResponse(w, Response{Message: "Server Error", Code: http.StatusInternalServerError, Error: KindInternal})
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	h.CreateResponse(w, Response{Message: msg, Code: http.StatusBadRequest, Error: KindValidation})
}

// decode reads a JSON body into v. It returns io.EOF untouched for an
// empty body so callers can decide whether that is allowed.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, Response{Message: "Welcome to viand"})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "card service is running at port " + h.port,
		Code:    http.StatusOK,
	})
}
