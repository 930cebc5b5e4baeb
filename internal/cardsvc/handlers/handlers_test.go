package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	config "github.com/avvvet/viand-services/configs"
	"github.com/avvvet/viand-services/internal/auth"
	"github.com/avvvet/viand-services/internal/cardsvc/broker"
	"github.com/avvvet/viand-services/internal/cardsvc/models"
	"github.com/avvvet/viand-services/internal/cardsvc/service"
	"github.com/avvvet/viand-services/internal/cardsvc/ws"
	"github.com/avvvet/viand-services/internal/comm"
	"github.com/avvvet/viand-services/internal/testutil"
	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "handler-test-secret"

type harness struct {
	router *chi.Mux
	cards  *testutil.CardStore
	users  *testutil.UserStore
	tokens *auth.TokenAuth
	hub    *ws.Ws
}

func newHarness(t *testing.T, opts ...service.CardOption) *harness {
	t.Helper()

	tokens := auth.New(testSecret, time.Hour)
	hub := ws.NewWs()
	cardStore := testutil.NewCardStore()
	userStore := testutil.NewUserStore()

	b := broker.NewBroker(nil, "test", hub.Deliver)
	cards := service.NewCardService(cardStore, append([]service.CardOption{service.WithPublisher(b)}, opts...)...)
	users := service.NewUserService(userStore, tokens)
	users.SetHashCost(bcrypt.MinCost)

	r := chi.NewRouter()
	r.Use(config.CORSHandler)
	NewHandler(tokens, cards, users, hub, "5000").SetRoutes(r)

	return &harness{router: r, cards: cardStore, users: userStore, tokens: tokens, hub: hub}
}

func (h *harness) token(t *testing.T, user primitive.ObjectID) string {
	t.Helper()
	tok, err := h.tokens.Issue(user.Hex())
	require.NoError(t, err)
	return tok
}

func (h *harness) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, code int, kind, msg string) {
	t.Helper()
	require.Equal(t, code, rec.Code, rec.Body.String())
	var rsp Response
	decodeBody(t, rec, &rsp)
	assert.Equal(t, code, rsp.Code)
	assert.Equal(t, kind, rsp.Error)
	if msg != "" {
		assert.Equal(t, msg, rsp.Message)
	}
}

func TestWelcomeAndHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"msg":"Welcome to viand"}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "5000")
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)
	id := primitive.NewObjectID()

	assertError(t, h.do(t, http.MethodGet, "/api/cards", "", ""), http.StatusUnauthorized, KindUnauthenticated, "No token, authorization denied")
	assertError(t, h.do(t, http.MethodGet, "/api/cards", "garbage", ""), http.StatusUnauthorized, KindUnauthenticated, "Token is not valid")

	expired := testutil.GenerateJWTHS256(t, testSecret, id.Hex(), -time.Minute)
	assertError(t, h.do(t, http.MethodGet, "/api/cards", expired, ""), http.StatusUnauthorized, KindUnauthenticated, "")

	noUser := testutil.GenerateJWTHS256(t, testSecret, "not-an-id", time.Hour)
	assertError(t, h.do(t, http.MethodDelete, "/api/cards/"+id.Hex(), noUser, ""), http.StatusUnauthorized, KindUnauthenticated, "")

	assert.Equal(t, 0, h.cards.Calls)
}

func TestLegacyHeaderAndForeignToken(t *testing.T) {
	h := newHarness(t)
	id := primitive.NewObjectID()

	req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
	req.Header.Set("x-auth-token", testutil.GenerateJWTHS256(t, testSecret, id.Hex(), time.Hour))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCardLifecycle(t *testing.T) {
	h := newHarness(t)
	owner, stranger := primitive.NewObjectID(), primitive.NewObjectID()
	ownerTok, strangerTok := h.token(t, owner), h.token(t, stranger)

	rec := h.do(t, http.MethodPost, "/api/cards", ownerTok, `{
		"name": "Cafe X",
		"zomato": "https://zomato.com/cafex",
		"menu": [{"food": "idli", "price": "40"}, {"food": "vada", "price": "undefined"}],
		"photos": [{"url": "https://img/1.png"}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created map[string]interface{}
	decodeBody(t, rec, &created)
	assert.Equal(t, owner.Hex(), created["user"])
	assert.Equal(t, false, created["beenThere"])
	assert.Nil(t, created["review"])
	assert.NotEmpty(t, created["date"])
	menu := created["menu"].([]interface{})
	require.Len(t, menu, 2)
	assert.Equal(t, float64(40), menu[0].(map[string]interface{})["price"])
	assert.NotContains(t, menu[1].(map[string]interface{}), "price")
	id := created["_id"].(string)

	// duplicate name
	rec = h.do(t, http.MethodPost, "/api/cards", strangerTok, `{"name":"Cafe X","zomato":"https://zomato.com/cafex"}`)
	assertError(t, rec, http.StatusConflict, KindConflict, "Place already exist")

	// list is scoped to the caller
	rec = h.do(t, http.MethodGet, "/api/cards", strangerTok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/cards", ownerTok, "")
	var list []models.Card
	decodeBody(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID.Hex())

	// read by id
	rec = h.do(t, http.MethodGet, "/api/cards/"+id, strangerTok, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// update
	rec = h.do(t, http.MethodPut, "/api/cards/"+id, ownerTok, `{"rating":"4"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.Card
	decodeBody(t, rec, &updated)
	assert.Equal(t, "4", updated.Rating)
	assert.Equal(t, "Cafe X", updated.Name)

	rec = h.do(t, http.MethodPut, "/api/cards/"+id, ownerTok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/api/cards/"+id, strangerTok, `{"rating":"1"}`)
	assertError(t, rec, http.StatusForbidden, KindForbidden, "Not Authorized")

	// delete
	rec = h.do(t, http.MethodDelete, "/api/cards/"+id, strangerTok, "")
	assertError(t, rec, http.StatusForbidden, KindForbidden, "Not Authorized")
	assert.Equal(t, 1, h.cards.Len())

	rec = h.do(t, http.MethodDelete, "/api/cards/"+id, ownerTok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"msg":"Card Removed"}`, rec.Body.String())
	assert.Equal(t, 0, h.cards.Len())

	rec = h.do(t, http.MethodGet, "/api/cards/"+id, ownerTok, "")
	assertError(t, rec, http.StatusNotFound, KindNotFound, "Card not found")
}

func TestCardRequestErrors(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, primitive.NewObjectID())

	assertError(t, h.do(t, http.MethodPost, "/api/cards", tok, `{"zomato":"https://zomato.com/x"}`),
		http.StatusBadRequest, KindValidation, "Name is required")
	assertError(t, h.do(t, http.MethodPost, "/api/cards", tok, `{"name":"x","zomato":"nope"}`),
		http.StatusBadRequest, KindValidation, "Enter correct URL")
	assertError(t, h.do(t, http.MethodPost, "/api/cards", tok, `{"name":"x",`),
		http.StatusBadRequest, KindValidation, "Invalid request body")
	assertError(t, h.do(t, http.MethodPost, "/api/cards", tok, `{"name":"x","zomato":"https://z.com","menu":[{"food":"a","price":"cheap"}]}`),
		http.StatusBadRequest, KindValidation, "Invalid request body")

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		assertError(t, h.do(t, method, "/api/cards/123", tok, ""), http.StatusBadRequest, KindValidation, "Invalid ID")
	}

	assertError(t, h.do(t, http.MethodPost, "/api/cards", tok, `{"name":"   ","zomato":"https://zomato.com/x"}`),
		http.StatusBadRequest, KindValidation, "Name is required")
	for _, link := range []string{"javascript:alert(1)", "mailto:a@b.c", "foo:bar"} {
		assertError(t, h.do(t, http.MethodPost, "/api/cards", tok, `{"name":"x","zomato":"`+link+`"}`),
			http.StatusBadRequest, KindValidation, "Enter correct URL")
	}
	assertError(t, h.do(t, http.MethodPost, "/api/cards", tok, `{"name":"x","zomato":"https://z.com","date":1e18}`),
		http.StatusBadRequest, KindValidation, "Enter a valid date")
	assert.Equal(t, 0, h.cards.Len())

	missing := primitive.NewObjectID().Hex()
	assertError(t, h.do(t, http.MethodPut, "/api/cards/"+missing, tok, `{"rating":"2"}`), http.StatusNotFound, KindNotFound, "")
	assertError(t, h.do(t, http.MethodPut, "/api/cards/"+missing, tok, `{"zomato":"nope"}`), http.StatusNotFound, KindNotFound, "")
	assertError(t, h.do(t, http.MethodDelete, "/api/cards/"+missing, tok, ""), http.StatusNotFound, KindNotFound, "")
}

func TestUpdateByStrangerIsForbiddenBeforeValidation(t *testing.T) {
	h := newHarness(t)
	owner := primitive.NewObjectID()
	zomato := "https://zomato.com/cafex"
	card := models.Card{ID: primitive.NewObjectID(), User: owner, Name: "Cafe X", Zomato: &zomato}
	require.NoError(t, h.cards.Put(card))
	strangerTok := h.token(t, primitive.NewObjectID())

	for _, body := range []string{`{"name":""}`, `{"name":"   "}`, `{"zomato":"nope"}`, `{"date":1e18}`} {
		rec := h.do(t, http.MethodPut, "/api/cards/"+card.ID.Hex(), strangerTok, body)
		assertError(t, rec, http.StatusForbidden, KindForbidden, "Not Authorized")
	}

	rec := h.do(t, http.MethodPut, "/api/cards/"+card.ID.Hex(), h.token(t, owner), `{"name":""}`)
	assertError(t, rec, http.StatusBadRequest, KindValidation, "Name is required")
}

func TestUnencodableResponseIsServerError(t *testing.T) {
	rec := httptest.NewRecorder()
	(&Handler{}).writeJSON(rec, http.StatusOK, []models.Card{{Name: "far future", Date: time.UnixMilli(1e18)}})
	assertError(t, rec, http.StatusInternalServerError, KindInternal, "Server Error")

	h := newHarness(t)
	owner := primitive.NewObjectID()
	card := models.Card{ID: primitive.NewObjectID(), User: owner, Name: "far future", Date: time.UnixMilli(1e18)}
	h.cards.PutRaw(card)

	rec = h.do(t, http.MethodGet, "/api/cards/"+card.ID.Hex(), h.token(t, owner), "")
	assertError(t, rec, http.StatusInternalServerError, KindInternal, "Server Error")
	rec = h.do(t, http.MethodGet, "/api/cards", h.token(t, owner), "")
	assertError(t, rec, http.StatusInternalServerError, KindInternal, "Server Error")
}

func TestStoreFailureIsOpaque(t *testing.T) {
	h := newHarness(t)
	h.cards.Fail = true

	rec := h.do(t, http.MethodGet, "/api/cards", h.token(t, primitive.NewObjectID()), "")
	assertError(t, rec, http.StatusInternalServerError, KindInternal, "Server Error")
	assert.NotContains(t, rec.Body.String(), testutil.ErrStoreDown.Error())
}

func TestScopedRead(t *testing.T) {
	h := newHarness(t, service.WithScopedRead(true))
	owner := primitive.NewObjectID()
	card := models.Card{ID: primitive.NewObjectID(), User: owner, Name: "Cafe X"}
	require.NoError(t, h.cards.Put(card))

	rec := h.do(t, http.MethodGet, "/api/cards/"+card.ID.Hex(), h.token(t, primitive.NewObjectID()), "")
	assertError(t, rec, http.StatusForbidden, KindForbidden, "")

	rec = h.do(t, http.MethodGet, "/api/cards/"+card.ID.Hex(), h.token(t, owner), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterLoginCurrentUser(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/users", "", `{"name":"Asha","email":"asha@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reg tokenResponse
	decodeBody(t, rec, &reg)
	require.NotEmpty(t, reg.Token)

	rec = h.do(t, http.MethodPost, "/api/users", "", `{"name":"Asha","email":"asha@example.com","password":"secret1"}`)
	assertError(t, rec, http.StatusConflict, KindConflict, "User already exists")

	rec = h.do(t, http.MethodPost, "/api/users", "", `{"name":"Asha","email":"asha@example.com","password":"123"}`)
	assertError(t, rec, http.StatusBadRequest, KindValidation, "Please enter a password with 6 or more characters")

	rec = h.do(t, http.MethodPost, "/api/auth", "", `{"email":"asha@example.com","password":"wrong-pass"}`)
	assertError(t, rec, http.StatusBadRequest, KindValidation, "Invalid Credentials")

	rec = h.do(t, http.MethodPost, "/api/auth", "", `{"email":"asha@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login tokenResponse
	decodeBody(t, rec, &login)

	rec = h.do(t, http.MethodGet, "/api/auth", login.Token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"email":"asha@example.com"`)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = h.do(t, http.MethodGet, "/api/auth", h.token(t, primitive.NewObjectID()), "")
	assertError(t, rec, http.StatusNotFound, KindNotFound, "User not found")
}

func TestCORS(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/cards", nil)
	req.Header.Set("Origin", "https://viand.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "x-auth-token")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "x-auth-token")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://viand.example")
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = h.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCardFeed(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	owner := primitive.NewObjectID()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/cards/feed?jwt=" + h.token(t, owner)

	_, rsp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/cards/feed", nil)
	require.Error(t, err)
	require.NotNil(t, rsp)
	assert.Equal(t, http.StatusUnauthorized, rsp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var hello comm.FeedMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello.Type)
	assert.NotEmpty(t, hello.SocketId)

	// another user's mutation must not reach this socket
	h.do(t, http.MethodPost, "/api/cards", h.token(t, primitive.NewObjectID()), `{"name":"Elsewhere","zomato":"https://zomato.com/e"}`)

	rec := h.do(t, http.MethodPost, "/api/cards", h.token(t, owner), `{"name":"Cafe X","zomato":"https://zomato.com/cafex"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var ev comm.CardEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, comm.CardCreated, ev.Type)
	assert.Equal(t, owner.Hex(), ev.Owner)
	require.NotNil(t, ev.Card)
	assert.Equal(t, "Cafe X", ev.Card.Name)
	assert.Equal(t, "test", ev.Instance)

	conn.Close()
	require.Eventually(t, func() bool {
		return len(h.hub.GetOwnerSockets(owner.Hex())) == 0
	}, 2*time.Second, 20*time.Millisecond)
}
