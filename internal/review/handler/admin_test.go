package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"worksign/internal/attachment"
	"worksign/internal/audit"
	"worksign/internal/customer"
	"worksign/internal/jwtauth"
	"worksign/internal/notify"
	"worksign/internal/platform/router"
	"worksign/internal/review"
	"worksign/internal/review/handler"
	"worksign/internal/review/service"
	"worksign/internal/review/store"
	"worksign/internal/workitem"
)

// AdminAPISuite exercises the authenticated back-office endpoints over HTTP.
type AdminAPISuite struct {
	suite.Suite

	now        time.Time
	server     *httptest.Server
	store      review.Store
	bearer     string
	contactID  uuid.UUID
	workItemID uuid.UUID
}

func TestAdminAPISuite(t *testing.T) {
	suite.Run(t, new(AdminAPISuite))
}

func (s *AdminAPISuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.store = store.NewMemory()
	workItems := workitem.NewInMemoryStore()
	customers := customer.NewInMemoryStore()
	publisher := audit.NewPublisher(audit.NewInMemoryStore(), log)
	issuer := service.NewIssuer(clock)

	gateway := service.NewGateway(s.store, workItems, attachment.NewInMemoryStore(), issuer, service.NewRecorder(clock), clock, nil, publisher, log)
	admin := service.NewAdmin(s.store, workItems, customers, issuer, clock,
		notify.NewLogDeliverer(log), publisher, log, "http://worksign.test", 72*time.Hour)

	jwtService := jwtauth.New("test-signing-key")
	mux := router.New(router.Deps{
		Public:    handler.NewPublic(gateway, log),
		Admin:     handler.NewAdmin(admin, log, clock),
		Validator: jwtService,
		Observer:  publisher,
		Logger:    log,
	})
	s.server = httptest.NewServer(mux)
	s.T().Cleanup(s.server.Close)

	token, err := jwtService.Sign("dispatcher@uprava", time.Hour)
	s.Require().NoError(err)
	s.bearer = "Bearer " + token

	contact := customer.Contact{ID: uuid.New(), Name: "Općina Test", Email: "uprava@opcina-test.hr"}
	customers.Seed(contact)
	s.contactID = contact.ID

	item := workitem.WorkItem{
		ID:            uuid.New(),
		Label:         "D12 km 4+200 pothole repair",
		OperationType: "asphalt_patching",
		Quantity:      34.5,
		Unit:          "m2",
		Status:        workitem.StatusCompleted,
	}
	workItems.Seed(item)
	s.workItemID = item.ID
}

func (s *AdminAPISuite) do(method, path, body string) (*http.Response, map[string]json.RawMessage) {
	req, err := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	s.Require().NoError(err)
	req.Header.Set("Authorization", s.bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var decoded map[string]json.RawMessage
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (s *AdminAPISuite) createRound() uuid.UUID {
	resp, body := s.do(http.MethodPost, "/internal/reviews",
		fmt.Sprintf(`{"work_item_id":%q,"public_note":"please confirm"}`, s.workItemID))
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var id uuid.UUID
	s.Require().NoError(json.Unmarshal(body["id"], &id))
	return id
}

func (s *AdminAPISuite) openRound(roundID uuid.UUID) string {
	resp, body := s.do(http.MethodPost, "/internal/reviews/"+roundID.String()+"/open",
		fmt.Sprintf(`{"recipient_id":%q}`, s.contactID))
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var link string
	s.Require().NoError(json.Unmarshal(body["link"], &link))
	return link
}

func (s *AdminAPISuite) TestAuthRequired() {
	resp, err := http.Post(s.server.URL+"/internal/reviews", "application/json", strings.NewReader(`{}`))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/internal/reviews", strings.NewReader(`{}`))
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err = http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *AdminAPISuite) TestCreateAndOpen() {
	roundID := s.createRound()
	link := s.openRound(roundID)
	s.True(strings.HasPrefix(link, "http://worksign.test/public/review/item/"), link)
	s.True(strings.HasSuffix(link, "/"))

	// The issued link works without any credentials.
	resp, err := http.Get(strings.Replace(link, "http://worksign.test", s.server.URL, 1))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *AdminAPISuite) TestCreateValidation() {
	resp, body := s.do(http.MethodPost, "/internal/reviews", `{"work_item_id":"not-a-uuid"}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	var code string
	s.Require().NoError(json.Unmarshal(body["code"], &code))
	s.Equal("BAD_REQUEST", code)
}

func (s *AdminAPISuite) TestVersionsIncrement() {
	first := s.createRound()
	second := s.createRound()
	s.NotEqual(first, second)

	resp, body := s.do(http.MethodGet, "/internal/reviews/"+second.String(), "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var round map[string]json.RawMessage
	s.Require().NoError(json.Unmarshal(body["round"], &round))
	var version int
	s.Require().NoError(json.Unmarshal(round["version"], &version))
	s.Equal(2, version)
}

func (s *AdminAPISuite) TestGetRoundDetail() {
	roundID := s.createRound()
	s.openRound(roundID)

	resp, body := s.do(http.MethodGet, "/internal/reviews/"+roundID.String(), "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var tokens []map[string]json.RawMessage
	s.Require().NoError(json.Unmarshal(body["tokens"], &tokens))
	s.Require().Len(tokens, 1)

	var state string
	s.Require().NoError(json.Unmarshal(tokens[0]["state"], &state))
	s.Equal("active", state)
}

func (s *AdminAPISuite) TestCancelRevokesTokens() {
	roundID := s.createRound()
	link := s.openRound(roundID)
	jti := linkJTI(link)

	resp, _ := s.do(http.MethodPost, "/internal/reviews/"+roundID.String()+"/cancel", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	token, err := s.store.Tokens().FindByJTI(context.Background(), jti)
	s.Require().NoError(err)
	s.NotNil(token.RevokedAt)
}

func (s *AdminAPISuite) TestRevokeToken() {
	roundID := s.createRound()
	jti := linkJTI(s.openRound(roundID))

	resp, body := s.do(http.MethodPost, "/internal/tokens/"+jti+"/revoke", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var revoked bool
	s.Require().NoError(json.Unmarshal(body["revoked"], &revoked))
	s.True(revoked)

	// Second revocation is an idempotent no-op.
	resp, body = s.do(http.MethodPost, "/internal/tokens/"+jti+"/revoke", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().NoError(json.Unmarshal(body["revoked"], &revoked))
	s.False(revoked)
}

func (s *AdminAPISuite) TestSweepExpired() {
	// A round with a deadline that will pass.
	deadline := s.now.Add(24 * time.Hour)
	resp, body := s.do(http.MethodPost, "/internal/reviews",
		fmt.Sprintf(`{"work_item_id":%q,"deadline":%q}`, s.workItemID, deadline.Format(time.RFC3339)))
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var roundID uuid.UUID
	s.Require().NoError(json.Unmarshal(body["id"], &roundID))
	s.openRound(roundID)

	s.now = s.now.Add(48 * time.Hour)
	resp, body = s.do(http.MethodPost, "/internal/reviews/sweep-expired", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var expired int
	s.Require().NoError(json.Unmarshal(body["expired"], &expired))
	s.Equal(1, expired)

	round, err := s.store.Rounds().FindByID(context.Background(), roundID)
	s.Require().NoError(err)
	s.Equal(review.StatusExpired, round.Status)

	// The round's tokens are revoked along with it; their own TTL may not
	// have run out yet.
	tokens, err := s.store.Tokens().ListByRound(context.Background(), roundID)
	s.Require().NoError(err)
	s.Require().NotEmpty(tokens)
	for _, token := range tokens {
		s.NotNil(token.RevokedAt)
	}
}

func linkJTI(link string) string {
	trimmed := strings.TrimSuffix(link, "/")
	return trimmed[strings.LastIndex(trimmed, "/")+1:]
}
