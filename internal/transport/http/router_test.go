package httptransport_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"canopy/internal/certificate"
	certhandler "canopy/internal/certificate/handler"
	"canopy/internal/credit"
	credithandler "canopy/internal/credit/handler"
	"canopy/internal/events"
	"canopy/internal/funds"
	"canopy/internal/identity"
	identityhandler "canopy/internal/identity/handler"
	"canopy/internal/market"
	markethandler "canopy/internal/market/handler"
	"canopy/internal/platform/token"
	"canopy/internal/reputation"
	rephandler "canopy/internal/reputation/handler"
	httptransport "canopy/internal/transport/http"
	id "canopy/pkg/domain"
)

const (
	adminAccount  = "acct-admin"
	issuerAccount = "acct-issuer"
	sellerAccount = "acct-seller"
	buyerAccount  = "acct-buyer"
)

// MarketplaceFlowSuite runs the full mint, fund, list, match, settle flow
// through the HTTP surface with every service wired the way main does it.
type MarketplaceFlowSuite struct {
	suite.Suite
	router http.Handler
	tokens *token.Service
}

func TestMarketplaceFlowSuite(t *testing.T) {
	suite.Run(t, new(MarketplaceFlowSuite))
}

func (s *MarketplaceFlowSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	eventStore := events.NewInMemoryStore()
	publisher := events.NewPublisher(eventStore)
	roles := identity.NewRegistry([]string{adminAccount}, []string{issuerAccount})
	ledger := funds.NewLedger()

	certSvc := certificate.NewService(
		certificate.NewInMemoryStore(),
		certificate.NewSigner("flow-test-secret"),
		roles,
		certificate.WithLogger(log),
		certificate.WithEventPublisher(publisher),
	)
	creditSvc := credit.NewService(
		credit.NewInMemoryStore(),
		roles,
		credit.WithLogger(log),
		credit.WithEventPublisher(publisher),
		credit.WithCertificateIssuer(certSvc),
	)
	repSvc := reputation.NewService(
		reputation.NewInMemoryStore(),
		roles,
		reputation.WithLogger(log),
		reputation.WithEventPublisher(publisher),
	)
	marketSvc := market.NewService(
		market.NewInMemoryStore(),
		market.NewInMemoryStatsStore(),
		creditSvc,
		ledger,
		250,
		market.WithLogger(log),
		market.WithEventPublisher(publisher),
		market.WithCertificateIssuer(certSvc),
		market.WithReputation(repSvc),
	)

	s.tokens = token.NewService("flow-test-jwt-key", "canopy")
	s.router = httptransport.NewRouter(log,
		credithandler.New(creditSvc, log, s.tokens),
		markethandler.New(marketSvc, log, s.tokens),
		certhandler.New(certSvc, log, s.tokens),
		rephandler.New(repSvc, log, s.tokens),
		identityhandler.New(roles, ledger, eventStore, log, s.tokens),
	)
}

func (s *MarketplaceFlowSuite) do(method, path, account string, payload any) *httptest.ResponseRecorder {
	s.T().Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		s.Require().NoError(err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		bearer, err := s.tokens.GenerateToken(id.AccountID(account), time.Hour)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *MarketplaceFlowSuite) decode(rec *httptest.ResponseRecorder, into any) {
	s.T().Helper()
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(into))
}

func (s *MarketplaceFlowSuite) TestHealthAndMetricsAreOpen() {
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *MarketplaceFlowSuite) TestExpiredTokenRejected() {
	bearer, err := s.tokens.GenerateToken(buyerAccount, -time.Minute)
	s.Require().NoError(err)
	req := httptest.NewRequest(http.MethodGet, "/credits", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *MarketplaceFlowSuite) TestMintListMatchSettle() {
	// Issuer mints eight tons for the seller.
	rec := s.do(http.MethodPost, "/credits", issuerAccount, map[string]any{
		"recipient":         sellerAccount,
		"project_id":        "proj-mangrove-12",
		"vintage_year":      2025,
		"methodology":       "VCS-0007",
		"amount":            8,
		"verification_hash": "1f2e3d4c",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var minted struct {
		ID int64 `json:"id"`
	}
	s.decode(rec, &minted)

	// Admin funds the buyer through the faucet.
	rec = s.do(http.MethodPost, "/admin/faucet", adminAccount, map[string]any{
		"account": buyerAccount,
		"amount":  10_000,
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	// Seller lists the credit at 300 per ton.
	rec = s.do(http.MethodPost, "/market/orders/sell", sellerAccount, map[string]any{
		"credit_ids":    []int64{minted.ID},
		"price_per_ton": 300,
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	// Buyer bids 300 for eight tons; the engine matches immediately.
	rec = s.do(http.MethodPost, "/market/orders/buy", buyerAccount, map[string]any{
		"price_per_ton": 300,
		"quantity":      8,
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var placed struct {
		ID             int64  `json:"id"`
		Status         string `json:"status"`
		FilledQuantity int64  `json:"filled_quantity"`
		SpentAmount    int64  `json:"spent_amount"`
	}
	s.decode(rec, &placed)
	s.Equal("filled", placed.Status)
	s.Equal(int64(8), placed.FilledQuantity)
	// 8 tons at 300 plus the 2.5% fee.
	s.Equal(int64(2460), placed.SpentAmount)

	// The credit now belongs to the buyer.
	rec = s.do(http.MethodGet, "/credits", buyerAccount, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var holdings struct {
		Credits []struct {
			ID    int64  `json:"id"`
			Owner string `json:"owner"`
		} `json:"credits"`
	}
	s.decode(rec, &holdings)
	s.Require().Len(holdings.Credits, 1)
	s.Equal(minted.ID, holdings.Credits[0].ID)

	// Seller was paid at the ask and the escrow remainder went back.
	rec = s.do(http.MethodGet, "/funds/balance", sellerAccount, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var balance struct {
		Balance int64 `json:"balance"`
	}
	s.decode(rec, &balance)
	s.Equal(int64(2400), balance.Balance)

	rec = s.do(http.MethodGet, "/funds/balance", buyerAccount, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &balance)
	s.Equal(int64(10_000-2460), balance.Balance)

	// The trade shows up in history and in the stats snapshot.
	rec = s.do(http.MethodGet, "/market/trades", buyerAccount, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var trades struct {
		Trades []struct {
			PricePerTon int64 `json:"price_per_ton"`
			Quantity    int64 `json:"quantity"`
			Fee         int64 `json:"fee"`
		} `json:"trades"`
	}
	s.decode(rec, &trades)
	s.Require().Len(trades.Trades, 1)
	s.Equal(int64(300), trades.Trades[0].PricePerTon)
	s.Equal(int64(60), trades.Trades[0].Fee)

	rec = s.do(http.MethodGet, "/market/stats", buyerAccount, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var stats struct {
		LastPrice  int64 `json:"last_price"`
		Volume24h  int64 `json:"volume_24h"`
		TradeCount int64 `json:"trade_count"`
	}
	s.decode(rec, &stats)
	s.Equal(int64(300), stats.LastPrice)
	s.Equal(int64(8), stats.Volume24h)
	s.Equal(int64(1), stats.TradeCount)

	// Settlement issued the buyer a purchase certificate.
	rec = s.do(http.MethodGet, "/certificates", buyerAccount, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var certs struct {
		Certificates []struct {
			Type string `json:"type"`
		} `json:"certificates"`
	}
	s.decode(rec, &certs)
	s.Require().Len(certs.Certificates, 1)
	s.Equal("purchase", certs.Certificates[0].Type)

	// Both parties picked up a successful transaction on their profiles.
	rec = s.do(http.MethodGet, "/reputation/"+sellerAccount, sellerAccount, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var profile struct {
		SuccessfulTransactions int64 `json:"successful_transactions"`
	}
	s.decode(rec, &profile)
	s.Equal(int64(1), profile.SuccessfulTransactions)

	// The buyer's event trail recorded the order and the settlement.
	rec = s.do(http.MethodGet, "/events", buyerAccount, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var trail struct {
		Events []struct {
			Action string `json:"action"`
		} `json:"events"`
	}
	s.decode(rec, &trail)
	actions := make([]string, 0, len(trail.Events))
	for _, e := range trail.Events {
		actions = append(actions, e.Action)
	}
	s.Contains(actions, "order_placed")
	s.Contains(actions, "trade_executed")
}

func (s *MarketplaceFlowSuite) TestRoleGrantFlow() {
	rec := s.do(http.MethodPost, "/admin/roles/grant", adminAccount, map[string]string{
		"account": sellerAccount,
		"role":    "issuer",
	})
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

	// The freshly granted issuer can mint.
	rec = s.do(http.MethodPost, "/credits", sellerAccount, map[string]any{
		"recipient":         sellerAccount,
		"project_id":        "proj-solar-03",
		"vintage_year":      2024,
		"methodology":       "GS-2201",
		"amount":            2,
		"verification_hash": "aa11bb22",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	// Non-admin grants are refused.
	rec = s.do(http.MethodPost, "/admin/roles/grant", sellerAccount, map[string]string{
		"account": buyerAccount,
		"role":    "issuer",
	})
	s.Equal(http.StatusForbidden, rec.Code)
}
