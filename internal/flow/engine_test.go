package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/agencybot/internal/chain"
	"github.com/ggonzalez94/agencybot/internal/chain/chaintest"
	"github.com/ggonzalez94/agencybot/internal/execution"
	"github.com/ggonzalez94/agencybot/internal/httpx"
	"github.com/ggonzalez94/agencybot/internal/id"
	"github.com/ggonzalez94/agencybot/internal/indexer"
	"github.com/ggonzalez94/agencybot/internal/keyvault"
	"github.com/ggonzalez94/agencybot/internal/metrics"
	"github.com/ggonzalez94/agencybot/internal/policy"
	"github.com/ggonzalez94/agencybot/internal/registry"
	"github.com/ggonzalez94/agencybot/internal/session"
	"github.com/ggonzalez94/agencybot/internal/store"
	"github.com/ggonzalez94/agencybot/internal/txrouter"
)

const (
	testMnemonic = "tag volcano eight thank tide danger coast health above argue embrace heavy"
	testUser     = int64(2001)
	otherUser    = int64(2002)
)

var (
	testAgency   = common.HexToAddress("0x00000000000000000000000000000000000a6e01")
	testApp      = common.HexToAddress("0x00000000000000000000000000000000000a9901")
	testToken    = common.HexToAddress("0x0000000000000000000000000000000000070c01")
	testRouter   = common.HexToAddress("0x000000000000000000000000000000000000e011")
	testStranger = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type fixture struct {
	backend  *chaintest.Backend
	repo     *store.Repository
	vault    *keyvault.Vault
	reader   *chain.Reader
	indexer  *indexer.Client
	router   *txrouter.Router
	sessions *session.SQLiteStore
	engine   *Engine
}

// newFixture wires the engine to real components over an in-memory chain
// and a fake indexer that knows exactly one agency settled in currency.
func newFixture(t *testing.T, currency common.Address) *fixture {
	t.Helper()
	ctx := context.Background()
	tmp := t.TempDir()

	backend := chaintest.New(11155111)
	multicall := common.HexToAddress(registry.Multicall3)
	backend.ServeMulticall(multicall, chain.MulticallABI)

	repo, err := store.Open(ctx, "sqlite", filepath.Join(tmp, "agencybot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	vault, err := keyvault.New(repo, testMnemonic, keyvault.Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	t.Cleanup(vault.Close)
	sessions, err := session.OpenSQLite(filepath.Join(tmp, "sessions.db"), filepath.Join(tmp, "sessions.lock"), time.Minute)
	if err != nil {
		t.Fatalf("open sessions: %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	srv := newIndexerServer(t, currency)
	reader := chain.NewReader(backend, 11155111, multicall, repo, zerolog.Nop())
	executor := execution.NewExecutor(backend, nil, execution.DefaultExecuteOptions(), zerolog.Nop())
	router := txrouter.New(txrouter.Config{Chain: id.ChainFromID(11155111), Router: testRouter}, reader, vault, policy.NewAuthorizer(vault, reader), executor)
	idx := indexer.New(httpx.New(2*time.Second, 0), srv.URL)

	asset := struct {
		Currency       common.Address
		BasePremium    *big.Int
		FeeRecipient   common.Address
		MintFeePercent uint16
		BurnFeePercent uint16
	}{currency, big.NewInt(1_000), testStranger, 250, 200}
	backend.Handle(testAgency, chain.AgencyABI, "getStrategy", chaintest.Returns(testApp, asset, []byte{}))
	backend.Handle(testAgency, chain.AgencyABI, "getWrapOracle", chaintest.Returns(big.NewInt(1_000), big.NewInt(25)))
	backend.Handle(testAgency, chain.AgencyABI, "getUnwrapOracle", chaintest.Returns(big.NewInt(900), big.NewInt(20)))
	backend.Handle(testApp, chain.AppABI, "name", chaintest.Returns("dot"))
	backend.Handle(testApp, chain.AppABI, "symbol", chaintest.Returns("DOT"))
	backend.Handle(testApp, chain.AppABI, "totalSupply", chaintest.Returns(big.NewInt(3)))
	backend.Handle(testApp, chain.AppABI, "getMaxSupply", chaintest.Returns(big.NewInt(100)))
	backend.Handle(testApp, chain.AppABI, "isRecordExists", chaintest.Returns(false))
	backend.Handle(testToken, chain.ERC20ABI, "symbol", chaintest.Returns("USDC"))
	backend.Handle(testToken, chain.ERC20ABI, "decimals", chaintest.Returns(uint8(6)))

	f := &fixture{backend: backend, repo: repo, vault: vault, reader: reader, indexer: idx, router: router, sessions: sessions}
	f.engine = New(repo, vault, reader, idx, router, sessions, WithMetrics(metrics.New()))
	return f
}

func newIndexerServer(t *testing.T, currency common.Address) *httptest.Server {
	t.Helper()
	symbol, decimals := "ETH", 18
	if currency != (common.Address{}) {
		symbol, decimals = "USDC", 6
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode indexer request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if !strings.Contains(req.Query, "dotAgencies") {
			_, _ = w.Write([]byte(`{"data":{"tokens":[{"tokenId":"7","name":"alice"}]}}`))
			return
		}
		if req.Variables["agency"] != strings.ToLower(testAgency.Hex()) {
			_, _ = w.Write([]byte(`{"data":{"dotAgencies":[]}}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"data":{"dotAgencies":[{
			"agencyInstance":{"id":%q,"mintFeePercent":250,"burnFeePercent":200,"swap":"1000","tvl":"5000","fee":"25",
				"currency":{"id":%q,"decimals":%d,"symbol":%q}},
			"appInstance":{"id":%q,"name":"dot","totalSupply":"3"},
			"mintPrice":"1025"}]}}`,
			strings.ToLower(testAgency.Hex()), strings.ToLower(currency.Hex()), decimals, symbol, strings.ToLower(testApp.Hex()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fixture) send(t *testing.T, externalID int64, line string) Reply {
	t.Helper()
	return f.engine.Handle(context.Background(), ParseInput(externalID, line))
}

func (f *fixture) userAddress(t *testing.T, externalID int64) common.Address {
	t.Helper()
	addr, err := f.vault.ResolveAddress(context.Background(), externalID)
	if err != nil {
		t.Fatalf("resolve address: %v", err)
	}
	return addr
}

// addAndSelect runs the add-agency flow and opens the agency overview.
func (f *fixture) addAndSelect(t *testing.T) Reply {
	t.Helper()
	if r := f.send(t, testUser, "/add"); r.Kind != KindPrompt {
		t.Fatalf("expected address prompt, got %+v", r)
	}
	if r := f.send(t, testUser, testAgency.Hex()); r.Kind != KindResult {
		t.Fatalf("expected agency to be added, got %+v", r)
	}
	r := f.send(t, testUser, "/select "+testAgency.Hex())
	if r.Kind != KindMenu {
		t.Fatalf("expected agency overview, got %+v", r)
	}
	return r
}

func fieldValue(r Reply, label string) string {
	for _, f := range r.Fields {
		if f.Label == label {
			return f.Value
		}
	}
	return ""
}

func hasButton(r Reply, action Action) bool {
	for _, b := range r.Buttons {
		if b.Action == action {
			return true
		}
	}
	return false
}

func TestStartCreatesOneDerivedAccountPerUser(t *testing.T) {
	f := newFixture(t, common.Address{})
	ctx := context.Background()

	first := f.send(t, testUser, "/start")
	if first.Kind != KindMenu {
		t.Fatalf("expected menu, got %+v", first)
	}
	acct, ok, err := f.repo.GetAccount(ctx, testUser)
	if err != nil || !ok {
		t.Fatalf("expected account row, ok=%v err=%v", ok, err)
	}
	if !acct.Derived() || !strings.EqualFold(acct.Address, fieldValue(first, "Address")) {
		t.Fatalf("expected stored derived address, got %+v reply=%+v", acct, first)
	}

	again := f.send(t, testUser, "/start")
	if fieldValue(again, "Address") != fieldValue(first, "Address") {
		t.Fatalf("address changed between calls: %s vs %s", fieldValue(first, "Address"), fieldValue(again, "Address"))
	}
	other := f.send(t, otherUser, "/start")
	if fieldValue(other, "Address") == fieldValue(first, "Address") {
		t.Fatal("expected distinct addresses for distinct users")
	}
	otherAcct, _, _ := f.repo.GetAccount(ctx, otherUser)
	if otherAcct.ID == acct.ID {
		t.Fatalf("expected distinct derivation indexes, both %d", acct.ID)
	}
}

func TestAddAgencyUnknownToIndexerCreatesNothing(t *testing.T) {
	f := newFixture(t, common.Address{})
	ctx := context.Background()

	f.send(t, testUser, "/add")
	r := f.send(t, testUser, testStranger.Hex())
	if r.Kind != KindInfo || !strings.Contains(r.Text, "not found") {
		t.Fatalf("expected not found reply, got %+v", r)
	}
	if acct, ok, err := f.repo.GetAccount(ctx, testUser); err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	} else if ok {
		subs, err := f.repo.ListAgencies(ctx, acct.ID)
		if err != nil || len(subs) != 0 {
			t.Fatalf("expected no agencies, got %d err=%v", len(subs), err)
		}
	}
	if _, ok, _ := f.sessions.Get(ctx, testUser); ok {
		t.Fatal("expected session to be discarded")
	}
}

func TestAddAgencyPersistsSubscription(t *testing.T) {
	f := newFixture(t, common.Address{})
	ctx := context.Background()

	f.send(t, testUser, "/add")
	r := f.send(t, testUser, testAgency.Hex())
	if r.Kind != KindResult {
		t.Fatalf("expected result, got %+v", r)
	}
	if fieldValue(r, "Name") != "dot" || fieldValue(r, "Mint fee") != "2.5%" || fieldValue(r, "Burn fee") != "2%" {
		t.Fatalf("unexpected agency fields %+v", r.Fields)
	}
	acct, _, _ := f.repo.GetAccount(ctx, testUser)
	sub, ok, err := f.repo.GetAgency(ctx, acct.ID, testAgency.Hex())
	if err != nil || !ok {
		t.Fatalf("expected subscription, ok=%v err=%v", ok, err)
	}
	if sub.AgencyName != "dot" || !strings.EqualFold(sub.AgentAddress, testApp.Hex()) {
		t.Fatalf("unexpected subscription %+v", sub)
	}
	sess, ok, _ := f.sessions.Get(ctx, testUser)
	if !ok || sess.Active() || !strings.EqualFold(sess.AgencyAddress, testAgency.Hex()) {
		t.Fatalf("expected idle session with agency selected, got %+v ok=%v", sess, ok)
	}
}

func TestAddAgencyMalformedAddressRejected(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.send(t, testUser, "/add")
	r := f.send(t, testUser, "not-an-address")
	if r.Kind != KindError || r.ErrorType != "input_validation" {
		t.Fatalf("expected validation error, got %+v", r)
	}
	if _, ok, _ := f.sessions.Get(context.Background(), testUser); ok {
		t.Fatal("expected session to be discarded")
	}
}

func TestSelectAgencyOverview(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.backend.SetBalance(f.userAddress(t, testUser), big.NewInt(2_000))

	r := f.addAndSelect(t)
	if fieldValue(r, "Wrap total") != "0.000000000000001025 ETH" {
		t.Fatalf("unexpected wrap total %q", fieldValue(r, "Wrap total"))
	}
	if fieldValue(r, "Unwrap proceeds") != "0.00000000000000088 ETH" {
		t.Fatalf("unexpected unwrap proceeds %q", fieldValue(r, "Unwrap proceeds"))
	}
	if !hasButton(r, ActionWrap) || hasButton(r, ActionApprove) {
		t.Fatalf("unexpected buttons %+v", r.Buttons)
	}
	sess, ok, _ := f.sessions.Get(context.Background(), testUser)
	if !ok || sess.WrapPrice != "1025" || sess.UnwrapProceeds != "" {
		t.Fatalf("expected only the wrap quote in session, got %+v", sess)
	}
}

func TestSelectAgencyWithoutBalanceHidesWrap(t *testing.T) {
	f := newFixture(t, common.Address{})
	r := f.addAndSelect(t)
	if hasButton(r, ActionWrap) || !hasButton(r, ActionDelete) {
		t.Fatalf("unexpected buttons %+v", r.Buttons)
	}
	if !strings.Contains(r.Text, "does not cover") {
		t.Fatalf("expected balance hint, got %q", r.Text)
	}
}

func TestSelectAgencyNotInListRejected(t *testing.T) {
	f := newFixture(t, common.Address{})
	r := f.send(t, testUser, "/select "+testAgency.Hex())
	if r.Kind != KindError || r.ErrorType != "input_validation" {
		t.Fatalf("expected validation error, got %+v", r)
	}
}

func TestWrapBelowQuoteAbortsWithoutSending(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.backend.SetBalance(f.userAddress(t, testUser), big.NewInt(2_000))
	f.backend.Handle(testAgency, chain.AgencyABI, "wrap", chaintest.Returns(big.NewInt(4)))
	f.addAndSelect(t)

	if r := f.send(t, testUser, "/wrap"); r.Kind != KindPrompt || !strings.Contains(r.Text, "ETH") {
		t.Fatalf("expected max cost prompt, got %+v", r)
	}
	if r := f.send(t, testUser, "0.000000000000001024"); r.Kind != KindPrompt {
		t.Fatalf("expected name prompt, got %+v", r)
	}
	r := f.send(t, testUser, "alice")
	if r.Kind != KindError || r.ErrorType != "slippage_exceeded" {
		t.Fatalf("expected slippage exceeded, got %+v", r)
	}
	if len(f.backend.Sent()) != 0 {
		t.Fatalf("expected no broadcast, got %d", len(f.backend.Sent()))
	}
	if _, ok, _ := f.sessions.Get(context.Background(), testUser); ok {
		t.Fatal("expected session to be discarded")
	}
}

func TestWrapNativeAgency(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.backend.SetBalance(f.userAddress(t, testUser), big.NewInt(2_000))
	f.backend.Handle(testAgency, chain.AgencyABI, "wrap", chaintest.Returns(big.NewInt(4)))
	f.addAndSelect(t)

	f.send(t, testUser, "/wrap")
	f.send(t, testUser, "0.000000000000001025")
	r := f.send(t, testUser, "Alice")
	if r.Kind != KindResult {
		t.Fatalf("expected wrap result, got %+v", r)
	}
	sent := f.backend.Sent()
	if len(sent) != 1 || *sent[0].To() != testAgency {
		t.Fatalf("expected one tx to the agency, got %d", len(sent))
	}
	if fieldValue(r, "Token ID") != "4" || fieldValue(r, "Name") != "alice" || r.TxHash != sent[0].Hash().Hex() {
		t.Fatalf("unexpected result %+v", r)
	}
	sess, ok, _ := f.sessions.Get(context.Background(), testUser)
	if !ok || sess.Active() || !strings.EqualFold(sess.AgencyAddress, testAgency.Hex()) {
		t.Fatalf("expected finished session keeping the agency, got %+v", sess)
	}
}

func TestWrapTakenNameRejected(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.backend.SetBalance(f.userAddress(t, testUser), big.NewInt(2_000))
	f.backend.Handle(testApp, chain.AppABI, "isRecordExists", chaintest.Returns(true))
	f.backend.Handle(testAgency, chain.AgencyABI, "wrap", chaintest.Returns(big.NewInt(4)))
	f.addAndSelect(t)

	f.send(t, testUser, "/wrap")
	f.send(t, testUser, "0.000000000000001025")
	r := f.send(t, testUser, "alice")
	if r.Kind != KindError || !strings.Contains(r.Text, "taken") {
		t.Fatalf("expected taken-name error, got %+v", r)
	}
	if len(f.backend.Sent()) != 0 {
		t.Fatal("expected no broadcast")
	}
}

func TestWrapInvalidMaxCostAborts(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.addAndSelect(t)
	f.send(t, testUser, "/wrap")
	r := f.send(t, testUser, "a lot")
	if r.Kind != KindError || r.ErrorType != "input_validation" {
		t.Fatalf("expected validation error, got %+v", r)
	}
	if r := f.send(t, testUser, "alice"); r.ErrorType != "usage_error" {
		t.Fatalf("expected no flow to be waiting, got %+v", r)
	}
}

func TestWrapRouterPathWithUnlimitedAllowance(t *testing.T) {
	f := newFixture(t, testToken)
	f.backend.Handle(testToken, chain.ERC20ABI, "allowance", chaintest.Returns(math.MaxBig256))
	f.backend.Handle(testToken, chain.ERC20ABI, "balanceOf", chaintest.Returns(big.NewInt(5_000)))
	f.backend.Handle(testRouter, chain.RouterABI, "wrap", func(args []any, msg ethereum.CallMsg) ([]any, error) {
		if args[0].(common.Address) != testAgency || args[2].(string) != "bob" {
			t.Errorf("unexpected router args %v", args)
		}
		return []any{big.NewInt(9)}, nil
	})

	overview := f.addAndSelect(t)
	if !hasButton(overview, ActionWrap) || fieldValue(overview, "Router approved") != "yes" {
		t.Fatalf("expected wrap to be offered, got %+v", overview)
	}
	if r := f.send(t, testUser, "/wrap"); !strings.Contains(r.Text, "USDC") {
		t.Fatalf("expected prompt in USDC, got %+v", r)
	}
	f.send(t, testUser, "0.002")
	r := f.send(t, testUser, "bob")
	if r.Kind != KindResult || fieldValue(r, "Token ID") != "9" {
		t.Fatalf("expected router wrap result, got %+v", r)
	}
	sent := f.backend.Sent()
	if len(sent) != 1 || *sent[0].To() != testRouter {
		t.Fatalf("expected one tx to the router, got %d", len(sent))
	}
	if r.TxHash != sent[0].Hash().Hex() {
		t.Fatalf("unexpected tx hash %s", r.TxHash)
	}
}

func TestSelectOffersApproveAndApproveSends(t *testing.T) {
	f := newFixture(t, testToken)
	f.backend.Handle(testToken, chain.ERC20ABI, "allowance", chaintest.Returns(big.NewInt(0)))
	f.backend.Handle(testToken, chain.ERC20ABI, "balanceOf", chaintest.Returns(big.NewInt(5_000)))
	f.backend.Handle(testToken, chain.ERC20ABI, "approve", chaintest.Returns(true))

	overview := f.addAndSelect(t)
	if !hasButton(overview, ActionApprove) || hasButton(overview, ActionWrap) {
		t.Fatalf("expected approve instead of wrap, got %+v", overview.Buttons)
	}
	r := f.send(t, testUser, "/approve")
	if r.Kind != KindResult || r.TxHash == "" {
		t.Fatalf("expected approval result, got %+v", r)
	}
	if sent := f.backend.Sent(); len(sent) != 1 || *sent[0].To() != testToken {
		t.Fatalf("expected one approval tx, got %d", len(sent))
	}
}

func TestUnwrapDeniedForStranger(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.backend.Handle(testApp, chain.AppABI, "ownerOf", chaintest.Returns(testStranger))
	f.backend.Handle(testApp, chain.AppABI, "getApproved", chaintest.Returns(common.Address{}))
	f.backend.Handle(testApp, chain.AppABI, "isApprovedForAll", chaintest.Returns(false))
	f.backend.Handle(testAgency, chain.AgencyABI, "unwrap", chaintest.Returns())
	f.addAndSelect(t)

	r := f.send(t, testUser, "/unwrap 7")
	if r.Kind != KindError || r.ErrorType != "authorization_denied" {
		t.Fatalf("expected authorization denied, got %+v", r)
	}
	if len(f.backend.Sent()) != 0 {
		t.Fatal("expected no broadcast")
	}
}

func TestUnwrapOwnedToken(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.backend.Handle(testApp, chain.AppABI, "ownerOf", chaintest.Returns(f.userAddress(t, testUser)))
	f.backend.Handle(testAgency, chain.AgencyABI, "unwrap", chaintest.Returns())
	f.addAndSelect(t)

	if r := f.send(t, testUser, "/unwrap"); r.Kind != KindPrompt {
		t.Fatalf("expected token id prompt, got %+v", r)
	}
	r := f.send(t, testUser, "7")
	if r.Kind != KindResult || fieldValue(r, "Proceeds") != "0.00000000000000088 ETH" {
		t.Fatalf("expected unwrap result, got %+v", r)
	}
	if sent := f.backend.Sent(); len(sent) != 1 || *sent[0].To() != testAgency {
		t.Fatalf("expected one tx to the agency, got %d", len(sent))
	}
}

func TestConsecutiveUnwrapsFollowFallingCurve(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.backend.Handle(testApp, chain.AppABI, "ownerOf", chaintest.Returns(f.userAddress(t, testUser)))
	f.backend.Handle(testAgency, chain.AgencyABI, "unwrap", chaintest.Returns())
	f.addAndSelect(t)

	if r := f.send(t, testUser, "/unwrap 7"); r.Kind != KindResult {
		t.Fatalf("expected first unwrap to succeed, got %+v", r)
	}
	sess, ok, _ := f.sessions.Get(context.Background(), testUser)
	if !ok || sess.UnwrapProceeds != "" || sess.WrapPrice != "" {
		t.Fatalf("expected quotes to be dropped after the flow, got %+v", sess)
	}

	f.backend.Handle(testAgency, chain.AgencyABI, "getUnwrapOracle", chaintest.Returns(big.NewInt(899), big.NewInt(20)))
	r := f.send(t, testUser, "/unwrap 8")
	if r.Kind != KindResult || fieldValue(r, "Proceeds") != "0.000000000000000879 ETH" {
		t.Fatalf("expected second unwrap at the lower quote, got %+v", r)
	}
	if len(f.backend.Sent()) != 2 {
		t.Fatalf("expected two broadcasts, got %d", len(f.backend.Sent()))
	}
}

func TestUnwrapPromptQuotesProceedsAndBoundsFlow(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.backend.Handle(testApp, chain.AppABI, "ownerOf", chaintest.Returns(f.userAddress(t, testUser)))
	f.backend.Handle(testAgency, chain.AgencyABI, "unwrap", chaintest.Returns())
	f.addAndSelect(t)

	r := f.send(t, testUser, "/unwrap")
	if r.Kind != KindPrompt || fieldValue(r, "Quoted proceeds") != "0.00000000000000088 ETH" {
		t.Fatalf("expected quoted prompt, got %+v", r)
	}
	f.backend.Handle(testAgency, chain.AgencyABI, "getUnwrapOracle", chaintest.Returns(big.NewInt(899), big.NewInt(20)))
	r = f.send(t, testUser, "7")
	if r.ErrorType != "slippage_exceeded" {
		t.Fatalf("expected proceeds below the quoted bound to abort, got %+v", r)
	}
	if len(f.backend.Sent()) != 0 {
		t.Fatal("expected no broadcast")
	}
}

func TestUnwrapRequiresSelectedAgency(t *testing.T) {
	f := newFixture(t, common.Address{})
	r := f.send(t, testUser, "/unwrap 7")
	if r.Kind != KindError || !strings.Contains(r.Text, "select an agency") {
		t.Fatalf("expected selection hint, got %+v", r)
	}
}

func TestCheckDescribesStrategy(t *testing.T) {
	f := newFixture(t, common.Address{})
	r := f.send(t, testUser, "/check "+testAgency.Hex())
	if r.Kind != KindInfo {
		t.Fatalf("expected details, got %+v", r)
	}
	if fieldValue(r, "Agency name") != "dot" || fieldValue(r, "Currency") != "ETH" || fieldValue(r, "Max supply") != "100" {
		t.Fatalf("unexpected details %+v", r.Fields)
	}
	if fieldValue(r, "Mint fee") != "2.5%" {
		t.Fatalf("unexpected mint fee %q", fieldValue(r, "Mint fee"))
	}
}

func TestHeldTokensListsIndexedTokens(t *testing.T) {
	f := newFixture(t, common.Address{})
	r := f.send(t, testUser, "/tokens "+testAgency.Hex())
	if r.Kind != KindMenu || fieldValue(r, "#7") != "alice" {
		t.Fatalf("expected held tokens, got %+v", r)
	}
	if len(r.Buttons) != 1 || r.Buttons[0].Command() != "/unwrap 7" {
		t.Fatalf("unexpected buttons %+v", r.Buttons)
	}
	sess, ok, _ := f.sessions.Get(context.Background(), testUser)
	if !ok || !strings.EqualFold(sess.AgencyAddress, testAgency.Hex()) {
		t.Fatalf("expected agency to be selected, got %+v", sess)
	}
}

func TestDeleteAgency(t *testing.T) {
	f := newFixture(t, common.Address{})
	ctx := context.Background()
	f.addAndSelect(t)

	if r := f.send(t, testUser, "/delete"); r.Kind != KindResult {
		t.Fatalf("expected delete result, got %+v", r)
	}
	acct, _, _ := f.repo.GetAccount(ctx, testUser)
	if _, ok, _ := f.repo.GetAgency(ctx, acct.ID, testAgency.Hex()); ok {
		t.Fatal("expected subscription to be removed")
	}
	sess, _, _ := f.sessions.Get(ctx, testUser)
	if sess.AgencyAddress != "" {
		t.Fatalf("expected agency to be deselected, got %+v", sess)
	}
	if r := f.send(t, testUser, "/delete "+testAgency.Hex()); r.ErrorType != "input_validation" {
		t.Fatalf("expected second delete to fail, got %+v", r)
	}
}

func TestWalletAndKeyExport(t *testing.T) {
	f := newFixture(t, common.Address{})
	addr := f.userAddress(t, testUser)
	f.backend.SetBalance(addr, big.NewInt(2_000))

	r := f.send(t, testUser, "/wallet")
	if fieldValue(r, "Address") != addr.Hex() || fieldValue(r, "Balance") != "0.000000000000002 ETH" {
		t.Fatalf("unexpected wallet %+v", r.Fields)
	}
	key := f.send(t, testUser, "/key")
	if key.Kind != KindSecret || fieldValue(key, "Private key") == "" {
		t.Fatalf("expected exported key, got %+v", key)
	}
	if again := f.send(t, testUser, "/key"); again.ErrorType != "rate_limited" {
		t.Fatalf("expected second export to be limited, got %+v", again)
	}
}

func TestCancelAndStrayInput(t *testing.T) {
	f := newFixture(t, common.Address{})

	if r := f.send(t, testUser, "hello"); r.ErrorType != "usage_error" {
		t.Fatalf("expected stray text to be rejected, got %+v", r)
	}
	if r := f.send(t, testUser, "/frobnicate"); r.ErrorType != "usage_error" {
		t.Fatalf("expected unknown command to be rejected, got %+v", r)
	}
	f.send(t, testUser, "/add")
	if r := f.send(t, testUser, "/cancel"); r.Kind != KindInfo {
		t.Fatalf("expected cancel confirmation, got %+v", r)
	}
	if sess, _, _ := f.sessions.Get(context.Background(), testUser); sess.Active() {
		t.Fatalf("expected no active flow, got %+v", sess)
	}
}

func TestStartingFlowSupersedesPrevious(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.addAndSelect(t)
	f.send(t, testUser, "/wrap")
	f.send(t, testUser, "/add")

	sess, ok, _ := f.sessions.Get(context.Background(), testUser)
	if !ok || sess.Flow != session.FlowAddAgency || sess.Step != session.StepAwaitingAddress {
		t.Fatalf("expected add-agency flow to replace wrap, got %+v", sess)
	}
}

// memSessions is a session store with a controllable clock.
type memSessions struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  time.Time
	data map[int64]session.Session
}

func (m *memSessions) Get(_ context.Context, externalID int64) (session.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[externalID]
	if !ok || s.Expired(m.now) {
		delete(m.data, externalID)
		return session.Session{}, false, nil
	}
	return s, true, nil
}

func (m *memSessions) Put(_ context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ExpiresAt = m.now.Add(m.ttl)
	m.data[s.ExternalID] = s
	return nil
}

func (m *memSessions) Delete(_ context.Context, externalID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, externalID)
	return nil
}

func (m *memSessions) Close() error { return nil }

func (m *memSessions) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func TestExpiredFlowMustRestart(t *testing.T) {
	f := newFixture(t, common.Address{})
	ctx := context.Background()
	mem := &memSessions{ttl: time.Minute, now: time.Now(), data: map[int64]session.Session{}}
	engine := New(f.repo, f.vault, f.reader, f.indexer, f.router, mem)

	if r := engine.Handle(ctx, ParseInput(testUser, "/add")); r.Kind != KindPrompt {
		t.Fatalf("expected prompt, got %+v", r)
	}
	mem.advance(2 * time.Minute)
	r := engine.Handle(ctx, ParseInput(testUser, testAgency.Hex()))
	if r.ErrorType != "usage_error" {
		t.Fatalf("expected expired flow to need a restart, got %+v", r)
	}
	if acct, ok, _ := f.repo.GetAccount(ctx, testUser); ok {
		if subs, _ := f.repo.ListAgencies(ctx, acct.ID); len(subs) != 0 {
			t.Fatalf("expected no agency after expiry, got %d", len(subs))
		}
	}
}

type scriptTransport struct {
	mu      sync.Mutex
	inputs  []Input
	replies map[int64][]Reply
}

func (s *scriptTransport) Receive(context.Context) (Input, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inputs) == 0 {
		return Input{}, io.EOF
	}
	in := s.inputs[0]
	s.inputs = s.inputs[1:]
	return in, nil
}

func (s *scriptTransport) Send(_ context.Context, externalID int64, reply Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[externalID] = append(s.replies[externalID], reply)
	return nil
}

func TestServeAnswersEachUserInOrder(t *testing.T) {
	f := newFixture(t, common.Address{})
	tr := &scriptTransport{
		inputs: []Input{
			ParseInput(testUser, "/add"),
			ParseInput(otherUser, "/start"),
			ParseInput(testUser, "garbage"),
			ParseInput(otherUser, "/cancel"),
		},
		replies: map[int64][]Reply{},
	}
	if err := f.engine.Serve(context.Background(), tr); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	first := tr.replies[testUser]
	if len(first) != 2 || first[0].Kind != KindPrompt || first[1].ErrorType != "input_validation" {
		t.Fatalf("unexpected replies for first user %+v", first)
	}
	second := tr.replies[otherUser]
	if len(second) != 2 || second[0].Kind != KindMenu || second[1].Kind != KindInfo {
		t.Fatalf("unexpected replies for second user %+v", second)
	}
}

// stalledReader holds every balance read until release is closed.
type stalledReader struct {
	*chain.Reader
	release chan struct{}
}

func (s stalledReader) Balance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	<-s.release
	return s.Reader.Balance(ctx, token, owner)
}

type chanTransport struct {
	in      chan Input
	mu      sync.Mutex
	replies map[int64][]Reply
	got     chan int64
}

func newChanTransport() *chanTransport {
	return &chanTransport{in: make(chan Input, 64), replies: map[int64][]Reply{}, got: make(chan int64, 64)}
}

func (c *chanTransport) Receive(ctx context.Context) (Input, error) {
	select {
	case in, ok := <-c.in:
		if !ok {
			return Input{}, io.EOF
		}
		return in, nil
	case <-ctx.Done():
		return Input{}, ctx.Err()
	}
}

func (c *chanTransport) Send(_ context.Context, externalID int64, reply Reply) error {
	c.mu.Lock()
	c.replies[externalID] = append(c.replies[externalID], reply)
	c.mu.Unlock()
	select {
	case c.got <- externalID:
	default:
	}
	return nil
}

func (c *chanTransport) repliesFor(externalID int64) []Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Reply(nil), c.replies[externalID]...)
}

func TestServeKeepsOtherUsersMovingWhenOneQueueIsFull(t *testing.T) {
	f := newFixture(t, common.Address{})
	release := make(chan struct{})
	engine := New(f.repo, f.vault, stalledReader{Reader: f.reader, release: release}, f.indexer, f.router, f.sessions)
	tr := newChanTransport()

	done := make(chan error, 1)
	go func() { done <- engine.Serve(context.Background(), tr) }()

	const busyInputs = userQueueSize + 4
	for i := 0; i < busyInputs; i++ {
		tr.in <- ParseInput(testUser, "/wallet")
	}
	tr.in <- ParseInput(otherUser, "/start")

	deadline := time.After(2 * time.Second)
	for answered := false; !answered; {
		select {
		case who := <-tr.got:
			answered = who == otherUser
		case <-deadline:
			close(release)
			t.Fatal("second user was not answered while the first user was busy")
		}
	}
	if r := tr.repliesFor(otherUser); len(r) != 1 || r[0].Kind != KindMenu {
		t.Fatalf("unexpected replies for second user %+v", r)
	}

	close(release)
	close(tr.in)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after input ended")
	}

	replies := tr.repliesFor(testUser)
	if len(replies) != busyInputs {
		t.Fatalf("expected every input to be answered, got %d of %d", len(replies), busyInputs)
	}
	busy := 0
	for _, r := range replies {
		if r.ErrorType == "rate_limited" {
			busy++
		}
	}
	if busy == 0 || busy > busyInputs-userQueueSize {
		t.Fatalf("expected the overflow to be turned away, got %d busy replies", busy)
	}
}

func TestDispatcherRetiresIdleWorkers(t *testing.T) {
	f := newFixture(t, common.Address{})
	tr := newChanTransport()
	d := newDispatcher(f.engine, tr)

	d.dispatch(context.Background(), ParseInput(testUser, "/start"))
	select {
	case <-tr.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}
	d.wait()
	if n := d.active(); n != 0 {
		t.Fatalf("expected idle worker to retire, %d still active", n)
	}
}
