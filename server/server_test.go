package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/attestation/attestationtest"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm/evmtest"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claim"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claimerr"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/eligibility"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/history"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/lottery"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/orchestrator"
	"github.com/snakeeeeeeeee/zktls-kunkunGallery/server"
)

type testServer struct {
	*httptest.Server
	backend *evmtest.Backend
	signer  *claim.KeySigner
	orch    *orchestrator.Orchestrator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	chain, backend := evmtest.NewChain()
	checker := eligibility.NewChecker(chain, nil)
	submitter := claim.NewSubmitter(chain, checker, nil)
	submitter.ConfirmTimeout = 200 * time.Millisecond
	submitter.PollInterval = 10 * time.Millisecond

	store, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	key, _ := evmtest.NewKey()
	signer := claim.NewKeySigner(key)
	prover := attestationtest.NewProver("kunkun_fan")
	drawer := lottery.NewDrawer(lottery.DefaultPrizeTable(), lottery.WithRand(func() float64 { return 0.5 }))

	orch := orchestrator.New(drawer, prover.NewClient(), submitter, orchestrator.WithRecorder(store))
	srv := server.New(server.Config{
		Orchestrator: orch,
		Chain:        chain,
		Checker:      checker,
		History:      store,
		Signer:       signer,
	})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, backend: backend, signer: signer, orch: orch}
}

func (ts *testServer) post(t *testing.T, path string, body any, out any) int {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) newSession(t *testing.T) string {
	t.Helper()
	var created server.SessionResponse
	code := ts.post(t, "/api/v1/session", server.CreateSessionRequest{Address: ts.signer.Address().Hex()}, &created)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, orchestrator.StateIdle, created.Session.State)
	return created.Session.ID
}

func TestClaimOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	id := ts.newSession(t)
	req := server.SessionRequest{SessionID: id}

	var resp server.SessionResponse
	assert.Equal(t, http.StatusConflict, ts.post(t, "/api/v1/session/claim", req, nil), "claim before draw")

	require.Equal(t, http.StatusOK, ts.post(t, "/api/v1/session/draw", req, &resp))
	require.NotNil(t, resp.Draw)
	slot := resp.Draw.SlotID

	resp = server.SessionResponse{}
	require.Equal(t, http.StatusOK, ts.post(t, "/api/v1/session/claim", req, &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Receipt)
	assert.Equal(t, slot, resp.Receipt.SlotID)
	assert.Len(t, resp.Events, 4)
	assert.Equal(t, orchestrator.StateClaimed, resp.Session.State)

	var status chainevm.TransactionStatusResponse
	require.Equal(t, http.StatusOK, ts.get(t, "/api/v1/transaction/status?tx_hash="+resp.Receipt.TxHash, &status))
	assert.Equal(t, chainevm.StatusConfirmed, status.Status)

	var records []history.ClaimRecord
	require.Equal(t, http.StatusOK, ts.get(t, "/api/v1/claims/history?address="+ts.signer.Address().Hex(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, resp.Receipt.TxHash, records[0].TxHash)

	var session server.SessionResponse
	require.Equal(t, http.StatusOK, ts.get(t, "/api/v1/session?id="+id, &session))
	assert.Equal(t, orchestrator.StateClaimed, session.Session.State)

	require.Equal(t, http.StatusOK, ts.post(t, "/api/v1/session/reset", req, &session))
	assert.Equal(t, orchestrator.StateIdle, session.Session.State)
}

func TestClaimErrorOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.MarkClaimed(ts.signer.Address(), 1, "")

	id := ts.newSession(t)
	req := server.SessionRequest{SessionID: id}
	require.Equal(t, http.StatusOK, ts.post(t, "/api/v1/session/draw", req, nil))

	var resp server.SessionResponse
	require.Equal(t, http.StatusConflict, ts.post(t, "/api/v1/session/claim", req, &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, claimerr.KindIneligible, resp.Error.Kind)
	assert.Contains(t, resp.Error.Reasons, eligibility.ReasonAlreadyClaimed)
	assert.Equal(t, orchestrator.StateFailed, resp.Session.State)
}

func TestCancelClosesSession(t *testing.T) {
	ts := newTestServer(t)
	id := ts.newSession(t)
	keep := ts.newSession(t)
	require.Equal(t, 2, ts.orch.Len())

	req := server.SessionRequest{SessionID: id}
	require.Equal(t, http.StatusOK, ts.post(t, "/api/v1/session/draw", req, nil))

	var resp server.SessionResponse
	require.Equal(t, http.StatusOK, ts.post(t, "/api/v1/session/cancel", req, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, orchestrator.StateIdle, resp.Session.State)

	assert.Equal(t, 1, ts.orch.Len())
	assert.Equal(t, http.StatusNotFound, ts.get(t, "/api/v1/session?id="+id, nil))
	assert.Equal(t, http.StatusNotFound, ts.post(t, "/api/v1/session/draw", req, nil))
	assert.Equal(t, http.StatusOK, ts.get(t, "/api/v1/session?id="+keep, nil))
}

func TestEligibilityAndContractStatus(t *testing.T) {
	ts := newTestServer(t)

	var res eligibility.Result
	require.Equal(t, http.StatusOK, ts.get(t, "/api/v1/eligibility?address="+ts.signer.Address().Hex()+"&slot_id=9", &res))
	assert.False(t, res.CanClaim)
	assert.Equal(t, []string{eligibility.ReasonInvalidSlot(8)}, res.Reasons)

	var status chainevm.ContractStatus
	require.Equal(t, http.StatusOK, ts.get(t, "/api/v1/contract/status", &status))
	assert.Equal(t, uint64(1000), status.TotalSupply)
	assert.Equal(t, uint64(8), status.MaxNftID)
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.post(t, "/api/v1/session", server.CreateSessionRequest{Address: "nope"}, nil))
	assert.Equal(t, http.StatusNotFound, ts.post(t, "/api/v1/session/draw", server.SessionRequest{SessionID: "missing"}, nil))
	assert.Equal(t, http.StatusBadRequest, ts.get(t, "/api/v1/eligibility?address=0x1", nil))
	assert.Equal(t, http.StatusBadRequest, ts.get(t, "/api/v1/transaction/status", nil))
	assert.Equal(t, http.StatusBadRequest, ts.get(t, "/api/v1/claims/history", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, ts.get(t, "/api/v1/session/draw", nil))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
