package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var market = common.HexToAddress("0x4E216C15697C1392fE59e1014B009505E05810Df")

func TestSiloSupplyAPR(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detailed-vault/sonic-"+market.Hex(), r.URL.Path)
		io.WriteString(w, `{"supplyApr":"45000000000000000"}`)
	}))
	defer ts.Close()

	cli := NewSiloClient(SiloConfig{HTTPConfig: testHTTPConfig(ts.URL, ts.Client())})
	apr, err := cli.SupplyAPR(context.Background(), market)
	require.NoError(t, err)
	assert.InDelta(t, 0.045, apr, 1e-12)
}

func TestSiloMissingField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	defer ts.Close()
	cli := NewSiloClient(SiloConfig{HTTPConfig: testHTTPConfig(ts.URL, ts.Client())})
	_, err := cli.SupplyAPR(context.Background(), market)
	assert.Error(t, err)
}

func TestMorphoSupplyAPR(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/graphql", r.URL.Path)
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, market.Hex(), req.Variables["address"])
		assert.EqualValues(t, 1, req.Variables["chainId"])
		io.WriteString(w, `{"data":{"vaultByAddress":{"address":"x","state":{"weeklyNetApy":0.031}}}}`)
	}))
	defer ts.Close()

	cli := NewMorphoClient(MorphoConfig{HTTPConfig: testHTTPConfig(ts.URL, ts.Client())})
	apr, err := cli.SupplyAPR(context.Background(), market)
	require.NoError(t, err)
	assert.InDelta(t, 0.031, apr, 1e-12)
}

func TestMorphoGraphQLError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"vaultByAddress":null},"errors":[{"message":"No results matching given parameters"}]}`)
	}))
	defer ts.Close()

	cli := NewMorphoClient(MorphoConfig{HTTPConfig: testHTTPConfig(ts.URL, ts.Client())})
	_, err := cli.SupplyAPR(context.Background(), market)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No results")
}

func TestSquidRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "toValidatorID_in")
		assert.EqualValues(t, 146, req.Variables["chainId"])
		assert.Equal(t, []any{"15", "16"}, req.Variables["validators"])
		io.WriteString(w, `{"data":{"sfcWithdrawals":[
			{"id":"a","amount":"1000000000000000000","wrID":"1","toValidatorID":"15","createdAt":"2025-02-20T10:00:00.000000Z"},
			{"id":"b","amount":"5","wrID":"2","toValidatorID":"16","createdAt":"2025-02-25T10:00:00Z"}
		]}}`)
	}))
	defer ts.Close()

	cli := NewSquidClient(SquidConfig{HTTPConfig: testHTTPConfig(ts.URL, ts.Client()), ValidatorIDs: []string{"15", "16"}})
	reqs, err := cli.Requests(context.Background())
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "a", reqs[0].ID)
	assert.Equal(t, "15", reqs[0].ValidatorID)
	assert.Equal(t, "1000000000000000000", reqs[0].Amount.String())
	assert.True(t, reqs[0].CreatedAt.Equal(time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC)))
}

func TestSquidWithoutValidatorFilter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotContains(t, req.Query, "toValidatorID_in")
		io.WriteString(w, `{"data":{"sfcWithdrawals":[{"id":"x","amount":"bad","createdAt":"2025-02-20T10:00:00Z"}]}}`)
	}))
	defer ts.Close()

	cli := NewSquidClient(SquidConfig{HTTPConfig: testHTTPConfig(ts.URL, ts.Client())})
	_, err := cli.Requests(context.Background())
	assert.Error(t, err)
}
