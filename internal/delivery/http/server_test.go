package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cyclemap/internal/config"
	"github.com/cyclemap/internal/countries"
	httpDelivery "github.com/cyclemap/internal/delivery/http"
	"github.com/cyclemap/internal/delivery/http/handler"
	"github.com/cyclemap/internal/domain"
	"github.com/cyclemap/internal/metrics"
	"github.com/cyclemap/internal/usecase"
)

type fakeNetworkRepo struct {
	listFn func(ctx context.Context) ([]domain.Network, error)
	getFn  func(ctx context.Context, id string) (*domain.NetworkDetails, error)
}

func (f fakeNetworkRepo) ListNetworks(ctx context.Context) ([]domain.Network, error) {
	return f.listFn(ctx)
}

func (f fakeNetworkRepo) GetNetwork(ctx context.Context, id string) (*domain.NetworkDetails, error) {
	if f.getFn == nil {
		return nil, errors.New("not found")
	}
	return f.getFn(ctx, id)
}

var testNetworks = []domain.Network{
	{ID: "bicing", Name: "Bicing", Location: domain.Location{City: "Barcelona", Country: "ES", Latitude: 41.3851, Longitude: 2.1734}},
	{ID: "velib", Name: "Vélib' Métropole", Location: domain.Location{City: "Paris", Country: "FR", Latitude: 48.8566, Longitude: 2.3522}},
}

func workingRepo() fakeNetworkRepo {
	return fakeNetworkRepo{
		listFn: func(context.Context) ([]domain.Network, error) { return testNetworks, nil },
		getFn: func(_ context.Context, id string) (*domain.NetworkDetails, error) {
			if id != "bicing" {
				return nil, errors.New("upstream returned 404")
			}
			return &domain.NetworkDetails{
				Network: domain.Network{ID: "bicing", Name: "Bicing", Location: testNetworks[0].Location, Company: domain.Companies{"Clear Channel"}},
				Stations: []domain.Station{
					{ID: "b1", Name: "Pl. Catalunya", Latitude: 41.387, Longitude: 2.170, FreeBikes: 5, EmptySlots: 10},
				},
			}, nil
		},
	}
}

func newTestServer(t *testing.T, repo fakeNetworkRepo) *httpDelivery.Server {
	t.Helper()
	log := zap.NewNop()
	lookup := countries.FromMap(map[string]string{"ES": "Spain", "FR": "France"})

	cfg := &config.Config{
		Listing: config.ListingConfig{PageSize: 6, StationPageSize: 12, EnrichmentConcurrency: 2},
		Map: config.MapConfig{
			DefaultLat: 20, DefaultZoom: 2, DetailZoom: 12, LocateZoom: 14,
			CoordTolerance: 0.001, ZoomTolerance: 0.1,
		},
		Session: config.SessionConfig{MaxEntries: 8},
	}
	m := metrics.New()

	networkUC := usecase.NewNetworkUseCase(repo, lookup, &cfg.Listing, 0, log)
	sessionUC := usecase.NewSessionUseCase(networkUC, lookup, nil, &cfg.Session, &cfg.Map, &cfg.Listing, m, log)

	pages, err := handler.NewPageHandler(networkUC, log)
	require.NoError(t, err)

	return httpDelivery.NewServer(cfg, log, m,
		handler.NewNetworkHandler(networkUC, log),
		handler.NewSessionHandler(sessionUC, log),
		pages,
	)
}

func do(t *testing.T, s *httpDelivery.Server, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	BackLink string `json:"back_link"`
}

func decode(t *testing.T, data []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, workingRepo())
	resp, body := do(t, s, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")
}

func TestServer_ListNetworks(t *testing.T) {
	s := newTestServer(t, workingRepo())

	resp, body := do(t, s, http.MethodGet, "/api/v1/networks?country=ES", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data struct {
		Networks []struct {
			ID        string   `json:"id"`
			Companies []string `json:"companies"`
		} `json:"networks"`
		Total int    `json:"total"`
		Query string `json:"query"`
	}
	require.NoError(t, json.Unmarshal(decode(t, body).Data, &data))
	require.Len(t, data.Networks, 1)
	assert.Equal(t, "bicing", data.Networks[0].ID)
	assert.Equal(t, []string{"Clear Channel"}, data.Networks[0].Companies)
	assert.Equal(t, "country=ES", data.Query)
}

func TestServer_ListNetworksValidation(t *testing.T) {
	s := newTestServer(t, workingRepo())

	resp, body := do(t, s, http.MethodGet, "/api/v1/networks?country=SPAIN", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", decode(t, body).Error.Code)
}

func TestServer_UpstreamFailure(t *testing.T) {
	s := newTestServer(t, fakeNetworkRepo{
		listFn: func(context.Context) ([]domain.Network, error) { return nil, errors.New("down") },
	})

	resp, body := do(t, s, http.MethodGet, "/api/v1/networks", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	env := decode(t, body)
	assert.Equal(t, "NETWORKS_UNAVAILABLE", env.Error.Code)
	assert.Equal(t, "/", env.BackLink)
}

func TestServer_NetworkNotFound(t *testing.T) {
	s := newTestServer(t, workingRepo())

	resp, body := do(t, s, http.MethodGet, "/api/v1/networks/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	env := decode(t, body)
	assert.Equal(t, "Network not found or failed to load.", env.Error.Message)
	assert.Equal(t, "/", env.BackLink)
}

func TestServer_Features(t *testing.T) {
	s := newTestServer(t, workingRepo())

	resp, body := do(t, s, http.MethodGet, "/api/v1/networks/features", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"FeatureCollection"`)
	assert.Contains(t, string(body), `"bicing"`)

	resp, body = do(t, s, http.MethodGet, "/api/v1/networks/bicing/stations/features", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"b1"`)
}

func TestServer_SessionFlow(t *testing.T) {
	s := newTestServer(t, workingRepo())

	resp, body := do(t, s, http.MethodPost, "/api/v1/sessions", `{"url":"/"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(decode(t, body).Data, &created))
	require.NotEmpty(t, created.ID)
	base := "/api/v1/sessions/" + created.ID

	resp, body = do(t, s, http.MethodPost, base+"/click", `{"layer":"networks","feature_id":"bicing"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "View network")

	resp, body = do(t, s, http.MethodPost, base+"/popup/action", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var navigated struct {
		URL  string `json:"url"`
		View struct {
			Highlighted  string `json:"highlighted"`
			StationCount int    `json:"station_count"`
		} `json:"view"`
	}
	require.NoError(t, json.Unmarshal(decode(t, body).Data, &navigated))
	assert.Equal(t, "/networks/bicing", navigated.URL)
	assert.Equal(t, "bicing", navigated.View.Highlighted)
	assert.Equal(t, 1, navigated.View.StationCount)

	resp, _ = do(t, s, http.MethodPost, base+"/zoom", `{"direction":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, s, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, s, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "SESSION_NOT_FOUND", decode(t, body).Error.Code)
}

func TestServer_Pages(t *testing.T) {
	s := newTestServer(t, workingRepo())

	resp, body := do(t, s, http.MethodGet, "/?search=bic", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), `href="/networks/bicing"`)
	assert.NotContains(t, string(body), "Paris")

	resp, body = do(t, s, http.MethodGet, "/networks/bicing", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Pl. Catalunya")
	assert.Contains(t, string(body), "5 free bikes")

	resp, body = do(t, s, http.MethodGet, "/networks/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "Network not found or failed to load.")
	assert.Contains(t, string(body), `href="/"`)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, workingRepo())
	do(t, s, http.MethodGet, "/api/v1/health", "")

	resp, body := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "cyclemap_http_requests_total")
}

func TestServer_HealthDegraded(t *testing.T) {
	s := newTestServer(t, workingRepo())
	s.AddHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	resp, body := do(t, s, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "degraded")
	assert.Contains(t, string(body), "connection refused")
}

func TestServer_InvalidNetworkID(t *testing.T) {
	s := newTestServer(t, workingRepo())

	resp, body := do(t, s, http.MethodGet, "/api/v1/networks/"+strings.Repeat("x", 200), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decode(t, body)
	assert.Equal(t, "INVALID_NETWORK_ID", env.Error.Code)
	assert.Equal(t, "/", env.BackLink)
}

func stationTableRepo() fakeNetworkRepo {
	repo := workingRepo()
	repo.getFn = func(_ context.Context, id string) (*domain.NetworkDetails, error) {
		return &domain.NetworkDetails{
			Network: domain.Network{ID: id, Name: "Bicing", Location: testNetworks[0].Location},
			Stations: []domain.Station{
				{ID: "b1", Name: "Pl. Catalunya", FreeBikes: 5, EmptySlots: 10},
				{ID: "b2", Name: "Arc de Triomf", FreeBikes: 12, EmptySlots: 3},
				{ID: "b3", Name: "Sants Estació", FreeBikes: 0, EmptySlots: 25},
			},
		}, nil
	}
	return repo
}

func TestServer_NetworkStationSorting(t *testing.T) {
	s := newTestServer(t, stationTableRepo())

	stationOrder := func(target string) []string {
		resp, body := do(t, s, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var detail struct {
			Stations []domain.Station `json:"stations"`
			Sort     string           `json:"sort"`
			Order    string           `json:"order"`
			Query    string           `json:"query"`
		}
		require.NoError(t, json.Unmarshal(decode(t, body).Data, &detail))
		ids := make([]string, 0, len(detail.Stations))
		for _, st := range detail.Stations {
			ids = append(ids, st.ID)
		}
		return ids
	}

	assert.Equal(t, []string{"b1", "b2", "b3"}, stationOrder("/api/v1/networks/bicing"))
	assert.Equal(t, []string{"b2", "b1", "b3"}, stationOrder("/api/v1/networks/bicing?sort=name"))
	assert.Equal(t, []string{"b2", "b1", "b3"}, stationOrder("/api/v1/networks/bicing?sort=free_bikes&order=desc"))
	assert.Equal(t, []string{"b2", "b1", "b3"}, stationOrder("/api/v1/networks/bicing?sort=empty_slots&order=asc"))

	resp, body := do(t, s, http.MethodGet, "/api/v1/networks/bicing?sort=timestamp", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", decode(t, body).Error.Code)

	resp, _ = do(t, s, http.MethodGet, "/api/v1/networks/bicing?sort=name&order=sideways", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_NetworkPageSortLinks(t *testing.T) {
	s := newTestServer(t, stationTableRepo())

	resp, body := do(t, s, http.MethodGet, "/networks/bicing?sort=free_bikes&order=asc", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := string(body)

	// активная колонка переключает направление, остальные начинают с asc
	assert.Contains(t, page, `href="?sort=free_bikes&amp;order=desc"`)
	assert.Contains(t, page, `href="?sort=name&amp;order=asc"`)
	assert.Contains(t, page, `href="?sort=empty_slots&amp;order=asc"`)
	assert.Less(t, strings.Index(page, "Sants Estació"), strings.Index(page, "Arc de Triomf"))

	// мусор в адресе страницы не ломает таблицу
	resp, body = do(t, s, http.MethodGet, "/networks/bicing?sort=bogus&order=up", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, strings.Index(string(body), "Pl. Catalunya"), strings.Index(string(body), "Arc de Triomf"))
}

func TestServer_CountriesSearch(t *testing.T) {
	s := newTestServer(t, workingRepo())

	countriesFor := func(target string) []domain.Country {
		resp, body := do(t, s, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var data struct {
			Countries []domain.Country `json:"countries"`
		}
		require.NoError(t, json.Unmarshal(decode(t, body).Data, &data))
		return data.Countries
	}

	assert.Len(t, countriesFor("/api/v1/countries"), 2)
	assert.Equal(t, []domain.Country{{Code: "FR", Name: "France"}}, countriesFor("/api/v1/countries?search=FRA"))
	assert.Empty(t, countriesFor("/api/v1/countries?search=atlantis"))

	resp, _ := do(t, s, http.MethodGet, "/api/v1/countries?search="+strings.Repeat("a", 65), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
