package usecase

import (
	"context"
	"net/url"
	"time"

	"github.com/bluele/gcache"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/cyclemap/internal/config"
	"github.com/cyclemap/internal/countries"
	"github.com/cyclemap/internal/domain"
	"github.com/cyclemap/internal/domain/repository"
	"github.com/cyclemap/internal/geo"
	"github.com/cyclemap/internal/listing"
	"github.com/cyclemap/internal/pkg/errors"
	"github.com/cyclemap/internal/urlstate"
	"github.com/cyclemap/internal/usecase/dto"
)

const (
	defaultStationPageSize = 12
	enrichmentMemoSize     = 4096
)

// NetworkUseCase - доступ к сетям и станциям для страниц и API
type NetworkUseCase struct {
	repo        repository.NetworkRepository
	countries   *countries.Lookup
	cfg         config.ListingConfig
	enrichments gcache.Cache
	logger      *zap.Logger
}

// NewNetworkUseCase - создание нового NetworkUseCase.
// enrichmentTTL - сколько помнить догруженные данные сетей между запросами.
func NewNetworkUseCase(
	repo repository.NetworkRepository,
	lookup *countries.Lookup,
	cfg *config.ListingConfig,
	enrichmentTTL time.Duration,
	logger *zap.Logger,
) *NetworkUseCase {
	builder := gcache.New(enrichmentMemoSize).LRU()
	if enrichmentTTL > 0 {
		builder = builder.Expiration(enrichmentTTL)
	}
	return &NetworkUseCase{
		repo:        repo,
		countries:   lookup,
		cfg:         *cfg,
		enrichments: builder.Build(),
		logger:      logger,
	}
}

// ListNetworks - все сети. Ошибка апстрима возвращается вызывающему.
func (uc *NetworkUseCase) ListNetworks(ctx context.Context) ([]domain.Network, error) {
	networks, err := uc.repo.ListNetworks(ctx)
	if err != nil {
		uc.logger.Error("Failed to list networks", zap.Error(err))
		return nil, errors.ErrNetworksUnavailable
	}
	return networks, nil
}

// GetNetworkDetails - сеть со станциями или nil при любой ошибке.
// "Не найдена" и "не загрузилась" намеренно не различаются.
func (uc *NetworkUseCase) GetNetworkDetails(ctx context.Context, id string) *domain.NetworkDetails {
	if id == "" {
		return nil
	}
	details, err := uc.repo.GetNetwork(ctx, id)
	if err != nil {
		uc.logger.Warn("Failed to fetch network details", zap.String("network_id", id), zap.Error(err))
		return nil
	}
	return details
}

// Enrich - операторы и число станций сети; при сбое {[], 0}
func (uc *NetworkUseCase) Enrich(ctx context.Context, networkID string) domain.Enrichment {
	enrichment := domain.EnrichmentFromDetails(uc.GetNetworkDetails(ctx, networkID))
	if err := uc.enrichments.Set(networkID, enrichment); err != nil {
		uc.logger.Debug("Failed to memoize enrichment", zap.String("network_id", networkID), zap.Error(err))
	}
	return enrichment
}

// KnownEnrichments - догруженные ранее данные для указанных сетей
func (uc *NetworkUseCase) KnownEnrichments(networks []domain.Network) map[string]domain.Enrichment {
	known := make(map[string]domain.Enrichment)
	for _, n := range networks {
		v, err := uc.enrichments.GetIFPresent(n.ID)
		if err != nil {
			continue
		}
		if en, ok := v.(domain.Enrichment); ok {
			known[n.ID] = en
		}
	}
	return known
}

// NewListing - движок списка над сетями с уже известными данными
func (uc *NetworkUseCase) NewListing(networks []domain.Network) *listing.Engine {
	engine := listing.NewEngine(networks, listing.Options{
		PageSize:    uc.cfg.PageSize,
		Concurrency: uc.cfg.EnrichmentConcurrency,
	}, uc, uc.logger)
	engine.Seed(uc.KnownEnrichments(networks))
	return engine
}

// Browse - отфильтрованная и догруженная страница списка
func (uc *NetworkUseCase) Browse(ctx context.Context, req dto.BrowseRequest) (*dto.BrowseResponse, error) {
	networks, err := uc.ListNetworks(ctx)
	if err != nil {
		return nil, err
	}

	engine := uc.NewListing(networks)
	engine.SetFilter(req.Search, req.Country)
	if req.Page > 0 {
		engine.SetPage(req.Page)
	}
	if err := engine.EnrichVisible(ctx); err != nil {
		uc.logger.Warn("Failed to enrich visible networks", zap.Error(err))
	}

	return uc.BuildBrowseResponse(engine.View(), networks), nil
}

// BuildBrowseResponse превращает View движка в ответ API
func (uc *NetworkUseCase) BuildBrowseResponse(view listing.View, networks []domain.Network) *dto.BrowseResponse {
	cards := make([]dto.NetworkCard, 0, len(view.Items))
	for _, item := range view.Items {
		cards = append(cards, dto.ConvertNetworkCard(item, uc.countries.Name(item.Network.Location.Country)))
	}

	query, _ := urlstate.Apply(url.Values{}, view.Filter)

	return &dto.BrowseResponse{
		Networks:   cards,
		Filter:     view.Filter,
		Total:      view.Total,
		TotalPages: view.TotalPages,
		PageSize:   view.PageSize,
		PageRange:  view.Range,
		Countries:  uc.countries.Available(networks),
		Query:      query.Encode(),
	}
}

// GetNetwork - сеть со страницей таблицы станций
func (uc *NetworkUseCase) GetNetwork(ctx context.Context, req dto.NetworkDetailRequest) (*dto.NetworkDetailResponse, error) {
	details := uc.GetNetworkDetails(ctx, req.ID)
	if details == nil {
		return nil, errors.ErrNetworkNotFound
	}

	pageSize := uc.cfg.StationPageSize
	if pageSize <= 0 {
		pageSize = defaultStationPageSize
	}
	totalPages := listing.TotalPages(len(details.Stations), pageSize)
	page := req.Page
	if page < 1 || page > totalPages {
		page = 1
	}

	sortBy, order := req.Sort, req.Order
	switch sortBy {
	case listing.SortByName, listing.SortByFreeBikes, listing.SortByEmptySlots:
		if order != listing.OrderDesc {
			order = listing.OrderAsc
		}
	default:
		sortBy, order = "", ""
	}
	stations := listing.SortStations(details.Stations, sortBy, order)

	query := url.Values{}
	if sortBy != "" {
		query.Set("sort", sortBy)
		query.Set("order", order)
	}

	resp := &dto.NetworkDetailResponse{
		Network:      details.Network,
		CountryName:  uc.countries.Name(details.Location.Country),
		Stations:     listing.Paginate(stations, page, pageSize),
		StationCount: len(details.Stations),
		Page:         page,
		TotalPages:   totalPages,
		PageRange:    listing.PageRange(page, totalPages, listing.DefaultSiblings),
		Sort:         sortBy,
		Order:        order,
		Query:        query.Encode(),
	}
	for _, s := range details.Stations {
		resp.FreeBikes += s.FreeBikes
		resp.EmptySlots += s.EmptySlots
	}
	return resp, nil
}

// NetworkFeatures - все сети точками для слоя карты
func (uc *NetworkUseCase) NetworkFeatures(ctx context.Context) (*geojson.FeatureCollection, error) {
	networks, err := uc.ListNetworks(ctx)
	if err != nil {
		return nil, err
	}
	return geo.NetworksToFeatures(networks), nil
}

// StationFeatures - станции сети точками для слоя карты
func (uc *NetworkUseCase) StationFeatures(ctx context.Context, id string) (*geojson.FeatureCollection, error) {
	details := uc.GetNetworkDetails(ctx, id)
	if details == nil {
		return nil, errors.ErrNetworkNotFound
	}
	return geo.StationsToFeatures(details.Stations), nil
}

// Countries - страны, в которых есть сети, с поиском по названию
func (uc *NetworkUseCase) Countries(ctx context.Context, req dto.CountriesRequest) (*dto.CountriesResponse, error) {
	networks, err := uc.ListNetworks(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.CountriesResponse{
		Countries: countries.Search(uc.countries.Available(networks), req.Search),
	}, nil
}

// CountryName - название страны по коду
func (uc *NetworkUseCase) CountryName(code string) string {
	return uc.countries.Name(code)
}
