package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/cyclemap/internal/pkg/errors"
	"github.com/cyclemap/internal/pkg/utils"
	"github.com/cyclemap/internal/pkg/validator"
	"github.com/cyclemap/internal/usecase"
	"github.com/cyclemap/internal/usecase/dto"
)

// NetworkHandler - обработчик для списка сетей, карточки сети и слоёв карты
type NetworkHandler struct {
	networkUC *usecase.NetworkUseCase
	logger    *zap.Logger
}

// NewNetworkHandler - создание нового NetworkHandler
func NewNetworkHandler(networkUC *usecase.NetworkUseCase, logger *zap.Logger) *NetworkHandler {
	return &NetworkHandler{
		networkUC: networkUC,
		logger:    logger,
	}
}

// ListNetworks godoc
// @Summary Список сетей велопроката
// @Description Отфильтрованная по поиску и стране страница сетей. Для видимой страницы догружаются операторы и число станций. Поле query - каноничная строка запроса для адреса страницы.
// @Tags Networks
// @Produce json
// @Param search query string false "Подстрока названия сети или оператора"
// @Param country query string false "Код страны (ISO 3166-1 alpha-2)"
// @Param page query int false "Номер страницы" default(1)
// @Success 200 {object} utils.SuccessResponse{data=dto.BrowseResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 502 {object} utils.ErrorResponse
// @Router /api/v1/networks [get]
func (h *NetworkHandler) ListNetworks(c *fiber.Ctx) error {
	var req dto.BrowseRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, errors.ErrInvalidRequest)
	}

	if err := validator.Validate(&req); err != nil {
		return utils.SendError(c, invalidRequest(err))
	}

	result, err := h.networkUC.Browse(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}

	return utils.SendSuccess(c, result, &utils.Meta{
		Total:      result.Total,
		Page:       result.Filter.Page,
		Limit:      result.PageSize,
		TotalPages: result.TotalPages,
	})
}

// GetNetwork godoc
// @Summary Сеть со станциями
// @Description Карточка сети, суммарные свободные велосипеды и места, страница таблицы станций
// @Tags Networks
// @Produce json
// @Param id path string true "ID сети"
// @Param page query int false "Страница таблицы станций" default(1)
// @Param sort query string false "Колонка сортировки станций" Enums(name, free_bikes, empty_slots)
// @Param order query string false "Направление сортировки" Enums(asc, desc)
// @Success 200 {object} utils.SuccessResponse{data=dto.NetworkDetailResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/networks/{id} [get]
func (h *NetworkHandler) GetNetwork(c *fiber.Ctx) error {
	req := dto.NetworkDetailRequest{
		ID:    c.Params("id"),
		Page:  c.QueryInt("page", 1),
		Sort:  c.Query("sort"),
		Order: c.Query("order"),
	}

	if err := validator.Validate(&req); err != nil {
		if _, bad := validator.Fields(err)["id"]; bad {
			return utils.SendError(c, errors.ErrInvalidNetworkID)
		}
		return utils.SendError(c, invalidRequest(err))
	}

	result, err := h.networkUC.GetNetwork(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}

	return utils.SendSuccess(c, result, &utils.Meta{
		Total:      result.StationCount,
		Page:       result.Page,
		TotalPages: result.TotalPages,
	})
}

// GetNetworkFeatures godoc
// @Summary Сети как GeoJSON
// @Description FeatureCollection точек всех сетей; id фичи - id сети
// @Tags Map
// @Produce json
// @Success 200 {object} map[string]interface{} "GeoJSON FeatureCollection"
// @Failure 502 {object} utils.ErrorResponse
// @Router /api/v1/networks/features [get]
func (h *NetworkHandler) GetNetworkFeatures(c *fiber.Ctx) error {
	fc, err := h.networkUC.NetworkFeatures(c.UserContext())
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fc)
}

// GetStationFeatures godoc
// @Summary Станции сети как GeoJSON
// @Tags Map
// @Produce json
// @Param id path string true "ID сети"
// @Success 200 {object} map[string]interface{} "GeoJSON FeatureCollection"
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/networks/{id}/stations/features [get]
func (h *NetworkHandler) GetStationFeatures(c *fiber.Ctx) error {
	fc, err := h.networkUC.StationFeatures(c.UserContext(), c.Params("id"))
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fc)
}

// GetCountries godoc
// @Summary Страны, в которых есть сети
// @Tags Networks
// @Produce json
// @Param search query string false "Часть названия страны"
// @Success 200 {object} utils.SuccessResponse{data=dto.CountriesResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 502 {object} utils.ErrorResponse
// @Router /api/v1/countries [get]
func (h *NetworkHandler) GetCountries(c *fiber.Ctx) error {
	var req dto.CountriesRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, errors.ErrInvalidRequest)
	}
	if err := validator.Validate(&req); err != nil {
		return utils.SendError(c, invalidRequest(err))
	}

	result, err := h.networkUC.Countries(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, result, &utils.Meta{Total: len(result.Countries)})
}

// invalidRequest переводит ошибку валидатора в ErrInvalidRequest с полями в деталях
func invalidRequest(err error) error {
	details := make(map[string]interface{})
	for field, rule := range validator.Fields(err) {
		details[field] = rule
	}
	return errors.ErrInvalidRequest.WithDetails(details)
}
