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

// SessionHandler - обработчик сессий просмотра: карта, список и адрес на сервере,
// клиент только пересылает события и рисует снимок
type SessionHandler struct {
	sessionUC *usecase.SessionUseCase
	logger    *zap.Logger
}

// NewSessionHandler - создание нового SessionHandler
func NewSessionHandler(sessionUC *usecase.SessionUseCase, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessionUC: sessionUC,
		logger:    logger,
	}
}

// parseBody разбирает и валидирует тело запроса
func parseBody(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return errors.ErrInvalidRequest.WithDetails(map[string]interface{}{"body": "invalid request body"})
	}
	if err := validator.Validate(req); err != nil {
		return invalidRequest(err)
	}
	return nil
}

func respond(c *fiber.Ctx, resp *dto.SessionResponse, err error) error {
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, resp, nil)
}

// CreateSession godoc
// @Summary Открыть сессию просмотра
// @Description Монтирует карту и список на адресе url (путь и query), загружает стиль и применяет маршрут
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body dto.CreateSessionRequest false "Начальный адрес, по умолчанию /"
// @Success 201 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 502 {object} utils.ErrorResponse
// @Router /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return utils.SendError(c, err)
		}
	}

	resp, err := h.sessionUC.CreateSession(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}
	c.Status(fiber.StatusCreated)
	return utils.SendSuccess(c, resp, nil)
}

// GetSession godoc
// @Summary Снимок сессии
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	resp, err := h.sessionUC.Snapshot(c.UserContext(), c.Params("id"))
	return respond(c, resp, err)
}

// CloseSession godoc
// @Summary Закрыть сессию
// @Description Размонтирует карту: попап удаляется, ответы загрузок отбрасываются
// @Tags Sessions
// @Param id path string true "ID сессии"
// @Success 204
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id} [delete]
func (h *SessionHandler) CloseSession(c *fiber.Ctx) error {
	if err := h.sessionUC.Close(c.UserContext(), c.Params("id")); err != nil {
		return utils.SendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Navigate godoc
// @Summary Переход по маршруту
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body dto.NavigateRequest true "Новый адрес"
// @Success 200 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id}/navigate [post]
func (h *SessionHandler) Navigate(c *fiber.Ctx) error {
	var req dto.NavigateRequest
	if err := parseBody(c, &req); err != nil {
		return utils.SendError(c, err)
	}
	resp, err := h.sessionUC.Navigate(c.UserContext(), c.Params("id"), req)
	return respond(c, resp, err)
}

// SetFilter godoc
// @Summary Поиск и фильтр страны
// @Description Меняет поиск и/или страну, сбрасывает страницу; адрес обновляется с задержкой без новой записи в истории
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body dto.FilterRequest true "Поля фильтра"
// @Success 200 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id}/filter [post]
func (h *SessionHandler) SetFilter(c *fiber.Ctx) error {
	var req dto.FilterRequest
	if err := parseBody(c, &req); err != nil {
		return utils.SendError(c, err)
	}
	resp, err := h.sessionUC.SetFilter(c.UserContext(), c.Params("id"), req)
	return respond(c, resp, err)
}

// SetPage godoc
// @Summary Страница списка
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body dto.PageRequest true "Номер страницы"
// @Success 200 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id}/page [post]
func (h *SessionHandler) SetPage(c *fiber.Ctx) error {
	var req dto.PageRequest
	if err := parseBody(c, &req); err != nil {
		return utils.SendError(c, err)
	}
	resp, err := h.sessionUC.SetPage(c.UserContext(), c.Params("id"), req)
	return respond(c, resp, err)
}

// Hover godoc
// @Summary Курсор над сетью
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body dto.HoverRequest true "Сеть под курсором"
// @Success 200 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id}/hover [post]
func (h *SessionHandler) Hover(c *fiber.Ctx) error {
	var req dto.HoverRequest
	if err := parseBody(c, &req); err != nil {
		return utils.SendError(c, err)
	}
	resp, err := h.sessionUC.Hover(c.UserContext(), c.Params("id"), req)
	return respond(c, resp, err)
}

// Leave godoc
// @Summary Курсор ушёл со слоя сетей
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id}/leave [post]
func (h *SessionHandler) Leave(c *fiber.Ctx) error {
	resp, err := h.sessionUC.Leave(c.UserContext(), c.Params("id"))
	return respond(c, resp, err)
}

// Click godoc
// @Summary Клик по сети или станции
// @Description Открывает попап; для копий мира передайте lon/lat точки клика
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body dto.ClickRequest true "Слой и фича"
// @Success 200 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id}/click [post]
func (h *SessionHandler) Click(c *fiber.Ctx) error {
	var req dto.ClickRequest
	if err := parseBody(c, &req); err != nil {
		return utils.SendError(c, err)
	}
	resp, err := h.sessionUC.Click(c.UserContext(), c.Params("id"), req)
	return respond(c, resp, err)
}

// PopupAction godoc
// @Summary Кнопка "View network" в попапе
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id}/popup/action [post]
func (h *SessionHandler) PopupAction(c *fiber.Ctx) error {
	resp, err := h.sessionUC.PopupAction(c.UserContext(), c.Params("id"))
	return respond(c, resp, err)
}

// ClosePopup godoc
// @Summary Закрыть попап
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id}/popup/close [post]
func (h *SessionHandler) ClosePopup(c *fiber.Ctx) error {
	resp, err := h.sessionUC.ClosePopup(c.UserContext(), c.Params("id"))
	return respond(c, resp, err)
}

// SelectStation godoc
// @Summary Выбор строки таблицы станций
// @Description Открывает попап станции на карте; пустой station_id снимает выбор
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body dto.SelectRequest true "Станция"
// @Success 200 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id}/select [post]
func (h *SessionHandler) SelectStation(c *fiber.Ctx) error {
	var req dto.SelectRequest
	if err := parseBody(c, &req); err != nil {
		return utils.SendError(c, err)
	}
	resp, err := h.sessionUC.SelectStation(c.UserContext(), c.Params("id"), req)
	return respond(c, resp, err)
}

// Locate godoc
// @Summary Кнопка "где я"
// @Description Координаты из браузера; без них положение определяется по IP, если подключена база GeoIP
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body dto.LocateRequest false "Положение клиента"
// @Success 200 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id}/locate [post]
func (h *SessionHandler) Locate(c *fiber.Ctx) error {
	var req dto.LocateRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return utils.SendError(c, err)
		}
	}
	resp, err := h.sessionUC.Locate(c.UserContext(), c.Params("id"), req, c.IP())
	return respond(c, resp, err)
}

// Zoom godoc
// @Summary Шаг зума
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body dto.ZoomRequest true "in или out"
// @Success 200 {object} utils.SuccessResponse{data=dto.SessionResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/sessions/{id}/zoom [post]
func (h *SessionHandler) Zoom(c *fiber.Ctx) error {
	var req dto.ZoomRequest
	if err := parseBody(c, &req); err != nil {
		return utils.SendError(c, err)
	}
	resp, err := h.sessionUC.Zoom(c.UserContext(), c.Params("id"), req)
	return respond(c, resp, err)
}
