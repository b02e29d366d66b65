package handler

import (
	"bytes"
	"embed"
	stderrors "errors"
	"html/template"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/cyclemap/internal/listing"
	"github.com/cyclemap/internal/pkg/errors"
	"github.com/cyclemap/internal/usecase"
	"github.com/cyclemap/internal/usecase/dto"
)

//go:embed templates/*.html
var templatesFS embed.FS

// PaginationData - данные блока пагинации
type PaginationData struct {
	Items      []listing.PageItem
	Current    int
	TotalPages int
	// Query - query string без page
	Query string
}

type listingPage struct {
	Title   string
	Listing *dto.BrowseResponse
	Pages   PaginationData
}

type networkPage struct {
	Title   string
	Network *dto.NetworkDetailResponse
	Pages   PaginationData
}

type errorPage struct {
	Title   string
	Message string
}

// PageHandler - HTML страницы списка и сети
type PageHandler struct {
	networkUC *usecase.NetworkUseCase
	templates *template.Template
	logger    *zap.Logger
}

// NewPageHandler - создание нового PageHandler, шаблоны встроены в бинарник
func NewPageHandler(networkUC *usecase.NetworkUseCase, logger *zap.Logger) (*PageHandler, error) {
	tmpl, err := template.New("pages").Funcs(template.FuncMap{
		"join":    strings.Join,
		"pageURL": pageURL,
		"sortURL": sortURL,
		"deref": func(n *int) int {
			if n == nil {
				return 0
			}
			return *n
		},
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &PageHandler{
		networkUC: networkUC,
		templates: tmpl,
		logger:    logger,
	}, nil
}

// pageURL - ссылка на страницу с сохранением фильтров
func pageURL(query string, page int) string {
	if query == "" {
		return "?page=" + strconv.Itoa(page)
	}
	return "?" + query + "&page=" + strconv.Itoa(page)
}

// sortURL - ссылка на сортировку таблицы по колонке; повторный клик меняет направление
func sortURL(current, order, column string) string {
	next := "asc"
	if current == column && order != "desc" {
		next = "desc"
	}
	return "?sort=" + column + "&order=" + next
}

// Listing - страница списка сетей "/"
func (h *PageHandler) Listing(c *fiber.Ctx) error {
	var req dto.BrowseRequest
	if err := c.QueryParser(&req); err != nil {
		req = dto.BrowseRequest{}
	}
	// мусор в адресе не ломает страницу
	if req.Page < 1 {
		req.Page = 1
	}
	if len(req.Country) != 2 {
		req.Country = ""
	}

	result, err := h.networkUC.Browse(c.UserContext(), req)
	if err != nil {
		return h.renderError(c, err)
	}

	return h.render(c, fiber.StatusOK, "listing", listingPage{
		Title:   "Bike networks",
		Listing: result,
		Pages: PaginationData{
			Items:      result.PageRange,
			Current:    result.Filter.Page,
			TotalPages: result.TotalPages,
			Query:      result.Query,
		},
	})
}

// Network - страница сети "/networks/:id"
func (h *PageHandler) Network(c *fiber.Ctx) error {
	result, err := h.networkUC.GetNetwork(c.UserContext(), dto.NetworkDetailRequest{
		ID:    c.Params("id"),
		Page:  c.QueryInt("page", 1),
		Sort:  c.Query("sort"),
		Order: c.Query("order"),
	})
	if err != nil {
		return h.renderError(c, err)
	}

	return h.render(c, fiber.StatusOK, "network", networkPage{
		Title:   result.Network.Name,
		Network: result,
		Pages: PaginationData{
			Items:      result.PageRange,
			Current:    result.Page,
			TotalPages: result.TotalPages,
			Query:      result.Query,
		},
	})
}

func (h *PageHandler) renderError(c *fiber.Ctx, err error) error {
	appErr := errors.ErrInternalServer
	var target *errors.AppError
	if stderrors.As(err, &target) {
		appErr = target
	}
	return h.render(c, appErr.StatusCode, "error", errorPage{
		Title:   "Error",
		Message: appErr.Message,
	})
}

func (h *PageHandler) render(c *fiber.Ctx, status int, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name+".html", data); err != nil {
		h.logger.Error("Failed to render page", zap.String("template", name), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to render page")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(buf.Bytes())
}
