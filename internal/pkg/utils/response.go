package utils

import (
	stderrors "errors"

	"github.com/cyclemap/internal/pkg/errors"
	"github.com/gofiber/fiber/v2"
)

type SuccessResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Error *errors.AppError `json:"error"`
	// BackLink - куда вернуться пользователю из состояния ошибки
	BackLink string `json:"back_link,omitempty"`
}

type Meta struct {
	Total      int     `json:"total,omitempty"`
	Page       int     `json:"page,omitempty"`
	Limit      int     `json:"limit,omitempty"`
	TotalPages int     `json:"total_pages,omitempty"`
	TimeMSec   float64 `json:"time_ms,omitempty"`
}

func SendSuccess(c *fiber.Ctx, data interface{}, meta *Meta) error {
	return c.JSON(SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func SendError(c *fiber.Ctx, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return c.Status(appErr.StatusCode).JSON(ErrorResponse{
			Error:    appErr,
			BackLink: backLinkFor(appErr),
		})
	}

	// Unknown error - return 500
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:    errors.ErrInternalServer,
		BackLink: "/",
	})
}

func backLinkFor(err *errors.AppError) string {
	switch err.Code {
	case errors.ErrNetworkNotFound.Code, errors.ErrNetworksUnavailable.Code, errors.ErrInvalidNetworkID.Code:
		return "/"
	}
	return ""
}
