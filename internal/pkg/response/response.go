// Package response writes the JSON envelope every billing endpoint answers with.
package response

import (
	"github.com/gofiber/fiber/v2"
)

// SuccessBody wraps a successful result.
type SuccessBody struct {
	Status   string      `json:"status"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// ErrorBody wraps a failure. Rejections of billing operations put their error kind in
// Error.Details.
type ErrorBody struct {
	Status string      `json:"status"`
	Error  ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
	Details    interface{} `json:"details,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

func success(c *fiber.Ctx, code int, message string, data, metadata interface{}) error {
	if metadata == nil {
		metadata = fiber.Map{}
	}
	return c.Status(code).JSON(SuccessBody{Status: statusSuccess, Message: message, Data: data, Metadata: metadata})
}

// Success answers 200.
func Success(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	return success(c, fiber.StatusOK, message, data, metadata)
}

// SuccessCreated answers 201 for newly drafted JIBs and cash calls.
func SuccessCreated(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	return success(c, fiber.StatusCreated, message, data, metadata)
}

// Error writes the error envelope with an arbitrary status.
func Error(c *fiber.Ctx, message string, statusCode int, details interface{}) error {
	if details == nil {
		details = fiber.Map{}
	}
	return c.Status(statusCode).JSON(ErrorBody{
		Status: statusError,
		Error:  ErrorDetail{Message: message, StatusCode: statusCode, Details: details},
	})
}

// Rejected reports a refused billing operation; kind lets clients branch without parsing
// the message.
func Rejected(c *fiber.Ctx, statusCode int, kind, message string) error {
	return Error(c, message, statusCode, fiber.Map{"kind": kind})
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, message, fiber.StatusUnauthorized, nil)
}

// Forbidden names the permission the caller's role lacks.
func Forbidden(c *fiber.Ctx, permission string) error {
	return Error(c, "Forbidden", fiber.StatusForbidden, fiber.Map{"permission": permission})
}
