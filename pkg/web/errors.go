package web

import (
	"errors"

	"github.com/agridesk/agridesk/pkg/onboarding"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/agridesk/agridesk/pkg/provision"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleProvisionError maps saga errors to HTTP responses carrying the
// machine-readable code.
func handleProvisionError(c fiber.Ctx, err error) error {
	code := provision.ErrorCode(err)

	switch {
	case provision.IsValidationError(err):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), Code: code})

	case provision.IsForbidden(err):
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{Error: err.Error(), Code: code})

	case persistence.IsDuplicateSlug(err):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "tenant slug already exists", Code: code})

	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error(), Code: code})
	}
}

// handleOnboardingError maps onboarding service errors to HTTP responses.
func handleOnboardingError(c fiber.Ctx, err error) error {
	var validationErr *onboarding.ValidationError

	switch {
	case onboarding.IsNotFound(err):
		return notFound(c, err.Error())

	case errors.As(err, &validationErr):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("step_validation_failed").
			WithDetail(validationErr.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"problem":           problem,
			"validation_errors": validationErr.Violations,
		})

	case errors.Is(err, onboarding.ErrInvalidStepStatus):
		return badRequest(c, err.Error())

	case onboarding.IsConflictError(err):
		return conflict(c, err.Error())

	default:
		return internalError(c, err)
	}
}
