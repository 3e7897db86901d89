package server

import (
	"git.appkode.ru/pub/go/failure"

	"travel_budget/internal/domain"
	"travel_budget/pkg/errcodes"
)

// mapError translates domain errors into transport failures so reply.Error
// picks the right HTTP status. Errors that are not AppError pass through and
// land on 500.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	code, ok := domain.GetCode(err)
	if !ok {
		return err
	}

	var appErr *domain.AppError

	message := err.Error()
	if e, isApp := err.(*domain.AppError); isApp {
		appErr = e
		message = appErr.Message
	}

	switch code {
	case errcodes.SessionNotFound, errcodes.BudgetNotFound,
		errcodes.RuleSetNotFound, errcodes.NotFound:
		return failure.NewNotFoundError(
			message,
			failure.WithCode(code),
			failure.WithDescription(message),
		)

	case errcodes.PackageAlreadyInCart:
		return failure.NewConflictError(
			message,
			failure.WithCode(code),
			failure.WithDescription(message),
		)

	case errcodes.InvalidModification, errcodes.SessionNotActive,
		errcodes.SessionStateError, errcodes.UnresolvableItem:
		return failure.NewUnprocessableEntityError(
			message,
			failure.WithCode(code),
			failure.WithDescription(message),
		)

	case errcodes.ValidationError, errcodes.InvalidSessionID,
		errcodes.InvalidPackageRecord, errcodes.InvalidStrategy:
		return failure.NewInvalidArgumentError(
			message,
			failure.WithCode(code),
			failure.WithDescription(message),
		)

	default:
		return err
	}
}
