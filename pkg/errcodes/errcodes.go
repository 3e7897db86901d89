package errcodes

import "git.appkode.ru/pub/go/failure"

const (
	InternalServerError failure.ErrorCode = "InternalServerError"
	TimeoutExceeded     failure.ErrorCode = "TimeoutExceeded"
	Forbidden           failure.ErrorCode = "Forbidden"
	ValidationError     failure.ErrorCode = "ValidationError"
	NotFound            failure.ErrorCode = "NotFound"

	// Session path. Surfaced synchronously to the seller, never retried.
	SessionNotFound      failure.ErrorCode = "SessionNotFound"
	SessionNotActive     failure.ErrorCode = "SessionNotActive"     // add/modify on a finalized or abandoned session
	SessionStateError    failure.ErrorCode = "SessionStateError"    // finalize/abandon from a wrong state
	InvalidModification  failure.ErrorCode = "InvalidModification"  // critical business rule rejected the change
	PackageAlreadyInCart failure.ErrorCode = "PackageAlreadyInCart" // same record frozen twice
	InvalidSessionID     failure.ErrorCode = "InvalidSessionID"
	InvalidPackageRecord failure.ErrorCode = "InvalidPackageRecord"

	// Budget / reconstruction path.
	BudgetNotFound       failure.ErrorCode = "BudgetNotFound"
	UnresolvableItem     failure.ErrorCode = "UnresolvableItem"     // no fresh data exists for a referenced item
	InvalidStrategy      failure.ErrorCode = "InvalidStrategy"
	ProviderFetchTimeout failure.ErrorCode = "ProviderFetchTimeout" // retryable
	RuleEvaluation       failure.ErrorCode = "RuleEvaluation"       // malformed rule definition
	RuleSetNotFound      failure.ErrorCode = "RuleSetNotFound"
)
