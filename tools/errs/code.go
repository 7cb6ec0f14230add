package errs

// Request-level failure codes. The gateway never retries any of these;
// clients must be able to tell "malformed" from "not allowed" from
// "already done".
const (
	ValidationErrorCode = 1001 // malformed / missing required fields
	ForbiddenErrorCode  = 1002 // authenticated but not authorized
	NotFoundErrorCode   = 1003 // referenced message/conversation missing
	ConflictErrorCode   = 1004 // state transition rejected
	NotMemberErrorCode  = 1005 // membership-specific forbidden case

	TokenExpiredErrorCode   = 1101
	ServerInternalErrorCode = 1500
)

var (
	ErrValidation     = NewCodeError(ValidationErrorCode, "ValidationError")
	ErrForbidden      = NewCodeError(ForbiddenErrorCode, "ForbiddenError")
	ErrNotFound       = NewCodeError(NotFoundErrorCode, "NotFoundError")
	ErrConflict       = NewCodeError(ConflictErrorCode, "ConflictError")
	ErrNotMember      = NewCodeError(NotMemberErrorCode, "NotMemberError")
	ErrTokenExpired   = NewCodeError(TokenExpiredErrorCode, "TokenExpired")
	ErrServerInternal = NewCodeError(ServerInternalErrorCode, "ServerInternalError")
)

func init() {
	// NotMember is a specialization of Forbidden: callers matching on
	// ErrForbidden also match NotMember errors.
	_ = DefaultCodeRelation.Add(ForbiddenErrorCode, NotMemberErrorCode)
}
