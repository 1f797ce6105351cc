package td

// Authorization state discriminators reported inside updateAuthorizationState.
const (
	AuthStateWaitParameters    = "authorizationStateWaitTdlibParameters"
	AuthStateWaitEncryptionKey = "authorizationStateWaitEncryptionKey"
	AuthStateWaitPhoneNumber   = "authorizationStateWaitPhoneNumber"
	AuthStateWaitCode          = "authorizationStateWaitCode"
	AuthStateWaitRegistration  = "authorizationStateWaitRegistration"
	AuthStateWaitPassword      = "authorizationStateWaitPassword"
	AuthStateReady             = "authorizationStateReady"
	AuthStateLoggingOut        = "authorizationStateLoggingOut"
	AuthStateClosing           = "authorizationStateClosing"
	AuthStateClosed            = "authorizationStateClosed"
)

// Error messages the authorization flow recovers from or treats as fatal.
const (
	ErrMsgPhoneCodeEmpty      = "PHONE_CODE_EMPTY"
	ErrMsgPhoneCodeInvalid    = "PHONE_CODE_INVALID"
	ErrMsgPasswordHashInvalid = "PASSWORD_HASH_INVALID"
	ErrMsgAccessTokenInvalid  = "ACCESS_TOKEN_INVALID"
)
