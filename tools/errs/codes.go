package errs

// ===== error codes =====
const (
	ServerInternalError = 500

	ArgsError          = 1001
	MalformedFrame     = 1002
	NotConnected       = 1003
	AttemptsExhausted  = 1004
	IdentityStoreError = 1005
	ConfigError        = 1006
	RemoteAPIError     = 1007
)

var (
	ErrArgs              = NewCodeError(ArgsError, "invalid argument")
	ErrMalformedFrame    = NewCodeError(MalformedFrame, "malformed frame")
	ErrNotConnected      = NewCodeError(NotConnected, "not connected")
	ErrAttemptsExhausted = NewCodeError(AttemptsExhausted, "reconnect attempts exhausted")
	ErrIdentityStore     = NewCodeError(IdentityStoreError, "identity store failure")
	ErrConfig            = NewCodeError(ConfigError, "invalid config")
	ErrRemoteAPI         = NewCodeError(RemoteAPIError, "remote api failure")
)
