package errs

// Err is a constant error.
type Err string

func (e Err) Error() string {
	return string(e)
}

// errors
const (
	ErrClosed           = Err("object is closed")
	ErrAlreadyStarted   = Err("already started")
	ErrNotStarted       = Err("not started")
	ErrNotSupported     = Err("operation not supported on this platform")
	ErrProtocol         = Err("protocol error")
	ErrMalformedPayload = Err("malformed payload")
	ErrFrameTooLong     = Err("frame is too long")
	ErrNoSamples        = Err("no samples recorded")
	ErrBadResponse      = Err("bad response")
	ErrBadRange         = Err("invalid range")
	ErrBadCriteria      = Err("invalid criteria")
	ErrBadCodec         = Err("unknown payload codec")
)
