package http

// HTTP headers
const (
	HeaderAccept      = "Accept"
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-Id"
	HeaderUserAgent   = "User-Agent"
)

// Content types
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

const userAgent = "sioemitter"
