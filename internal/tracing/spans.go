package tracing

// Span attribute keys.
const (
	AttrInvocationID     = "invocation.id"
	AttrInvocationTarget = "invocation.target"
	AttrInvocationState  = "invocation.state"
	AttrCommandName      = "command.name"

	AttrWikiAction   = "wiki.action"
	AttrWikiEndpoint = "wiki.endpoint"
	AttrWikiStatus   = "wiki.http.status"
	AttrWikiErrCode  = "wiki.error.code"

	AttrStoreTable = "store.table"
)

// Span name prefixes.
const (
	SpanPrefixInvocation = "invocation."
	SpanPrefixWikiAction = "wiki.api."
	SpanPrefixStore      = "store."
)

// Event names for span events.
const (
	EventInvocationAbandoned = "invocation.abandoned"
	EventTokenRefreshed      = "wiki.token.refreshed"
	EventCacheHit            = "cache.hit"
)
