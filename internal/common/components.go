package common

const (
	ComponentIngester   = "ingester"
	ComponentArchive    = "archive-client"
	ComponentCursor     = "cursor"
	ComponentHandlers   = "handlers"
	ComponentStatus     = "status"
	ComponentQuoteHub   = "quote-hub"
	ComponentAggregator = "quote-aggregator"
	ComponentAPI        = "api"
)

var AllComponents = map[string]struct{}{
	ComponentIngester:   {},
	ComponentArchive:    {},
	ComponentCursor:     {},
	ComponentHandlers:   {},
	ComponentStatus:     {},
	ComponentQuoteHub:   {},
	ComponentAggregator: {},
	ComponentAPI:        {},
}
