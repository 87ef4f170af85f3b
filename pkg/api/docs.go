// Package api provides the REST API for the swap indexer
// @title Swap Indexer API
// @version 1.0
// @description REST API for opening swap deposit channels, tracking swap status and aggregating quotes
// @contact.name API Support
// @contact.url https://github.com/chainflip-io/chainflip-backend-sub000
// @host localhost:8080
// @basePath /api/v1
// @schemes http https
package api
