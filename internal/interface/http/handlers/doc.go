// Package handlers contains the reusable HTTP pieces of the API server:
// bearer token authentication, composite health checks and the Telegram
// webhook endpoint.
//
//	checker := handlers.NewCompositeHealthChecker("v1")
//	checker.AddCheck("database", store.Ping)
//	checker.AddCheck("redis", cache.Ping)
//
//	auth, err := handlers.NewTokenAuth(cfg.HTTP.DashboardTokenHash)
//	mux.Handle("GET /api/v1/...", auth.Middleware(h))
package handlers
