// Package auth authenticates librarians and borrowers.
//
// Two modes are supported:
//   - "none": every request is anonymous and treated as staff. Handlers take
//     the acting staff member from the request body.
//   - "local" (default): persons log in with a password or a face photo and
//     receive a session cookie; API clients use bearer tokens.
//
// # Configuration
//
//	AUTH_MODE=local
//	AUTH_SESSION_SECRET=<hex or base64, 32 bytes>  # generated when empty
//	AUTH_SESSION_LIFETIME=24h
//	AUTH_TOKEN_EXPIRY=720h
//	AUTH_BCRYPT_COST=12
//	AUTH_SECURE_COOKIES=true
//
// Roles are ordered borrower < staff < admin; RequireRole admits any role
// that includes the requested one.
//
// # Usage
//
//	svc := auth.NewService(db.DB, cfg.Auth)
//	sessions, _ := auth.NewSessionManager(sqlDB, db.Driver, cfg.Auth)
//	router.Use(sessions.LoadAndSaveGin())
//	router.Use(auth.NewMiddleware(svc, sessions, cfg.Auth).Handler())
//	staff := router.Group("/api", auth.RequireRole(entities.RoleStaff))
//
// In handlers:
//
//	personID := auth.GetPersonID(c) // AnonymousPersonID when auth is disabled
package auth
