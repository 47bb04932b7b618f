package server

import "net/http"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/session", s.limiter.middleware(s.handleLogin))
	mux.HandleFunc("DELETE /v1/session", s.requireAuth(s.handleLogout))

	mux.HandleFunc("GET /v1/accounts", s.requireAuth(s.handleListAccounts))
	mux.HandleFunc("POST /v1/accounts", s.requireAuth(s.handleCreateAccount))
	mux.HandleFunc("PUT /v1/accounts/{id}", s.requireAuth(s.handleUpdateAccount))
	mux.HandleFunc("DELETE /v1/accounts/{id}", s.requireAuth(s.handleDeleteAccount))
	mux.HandleFunc("POST /v1/accounts/{id}/move", s.requireAuth(s.handleMoveAccount))
	mux.HandleFunc("PUT /v1/accounts/{id}/groups/{gid}", s.requireAuth(s.handleJoinGroup))
	mux.HandleFunc("DELETE /v1/accounts/{id}/groups/{gid}", s.requireAuth(s.handleLeaveGroup))

	mux.HandleFunc("GET /v1/groups", s.requireAuth(s.handleListGroups))
	mux.HandleFunc("POST /v1/groups", s.requireAuth(s.handleCreateGroup))
	mux.HandleFunc("PATCH /v1/groups/{id}", s.requireAuth(s.handleRenameGroup))
	mux.HandleFunc("DELETE /v1/groups/{id}", s.requireAuth(s.handleDeleteGroup))

	mux.HandleFunc("GET /v1/users", s.requireAdmin(s.handleListUsers))
	mux.HandleFunc("POST /v1/users", s.requireAdmin(s.handleAddUser))
	mux.HandleFunc("DELETE /v1/users/{name}", s.requireAdmin(s.handleRemoveUser))
	mux.HandleFunc("POST /v1/users/{name}/reset", s.requireAdmin(s.handleResetPassword))
	mux.HandleFunc("POST /v1/password", s.requireAuth(s.handleChangePassword))

	mux.HandleFunc("POST /v1/save", s.requireAuth(s.handleSave))
	mux.HandleFunc("GET /v1/backups", s.requireAuth(s.handleListBackups))

	return mux
}
