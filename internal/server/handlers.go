package server

import (
	"net/http"

	"github.com/tjdeveng/KeepTower-sub010/internal/backup"
	"github.com/tjdeveng/KeepTower-sub010/internal/vault"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token                 string     `json:"token"`
	Role                  vault.Role `json:"role"`
	MustChangePassword    bool       `json:"must_change_password"`
	MustEnrollHardwareKey bool       `json:"must_enroll_hardware_key"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authn.Open(r.Context(), s.cfg.VaultPath, req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}
	_, role, _ := s.authn.CurrentUser()
	token, err := s.issuer.Issue(req.Username, role)
	if err != nil {
		s.authn.Close()
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:                 token,
		Role:                  role,
		MustChangePassword:    s.authn.MustChangePassword(),
		MustEnrollHardwareKey: s.authn.MustEnrollHardwareKey(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authn.Close()
	writeJSON(w, http.StatusNoContent, nil)
}

// visibleAccount resolves an account id for the session role. Records the
// role cannot read are reported as missing so their existence does not leak.
func visibleAccount(v *vault.Vault, role vault.Role, id string) (int, vault.AccountRecord, bool) {
	idx := v.Accounts().IndexOf(id)
	if idx < 0 {
		return -1, vault.AccountRecord{}, false
	}
	rec, err := v.Accounts().Get(idx)
	if err != nil || !rec.VisibleTo(role) {
		return -1, vault.AccountRecord{}, false
	}
	return idx, rec, true
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.authn.Vault()
	if err != nil {
		writeError(w, err)
		return
	}
	role := claimsFrom(r).Role
	if q := r.URL.Query().Get("q"); q != "" {
		writeJSON(w, http.StatusOK, v.Accounts().SearchFor(q, role))
		return
	}
	writeJSON(w, http.StatusOK, v.Accounts().SnapshotFor(role))
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.authn.Vault()
	if err != nil {
		writeError(w, err)
		return
	}
	var rec vault.AccountRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	id := v.Accounts().Add(rec)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.authn.Vault()
	if err != nil {
		writeError(w, err)
		return
	}
	var rec vault.AccountRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	idx, _, ok := visibleAccount(v, claimsFrom(r).Role, r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no such account"})
		return
	}
	if err := v.Accounts().Update(idx, rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.authn.Vault()
	if err != nil {
		writeError(w, err)
		return
	}
	role := claimsFrom(r).Role
	idx, rec, ok := visibleAccount(v, role, r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no such account"})
		return
	}
	if !rec.DeletableBy(role) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "administrator role required to delete this account"})
		return
	}
	if err := v.Accounts().Delete(idx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type moveRequest struct {
	To int `json:"to"`
}

func (s *Server) handleMoveAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.authn.Vault()
	if err != nil {
		writeError(w, err)
		return
	}
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	idx, _, ok := visibleAccount(v, claimsFrom(r).Role, r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no such account"})
		return
	}
	if err := v.Accounts().Reorder(idx, req.To); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.authn.Vault()
	if err != nil {
		writeError(w, err)
		return
	}
	_, _, ok := visibleAccount(v, claimsFrom(r).Role, r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no such account"})
		return
	}
	if err := v.Accounts().AddToGroup(r.PathValue("id"), r.PathValue("gid")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.authn.Vault()
	if err != nil {
		writeError(w, err)
		return
	}
	_, _, ok := visibleAccount(v, claimsFrom(r).Role, r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no such account"})
		return
	}
	if err := v.Accounts().RemoveFromGroup(r.PathValue("id"), r.PathValue("gid")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.authn.Vault()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Groups().Snapshot())
}

type groupRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.authn.Vault()
	if err != nil {
		writeError(w, err)
		return
	}
	var req groupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := v.Groups().Create(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleRenameGroup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.authn.Vault()
	if err != nil {
		writeError(w, err)
		return
	}
	var req groupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := v.Groups().Rename(r.PathValue("id"), req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.authn.Vault()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := v.Groups().Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type userInfo struct {
	Username           string     `json:"username"`
	Role               vault.Role `json:"role"`
	HardwareKey        bool       `json:"hardware_key"`
	MustChangePassword bool       `json:"must_change_password"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.authn.Vault()
	if err != nil {
		writeError(w, err)
		return
	}
	slots := v.Slots()
	out := make([]userInfo, 0, len(slots))
	for _, slot := range slots {
		out = append(out, userInfo{
			Username:           slot.Username,
			Role:               slot.Role,
			HardwareKey:        slot.HardwareKeyEnrolled,
			MustChangePassword: slot.MustChangePassword,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type addUserRequest struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Role     vault.Role `json:"role"`
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var req addUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = vault.RoleStandardUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authn.AddUser(req.Username, req.Password, req.Role); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, nil)
}

func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authn.RemoveUser(r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type passwordRequest struct {
	OldPassword string `json:"old_password,omitempty"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authn.AdminResetUserPassword(r.PathValue("name"), req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authn.ChangePassword(r.Context(), req.OldPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authn.Save(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	names := backup.List(s.cfg.VaultPath, s.cfg.BackupDir)
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}
