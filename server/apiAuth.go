package server

import (
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/lotcam/lotcam/server/configdb"
)

func (s *Server) httpAuthLogin(w http.ResponseWriter, r *http.Request) {
	s.configDB.Login(w, r)
}

func (s *Server) httpAuthLogout(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	s.configDB.Logout(w, r)
}

func (s *Server) httpAuthWhoAmi(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	www.SendJSON(w, &user)
}

func (s *Server) httpAuthHasAdmin(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	n, err := s.configDB.NumAdminUsers()
	www.Check(err)
	www.SendJSONBool(w, n != 0)
}

// SYNC-CREATE-USER-JSON
type createUserJSON struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Permissions string `json:"permissions"`
	Name        string `json:"name"`
}

func (s *Server) httpAuthCreateUser(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	body := createUserJSON{}
	www.ReadJSON(w, r, &body, 1024*1024)
	newUser, err := s.configDB.CreateUser(body.Username, body.Password, body.Permissions, body.Name)
	www.CheckClient(err)
	s.Log.Infof("User %v created user %v (permissions '%v')", user.Username, newUser.Username, newUser.Permissions)
	www.SendID(w, newUser.ID)
}

func (s *Server) httpAuthListUsers(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	users, err := s.configDB.ListUsers()
	www.Check(err)
	www.SendJSON(w, users)
}
