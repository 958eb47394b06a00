package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cuemby/fabrik/pkg/registry"
	"github.com/go-chi/chi/v5"
)

// newRegistryMux exposes Registry's revision protocol over plain JSON
// HTTP as the registry's administration surface. This is deliberately
// not a gRPC service: the
// RPC fabric's wire protocol (pkg/rpc/wire) is reserved for invocation
// traffic between the gateway and runtime hosts, and the registry has
// no such latency-sensitive path to justify the hand-rolled codec.
// onActivate, when non-nil, is invoked after a deployment successfully
// activates so the caller can drive a rollout against the environment's
// newly pinned component versions. Only the all-in-one topology supplies
// one; a standalone registry process has no local workers to roll.
func newRegistryMux(reg *registry.Registry, onActivate func(environmentID string)) http.Handler {
	r := chi.NewRouter()

	r.Post("/applications", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			AccountID string `json:"account_id"`
			Name      string `json:"name"`
			CreatedBy string `json:"created_by"`
		}
		if !decodeJSON(w, req, &body) {
			return
		}
		app, rev, err := reg.CreateApplication(body.AccountID, body.Name, body.CreatedBy)
		writeResult(w, map[string]interface{}{"application": app, "revision": rev}, err)
	})

	r.Post("/applications/{id}/delete", func(w http.ResponseWriter, req *http.Request) {
		err := reg.DeleteApplication(chi.URLParam(req, "id"))
		writeResult(w, map[string]interface{}{"deleted": err == nil}, err)
	})

	r.Post("/environments", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ApplicationID string         `json:"application_id"`
			Name          string         `json:"name"`
			Components    map[string]int `json:"components"`
			CreatedBy     string         `json:"created_by"`
		}
		if !decodeJSON(w, req, &body) {
			return
		}
		env, rev, err := reg.CreateEnvironment(body.ApplicationID, body.Name, body.Components, body.CreatedBy)
		writeResult(w, map[string]interface{}{"environment": env, "revision": rev}, err)
	})

	r.Get("/environments/{id}", func(w http.ResponseWriter, req *http.Request) {
		accountID := req.URL.Query().Get("account_id")
		override := req.URL.Query().Get("override") == "true"
		view, err := reg.GetEnvironmentView(accountID, chi.URLParam(req, "id"), override)
		writeResult(w, view, err)
	})

	r.Post("/environments/{id}", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			AccountID  string         `json:"account_id"`
			Components map[string]int `json:"components"`
			CreatedBy  string         `json:"created_by"`
			Override   bool           `json:"override"`
		}
		if !decodeJSON(w, req, &body) {
			return
		}
		view, err := reg.UpdateEnvironment(body.AccountID, chi.URLParam(req, "id"), body.Components, body.CreatedBy, body.Override)
		writeResult(w, view, err)
	})

	r.Post("/environments/{id}/delete", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			AccountID string `json:"account_id"`
			Override  bool   `json:"override"`
		}
		if !decodeJSON(w, req, &body) {
			return
		}
		err := reg.DeleteEnvironment(body.AccountID, chi.URLParam(req, "id"), body.Override)
		writeResult(w, map[string]interface{}{"deleted": err == nil}, err)
	})

	r.Get("/environments", func(w http.ResponseWriter, req *http.Request) {
		accountID := req.URL.Query().Get("account_id")
		envs, err := reg.ListVisibleToAccount(accountID)
		writeResult(w, envs, err)
	})

	r.Post("/environments/{id}/shares", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			GrantorAccountID string `json:"grantor_account_id"`
			GranteeAccountID string `json:"grantee_account_id"`
			CanWrite         bool   `json:"can_write"`
		}
		if !decodeJSON(w, req, &body) {
			return
		}
		share, err := reg.ShareEnvironment(body.GrantorAccountID, chi.URLParam(req, "id"), body.GranteeAccountID, body.CanWrite)
		writeResult(w, share, err)
	})

	r.Post("/shares/{id}/revoke", func(w http.ResponseWriter, req *http.Request) {
		err := reg.RevokeShare(chi.URLParam(req, "id"))
		writeResult(w, map[string]interface{}{"revoked": err == nil}, err)
	})

	r.Post("/environments/{id}/deployments", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			AccountID string `json:"account_id"`
			Override  bool   `json:"override"`
		}
		if !decodeJSON(w, req, &body) {
			return
		}
		d, err := reg.CreateDeployment(body.AccountID, chi.URLParam(req, "id"), body.Override)
		writeResult(w, d, err)
	})

	r.Post("/environments/{envID}/deployments/{deploymentID}/activate", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			AccountID string `json:"account_id"`
			Override  bool   `json:"override"`
		}
		if !decodeJSON(w, req, &body) {
			return
		}
		envID := chi.URLParam(req, "envID")
		err := reg.ActivateDeployment(body.AccountID, envID, chi.URLParam(req, "deploymentID"), body.Override)
		if err == nil && onActivate != nil {
			go onActivate(envID)
		}
		writeResult(w, map[string]interface{}{"activated": err == nil}, err)
	})

	return r
}

func decodeJSON(w http.ResponseWriter, req *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeResult(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, registry.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, registry.ErrVisibilityDenied):
			status = http.StatusForbidden
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
