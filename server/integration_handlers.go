//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package server

import (
	"net/http"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/storage"
)

func (s *Server) handleListIntegrationAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListIntegrationAccounts(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleCreateIntegrationAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID             string `json:"user_id"`
		Toolkit            string `json:"toolkit"`
		ConnectedAccountID string `json:"connected_account_id"`
		Status             string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Toolkit == "" || req.ConnectedAccountID == "" {
		s.respondError(w, http.StatusBadRequest, "toolkit and connected_account_id are required")
		return
	}
	if req.Status == "" {
		req.Status = "active"
	}
	account := &storage.IntegrationAccount{
		UserID:             req.UserID,
		Toolkit:            req.Toolkit,
		ConnectedAccountID: req.ConnectedAccountID,
		Status:             req.Status,
	}
	if err := s.store.CreateIntegrationAccount(r.Context(), account); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, account)
}

// handleSignFile mints a fresh signed URL for a stored file asset and
// persists it on the row.
func (s *Server) handleSignFile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if s.artifacts == nil {
		s.respondError(w, http.StatusServiceUnavailable, "object store not configured")
		return
	}
	asset, err := s.store.GetFileAsset(r.Context(), id)
	if err != nil {
		s.respondNotFound(w, err, "file not found")
		return
	}
	signed, err := s.artifacts.CreateSignedURL(r.Context(), asset.Bucket, asset.Path, s.signedURLTTL)
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	expires := time.Now().Add(s.signedURLTTL).UTC()
	asset.SignedURL = signed
	asset.SignedURLExpiresAt = &expires
	if err := s.store.UpdateFileAsset(r.Context(), asset); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"signed_url": signed,
		"expires_at": expires,
	})
}
