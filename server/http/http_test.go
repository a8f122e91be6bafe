// SPDX-License-Identifier: MIT

package http

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/relay/database/query"
)

func TestNIP11Handler(t *testing.T) {
	t.Parallel()

	handler := NewNIP11Handler(&NIP11Config{Name: "hearthside", Description: "test relay", Contact: "admin@localhost"})

	t.Run("ServesInfoDocument", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://relay.test/", nil)
		req.Header.Set("Accept", "application/nostr+json")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code)
		var info nip11.RelayInformationDocument
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &info))
		assert.Equal(t, "hearthside", info.Name)
		assert.Equal(t, "hearthside", info.Software)
		assert.Contains(t, info.SupportedNIPs, 45)
		require.NotNil(t, info.Limitation)
		assert.True(t, info.Limitation.RestrictedWrites)
		assert.Equal(t, 5000, info.Limitation.MaxLimit)
	})
	t.Run("RejectsWrongAccept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://relay.test/", nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		require.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func helperNIP98Token(t *testing.T, privkey, method, fullURL string, body []byte) string {
	t.Helper()
	tags := nostr.Tags{{"u", fullURL}, {"method", method}}
	if len(body) > 0 {
		hash := sha256.Sum256(body)
		tags = append(tags, nostr.Tag{"payload", hex.EncodeToString(hash[:])})
	}
	ev := nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      nostrHTTPAuthKind,
		Tags:      tags,
		Content:   "",
	}
	require.NoError(t, ev.Sign(privkey))
	data, err := ev.MarshalJSON()
	require.NoError(t, err)

	return base64.StdEncoding.EncodeToString(data)
}

func helperAuthRouter(adminPubkeys []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(WithAuth(NewAuth(), adminPubkeys))
	router.GET("/admin/probe", func(gCtx *gin.Context) {
		gCtx.JSON(http.StatusOK, gin.H{"pubkey": gCtx.GetString(CtxKeyAdminPubkey)})
	})
	router.PUT("/admin/probe", func(gCtx *gin.Context) {
		gCtx.Status(http.StatusOK)
	})

	return router
}

func TestWithAuth(t *testing.T) {
	adminKey := nostr.GeneratePrivateKey()
	adminPub, err := nostr.GetPublicKey(adminKey)
	require.NoError(t, err)
	strangerKey := nostr.GeneratePrivateKey()
	router := helperAuthRouter([]string{adminPub})

	const probeURL = "http://relay.test/admin/probe"

	t.Run("ValidAdminToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, probeURL, nil)
		req.Header.Set("Authorization", "Nostr "+helperNIP98Token(t, adminKey, http.MethodGet, probeURL, nil))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), adminPub)
	})
	t.Run("MissingToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, probeURL, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})
	t.Run("NonAdminSigner", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, probeURL, nil)
		req.Header.Set("Authorization", "Nostr "+helperNIP98Token(t, strangerKey, http.MethodGet, probeURL, nil))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusForbidden, resp.Code)
	})
	t.Run("MethodMismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, probeURL, nil)
		req.Header.Set("Authorization", "Nostr "+helperNIP98Token(t, adminKey, http.MethodDelete, probeURL, nil))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})
	t.Run("URLMismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, probeURL, nil)
		req.Header.Set("Authorization", "Nostr "+helperNIP98Token(t, adminKey, http.MethodGet, "http://evil.test/admin/probe", nil))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})
	t.Run("PayloadHashIsEnforced", func(t *testing.T) {
		body := []byte(`{"cohorts":["friends"]}`)
		req := httptest.NewRequest(http.MethodPut, probeURL, bytes.NewReader(body))
		req.Header.Set("Authorization", "Nostr "+helperNIP98Token(t, adminKey, http.MethodPut, probeURL, []byte("different")))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusUnauthorized, resp.Code)

		req = httptest.NewRequest(http.MethodPut, probeURL, bytes.NewReader(body))
		req.Header.Set("Authorization", "Nostr "+helperNIP98Token(t, adminKey, http.MethodPut, probeURL, body))
		resp = httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code)
	})
}

func helperAdminRouter(callerPubkey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(gCtx *gin.Context) { gCtx.Set(CtxKeyAdminPubkey, callerPubkey) })
	admin := NewAdminHandler()
	router.GET("/admin/whitelist", admin.ListWhitelist())
	router.GET("/admin/whitelist/:pubkey", admin.GetWhitelistEntry())
	router.PUT("/admin/whitelist/:pubkey", admin.UpsertWhitelistEntry())
	router.DELETE("/admin/whitelist/:pubkey", admin.DeleteWhitelistEntry())
	router.GET("/admin/stats", admin.Stats())

	return router
}

func TestAdminWhitelistCRUD(t *testing.T) {
	query.MustInit()

	adminKey := nostr.GeneratePrivateKey()
	adminPub, err := nostr.GetPublicKey(adminKey)
	require.NoError(t, err)
	router := helperAdminRouter(adminPub)

	memberKey := nostr.GeneratePrivateKey()
	memberPub, err := nostr.GetPublicKey(memberKey)
	require.NoError(t, err)

	t.Run("GetMissingEntry", func(t *testing.T) {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/admin/whitelist/"+memberPub, nil))
		require.Equal(t, http.StatusNotFound, resp.Code)
	})
	t.Run("MalformedPubkey", func(t *testing.T) {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/admin/whitelist/not-a-pubkey", nil))
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})
	t.Run("Upsert", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"cohorts":["friends"]}`))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodPut, "/admin/whitelist/"+memberPub, body))
		require.Equal(t, http.StatusOK, resp.Code)

		var entry query.WhitelistEntry
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &entry))
		assert.Equal(t, memberPub, entry.PubKey)
		assert.Equal(t, []string{"friends"}, entry.Cohorts)
		assert.Equal(t, adminPub, entry.AddedBy)
	})
	t.Run("GetAfterUpsert", func(t *testing.T) {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/admin/whitelist/"+memberPub, nil))
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), memberPub)
	})
	t.Run("List", func(t *testing.T) {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/admin/whitelist?limit=10", nil))
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), memberPub)
	})
	t.Run("Stats", func(t *testing.T) {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
		require.Equal(t, http.StatusOK, resp.Code)

		var stats query.RelayStats
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stats))
		assert.GreaterOrEqual(t, stats.WhitelistCount, int64(1))
		assert.Positive(t, stats.StorageBytes)
	})
	t.Run("Delete", func(t *testing.T) {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/admin/whitelist/"+memberPub, nil))
		require.Equal(t, http.StatusNoContent, resp.Code)

		resp = httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/admin/whitelist/"+memberPub, nil))
		require.Equal(t, http.StatusNotFound, resp.Code)
	})
}
