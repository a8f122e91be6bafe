// SPDX-License-Identifier: MIT

package http

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/hearthside/relay/database/query"

	"log"
)

type (
	AdminHandler struct{}

	whitelistUpsertRequest struct {
		Cohorts   []string `json:"cohorts"`
		ExpiresAt *int64   `json:"expiresAt"`
	}
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

var pubkeyRE = regexp.MustCompile(`^[0-9a-f]{64}$`)

func NewAdminHandler() *AdminHandler {
	return &AdminHandler{}
}

func (*AdminHandler) ListWhitelist() gin.HandlerFunc {
	return func(gCtx *gin.Context) {
		limit := queryInt(gCtx, "limit", defaultListLimit)
		if limit <= 0 || limit > maxListLimit {
			limit = defaultListLimit
		}
		offset := queryInt(gCtx, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		entries, err := query.ListWhitelistEntries(gCtx.Request.Context(), limit, offset)
		if err != nil {
			log.Printf("ERROR:%v", errors.Wrap(err, "failed to list whitelist entries"))
			gCtx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list whitelist"})

			return
		}
		gCtx.JSON(http.StatusOK, gin.H{"entries": entries, "limit": limit, "offset": offset})
	}
}

func (*AdminHandler) GetWhitelistEntry() gin.HandlerFunc {
	return func(gCtx *gin.Context) {
		pubkey, ok := pathPubkey(gCtx)
		if !ok {
			return
		}
		entry, err := query.GetWhitelistEntry(gCtx.Request.Context(), pubkey)
		if err != nil {
			if errors.Is(err, query.ErrWhitelistEntryNotFound) {
				gCtx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not whitelisted"})

				return
			}
			log.Printf("ERROR:%v", errors.Wrapf(err, "failed to get whitelist entry %v", pubkey))
			gCtx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to get whitelist entry"})

			return
		}
		gCtx.JSON(http.StatusOK, entry)
	}
}

func (*AdminHandler) UpsertWhitelistEntry() gin.HandlerFunc {
	return func(gCtx *gin.Context) {
		pubkey, ok := pathPubkey(gCtx)
		if !ok {
			return
		}
		var body whitelistUpsertRequest
		if err := gCtx.ShouldBindJSON(&body); err != nil {
			gCtx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed body"})

			return
		}
		entry := &query.WhitelistEntry{
			PubKey:    pubkey,
			Cohorts:   body.Cohorts,
			AddedBy:   gCtx.GetString(CtxKeyAdminPubkey),
			ExpiresAt: body.ExpiresAt,
		}
		if err := query.UpsertWhitelistEntry(gCtx.Request.Context(), entry); err != nil {
			log.Printf("ERROR:%v", errors.Wrapf(err, "failed to upsert whitelist entry %v", pubkey))
			gCtx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to upsert whitelist entry"})

			return
		}
		gCtx.JSON(http.StatusOK, entry)
	}
}

func (*AdminHandler) DeleteWhitelistEntry() gin.HandlerFunc {
	return func(gCtx *gin.Context) {
		pubkey, ok := pathPubkey(gCtx)
		if !ok {
			return
		}
		if err := query.DeleteWhitelistEntry(gCtx.Request.Context(), pubkey); err != nil {
			log.Printf("ERROR:%v", errors.Wrapf(err, "failed to delete whitelist entry %v", pubkey))
			gCtx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to delete whitelist entry"})

			return
		}
		gCtx.Status(http.StatusNoContent)
	}
}

func (*AdminHandler) Stats() gin.HandlerFunc {
	return func(gCtx *gin.Context) {
		stats, err := query.Stats(gCtx.Request.Context())
		if err != nil {
			log.Printf("ERROR:%v", errors.Wrap(err, "failed to collect relay stats"))
			gCtx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to collect stats"})

			return
		}
		gCtx.JSON(http.StatusOK, stats)
	}
}

func pathPubkey(gCtx *gin.Context) (string, bool) {
	pubkey := gCtx.Param("pubkey")
	if !pubkeyRE.MatchString(pubkey) {
		gCtx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed pubkey"})

		return "", false
	}

	return pubkey, true
}

func queryInt(gCtx *gin.Context, name string, fallback int64) int64 {
	raw := gCtx.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return value
}
