// SPDX-License-Identifier: MIT

package http

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/nbd-wtf/go-nostr"

	"github.com/hearthside/relay/model"
)

type (
	Token interface {
		PubKey() string
		ExpectedHash() string
	}
	AuthClient interface {
		VerifyToken(gCtx *gin.Context, token string, now time.Time) (Token, error)
	}

	nostrToken struct {
		ev           model.Event
		expectedHash string
	}
	authNostr struct{}
)

const (
	tokenExpirationWindow = 15 * time.Minute
	nostrHTTPAuthKind     = 27235

	// CtxKeyAdminPubkey carries the authenticated caller through gin.
	CtxKeyAdminPubkey = "admin-pubkey"
)

var (
	ErrTokenExpired = errors.New("expired token")
	ErrTokenInvalid = errors.New("invalid token")
)

func NewAuth() AuthClient {
	return &authNostr{}
}

func (*authNostr) VerifyToken(gCtx *gin.Context, token string, now time.Time) (Token, error) {
	bToken, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal auth token: malformed base64")
	}
	var event nostr.Event
	if err = event.UnmarshalJSON(bToken); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal auth token: malformed event json")
	}
	var ok bool
	if ok, err = event.CheckSignature(); err != nil {
		return nil, errors.Wrapf(err, "invalid token signature")
	} else if !ok {
		return nil, errors.Wrapf(ErrTokenInvalid, "invalid token signature")
	}
	if event.Kind != nostrHTTPAuthKind {
		return nil, errors.Wrapf(ErrTokenInvalid, "invalid token event kind %v", event.Kind)
	}
	if event.CreatedAt.Time().After(now) || (event.CreatedAt.Time().Before(now) && now.Sub(event.CreatedAt.Time()) > tokenExpirationWindow) {
		return nil, ErrTokenExpired
	}
	if urlTag := event.Tags.GetFirst([]string{"u"}); urlTag != nil && len(*urlTag) > 1 {
		var urlValue *url.URL
		urlValue, err = url.Parse(urlTag.Value())
		if err != nil {
			return nil, errors.Wrapf(ErrTokenInvalid, "failed to parse url tag with %v", urlTag.Value())
		}
		scheme := "http"
		if gCtx.Request.TLS != nil {
			scheme = "https"
		}
		fullReqURL := &url.URL{
			Scheme:   scheme,
			Host:     gCtx.Request.Host,
			Path:     gCtx.Request.URL.Path,
			RawQuery: gCtx.Request.URL.RawQuery,
			Fragment: gCtx.Request.URL.Fragment,
		}
		if urlValue.String() != fullReqURL.String() {
			return nil, errors.Wrapf(ErrTokenInvalid, "url mismatch token>%v url>%v", urlValue, fullReqURL)
		}
	} else {
		return nil, errors.Wrapf(ErrTokenInvalid, "malformed u tag %v", urlTag)
	}
	if methodTag := event.Tags.GetFirst([]string{"method"}); methodTag != nil && len(*methodTag) > 1 {
		if method := methodTag.Value(); method != gCtx.Request.Method {
			return nil, errors.Wrapf(ErrTokenInvalid, "method mismatch token>%v request>%v", method, gCtx.Request.Method)
		}
	} else {
		return nil, errors.Wrapf(ErrTokenInvalid, "malformed method tag %v", methodTag)
	}
	expectedHash := ""
	if payloadTag := event.Tags.GetFirst([]string{"payload"}); payloadTag != nil && len(*payloadTag) > 1 {
		expectedHash = payloadTag.Value()
	}

	return &nostrToken{ev: model.Event{Event: event}, expectedHash: expectedHash}, nil
}

func (t *nostrToken) PubKey() string {
	return t.ev.PubKey
}

func (t *nostrToken) ExpectedHash() string {
	return t.expectedHash
}

// WithAuth guards the admin side-channel: a valid NIP-98 token signed by one
// of the configured admin pubkeys, with the payload hash checked for
// body-carrying requests.
func WithAuth(auth AuthClient, adminPubkeys []string) gin.HandlerFunc {
	admins := make(map[string]struct{}, len(adminPubkeys))
	for _, pubkey := range adminPubkeys {
		admins[strings.ToLower(pubkey)] = struct{}{}
	}

	return func(gCtx *gin.Context) {
		const prefix = "Nostr "
		header := gCtx.GetHeader("Authorization")
		if !strings.HasPrefix(header, prefix) {
			gCtx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing nostr token"})

			return
		}
		token, err := auth.VerifyToken(gCtx, strings.TrimPrefix(header, prefix), time.Now())
		if err != nil {
			gCtx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})

			return
		}
		if _, isAdmin := admins[strings.ToLower(token.PubKey())]; !isAdmin {
			gCtx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not an admin"})

			return
		}
		if gCtx.Request.Body != nil && gCtx.Request.ContentLength > 0 {
			body, rErr := io.ReadAll(gCtx.Request.Body)
			if rErr != nil {
				gCtx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})

				return
			}
			gCtx.Request.Body = io.NopCloser(bytes.NewReader(body))
			hash := sha256.Sum256(body)
			if token.ExpectedHash() != hex.EncodeToString(hash[:]) {
				gCtx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "payload hash mismatch"})

				return
			}
		}
		gCtx.Set(CtxKeyAdminPubkey, token.PubKey())
		gCtx.Next()
	}
}
