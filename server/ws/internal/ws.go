// SPDX-License-Identifier: MIT

package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gookit/goutil/errorx"

	"github.com/hearthside/relay/server/ws/internal/adapters"
	"github.com/hearthside/relay/server/ws/internal/config"

	"log"
)

func NewWSServer(routes RegisterRoutes, cfg *config.Config) Server {
	s := &srv{cfg: cfg, routesSetup: routes}
	s.router = s.setupRouter()

	return s
}

func (s *srv) setupRouter() *Router {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(ginCtx *gin.Context) {
		ginCtx.Request = ginCtx.Request.WithContext(context.WithValue(ginCtx.Request.Context(), adapters.CtxKeyServer, s)) //nolint:revive,staticcheck // Interop with stdlib handlers.
		ginCtx.Next()
	})
	s.routesSetup.RegisterRoutes(router)

	return router
}

func (s *srv) ListenAndServe(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%v", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	go s.startServer()
	s.wait(ctx)
	s.shutDown() //nolint:contextcheck // Nope, we want to gracefully shutdown on a different context.
}

func (s *srv) startServer() {
	defer log.Printf("server stopped listening")
	log.Printf("server started listening on %v...", s.cfg.Port)

	isUnexpectedError := func(err error) bool {
		return err != nil &&
			!errors.Is(err, io.EOF) &&
			!errors.Is(err, http.ErrServerClosed)
	}

	var err error
	if s.cfg.CertPath != "" && s.cfg.KeyPath != "" {
		err = s.server.ListenAndServeTLS(s.cfg.CertPath, s.cfg.KeyPath)
	} else {
		err = s.server.ListenAndServe()
	}
	if isUnexpectedError(err) {
		s.quit <- syscall.SIGTERM
		log.Printf("ERROR:%v", errorx.With(err, "server.ListenAndServe failed"))
	}
}

func (s *srv) wait(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	s.quit = quit
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-quit:
	}
}

func (s *srv) shutDown() {
	log.Printf("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("ERROR:%v", errorx.With(err, "server shutdown failed"))
	} else {
		log.Printf("server shutdown succeeded")
	}
}
