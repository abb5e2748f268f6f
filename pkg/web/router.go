// Copyright 2025 Alibaba Group Holding Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alibaba/opensandbox/kernelcore/pkg/config"
	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
	"github.com/alibaba/opensandbox/kernelcore/pkg/web/controller"
	"github.com/alibaba/opensandbox/kernelcore/pkg/web/model"
)

// NewRouter builds a Gin engine with every kernelcored route, wired against
// services.
func NewRouter(accessToken string, services *config.Services) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logMiddleware(), accessTokenMiddleware(accessToken))

	r.GET("/ping", controller.PingHandler)

	kernels := r.Group("/kernels")
	{
		kernels.GET("", withKernel(services, func(c *controller.KernelController) { c.ListKernels() }))
	}

	sessions := r.Group("/sessions")
	{
		sessions.POST("", withSession(services, func(c *controller.SessionController) { c.CreateSession() }))
		sessions.GET("", withSession(services, func(c *controller.SessionController) { c.ListSessions() }))
		sessions.GET("/:id", withSession(services, func(c *controller.SessionController) { c.GetSession() }))
		sessions.POST("/:id/execute", withSession(services, func(c *controller.SessionController) { c.Execute() }))
		sessions.POST("/:id/input", withSession(services, func(c *controller.SessionController) { c.InputReply() }))
		sessions.POST("/:id/interrupt", withSession(services, func(c *controller.SessionController) { c.Interrupt() }))
		sessions.POST("/:id/restart", withSession(services, func(c *controller.SessionController) { c.Restart() }))
		sessions.DELETE("/:id", withSession(services, func(c *controller.SessionController) { c.Shutdown() }))
	}

	metric := r.Group("/metrics")
	{
		metric.GET("", withMetric(func(c *controller.MetricController) { c.GetMetrics() }))
		metric.GET("/watch", withMetric(func(c *controller.MetricController) { c.WatchMetrics() }))
	}

	return r
}

func withKernel(services *config.Services, fn func(*controller.KernelController)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		fn(controller.NewKernelController(ctx, services))
	}
}

func withSession(services *config.Services, fn func(*controller.SessionController)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		fn(controller.NewSessionController(ctx, services))
	}
}

func withMetric(fn func(*controller.MetricController)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		fn(controller.NewMetricController(ctx))
	}
}

func accessTokenMiddleware(token string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if token == "" {
			ctx.Next()
			return
		}

		requestedToken := ctx.GetHeader(model.ApiAccessTokenHeader)
		if requestedToken == "" || requestedToken != token {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{
				Code:    model.ErrorCodeRuntimeError,
				Message: "unauthorized: invalid or missing header " + model.ApiAccessTokenHeader,
			})
			return
		}

		ctx.Next()
	}
}

func logMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		log.Info("Requested: %v - %v", ctx.Request.Method, ctx.Request.URL.String())
		ctx.Next()
	}
}
