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

package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alibaba/opensandbox/kernelcore/pkg/config"
	"github.com/alibaba/opensandbox/kernelcore/pkg/launcher"
	"github.com/alibaba/opensandbox/kernelcore/pkg/session"
	"github.com/alibaba/opensandbox/kernelcore/pkg/web/model"
)

// SessionController exposes session lifecycle: create, inspect, execute
// against, and dispose of a live kernel connection.
type SessionController struct {
	*basicController
	services *config.Services
}

// NewSessionController builds a SessionController bound to services.
func NewSessionController(ctx *gin.Context, services *config.Services) *SessionController {
	return &SessionController{basicController: newBasicController(ctx), services: services}
}

// CreateSession starts a new session against the kernel connection named by
// the request's kernel_id, as previously returned by ListKernels.
func (c *SessionController) CreateSession() {
	var req model.CreateSessionRequest
	if err := c.bindJSON(&req); err != nil {
		c.RespondError(http.StatusBadRequest, model.ErrorCodeInvalidRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		c.RespondError(http.StatusBadRequest, model.ErrorCodeInvalidRequest, err.Error())
		return
	}

	kernel, ok := findKernelByID(c.ctx, c.services, req.KernelID)
	if !ok {
		c.RespondError(http.StatusNotFound, model.ErrorCodeInvalidKernel, "unknown kernel_id")
		return
	}

	facade, err := c.services.Sessions.Create(c.ctx.Request.Context(), kernel)
	if err != nil {
		c.respondLaunchError(err)
		return
	}
	c.RespondSuccess(toSessionInfo(facade))
}

// ListSessions returns every currently live session's identifier.
func (c *SessionController) ListSessions() {
	c.RespondSuccess(c.services.Sessions.List())
}

// GetSession returns one session's current status.
func (c *SessionController) GetSession() {
	facade, err := c.services.Sessions.Get(c.ctx.Param("id"))
	if err != nil {
		c.RespondError(http.StatusNotFound, model.ErrorCodeSessionNotFound, err.Error())
		return
	}
	c.RespondSuccess(toSessionInfo(facade))
}

// Execute forwards an execute_request to the session's kernel.
func (c *SessionController) Execute() {
	c.withFacade(func(facade *session.Facade) {
		var req model.ExecuteRequest
		if err := c.bindJSON(&req); err != nil {
			c.RespondError(http.StatusBadRequest, model.ErrorCodeInvalidRequest, err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			c.RespondError(http.StatusBadRequest, model.ErrorCodeInvalidRequest, err.Error())
			return
		}
		if err := facade.Execute(c.ctx.Request.Context(), req.Content); err != nil {
			c.respondSessionError(err)
			return
		}
		c.RespondSuccess(nil)
	})
}

// InputReply answers a pending input_request on the session's kernel.
func (c *SessionController) InputReply() {
	c.withFacade(func(facade *session.Facade) {
		var req model.InputReplyRequest
		if err := c.bindJSON(&req); err != nil {
			c.RespondError(http.StatusBadRequest, model.ErrorCodeInvalidRequest, err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			c.RespondError(http.StatusBadRequest, model.ErrorCodeInvalidRequest, err.Error())
			return
		}
		if err := facade.InputReply(c.ctx.Request.Context(), req.Value); err != nil {
			c.respondSessionError(err)
			return
		}
		c.RespondSuccess(nil)
	})
}

// Interrupt interrupts the session's kernel.
func (c *SessionController) Interrupt() {
	c.withFacade(func(facade *session.Facade) {
		if err := facade.Interrupt(c.ctx.Request.Context()); err != nil {
			c.respondSessionError(err)
			return
		}
		c.RespondSuccess(nil)
	})
}

// Restart restarts the session's kernel via the restart-via-swap protocol,
// preserving the session's ID and client ID.
func (c *SessionController) Restart() {
	c.withFacade(func(facade *session.Facade) {
		if err := facade.Restart(c.ctx.Request.Context()); err != nil {
			c.respondSessionError(err)
			return
		}
		c.RespondSuccess(toSessionInfo(facade))
	})
}

// Shutdown disposes the session, if the can-shutdown policy allows it.
func (c *SessionController) Shutdown() {
	c.withFacade(func(facade *session.Facade) {
		if !facade.CanShutdown() {
			c.RespondError(http.StatusConflict, model.ErrorCodeRuntimeError, "session is not eligible for shutdown")
			return
		}
		if err := facade.Shutdown(c.ctx.Request.Context()); err != nil {
			c.respondSessionError(err)
			return
		}
		c.RespondSuccess(nil)
	})
}

func (c *SessionController) withFacade(fn func(*session.Facade)) {
	facade, err := c.services.Sessions.Get(c.ctx.Param("id"))
	if err != nil {
		c.RespondError(http.StatusNotFound, model.ErrorCodeSessionNotFound, err.Error())
		return
	}
	fn(facade)
}

func (c *SessionController) respondSessionError(err error) {
	var disposed *session.SessionDisposedError
	var notSupported *session.InterruptNotSupportedError
	var timeout *session.InterruptTimeoutError
	switch {
	case errors.As(err, &disposed):
		c.RespondError(http.StatusGone, model.ErrorCodeSessionDisposed, err.Error())
	case errors.As(err, &notSupported):
		c.RespondError(http.StatusNotImplemented, model.ErrorCodeInterruptNotSupported, err.Error())
	case errors.As(err, &timeout):
		c.RespondError(http.StatusGatewayTimeout, model.ErrorCodeInterruptTimeout, err.Error())
	default:
		c.RespondError(http.StatusInternalServerError, model.ErrorCodeRuntimeError, err.Error())
	}
}

func (c *SessionController) respondLaunchError(err error) {
	var launchTimeout *launcher.LaunchTimeoutError
	var kernelDied *launcher.KernelDiedError
	var interpMissing *launcher.InterpreterNotInstalledError
	var cancelled *launcher.CancelledError
	switch {
	case errors.As(err, &launchTimeout):
		c.RespondError(http.StatusGatewayTimeout, model.ErrorCodeLaunchTimeout, err.Error())
	case errors.As(err, &kernelDied):
		c.RespondError(http.StatusBadGateway, model.ErrorCodeKernelDied, err.Error())
	case errors.As(err, &interpMissing):
		c.RespondError(http.StatusFailedDependency, model.ErrorCodeInterpreterNotInstalled, err.Error())
	case errors.As(err, &cancelled):
		c.RespondError(http.StatusRequestTimeout, model.ErrorCodeCancelled, err.Error())
	default:
		c.RespondError(http.StatusInternalServerError, model.ErrorCodeRuntimeError, err.Error())
	}
}

func toSessionInfo(facade *session.Facade) model.SessionInfo {
	return model.SessionInfo{
		ID:       facade.ID(),
		ClientID: facade.ClientID(),
		Status:   string(facade.Status()),
	}
}
