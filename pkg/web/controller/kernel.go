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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alibaba/opensandbox/kernelcore/pkg/config"
	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
	"github.com/alibaba/opensandbox/kernelcore/pkg/discovery"
	"github.com/alibaba/opensandbox/kernelcore/pkg/web/model"
)

// KernelController exposes kernel discovery: the list of connections a
// caller may choose from when creating a session.
type KernelController struct {
	*basicController
	services *config.Services
}

// NewKernelController builds a KernelController bound to services.
func NewKernelController(ctx *gin.Context, services *config.Services) *KernelController {
	return &KernelController{basicController: newBasicController(ctx), services: services}
}

// ListKernels returns every currently discovered kernel connection.
func (c *KernelController) ListKernels() {
	kernels, err := c.services.Index.ListKernels(c.ctx.Request.Context(), "", discovery.UseCache)
	if err != nil {
		c.RespondError(http.StatusInternalServerError, model.ErrorCodeRuntimeError, err.Error())
		return
	}
	c.RespondSuccess(toKernelConnectionInfos(kernels))
}

func toKernelConnectionInfos(kernels []connection.Kernel) []model.KernelConnectionInfo {
	out := make([]model.KernelConnectionInfo, 0, len(kernels))
	for _, k := range kernels {
		out = append(out, toKernelConnectionInfo(k))
	}
	return out
}

func toKernelConnectionInfo(k connection.Kernel) model.KernelConnectionInfo {
	info := model.KernelConnectionInfo{ID: k.ID(), Kind: string(k.Kind)}
	if k.Spec != nil {
		info.Spec = &model.KernelSpecInfo{
			Name:          k.Spec.Name,
			DisplayName:   k.Spec.DisplayName,
			Language:      k.Spec.Language,
			InterruptMode: k.Spec.InterruptMode,
		}
	}
	if k.Interpreter != nil {
		info.Interpreter = &model.InterpreterInfo{
			Path:        k.Interpreter.Path,
			DisplayName: k.Interpreter.DisplayName,
			Language:    k.Interpreter.Language,
			EnvType:     string(k.Interpreter.EnvType),
		}
	}
	return info
}

// findKernelByID re-lists the discovered kernels and returns the one whose
// ID matches, since connection.Kernel carries no server-side handle beyond
// its own deterministic ID.
func findKernelByID(c *gin.Context, services *config.Services, id string) (connection.Kernel, bool) {
	kernels, err := services.Index.ListKernels(c.Request.Context(), "", discovery.UseCache)
	if err != nil {
		return connection.Kernel{}, false
	}
	for _, k := range kernels {
		if k.ID() == id {
			return k, true
		}
	}
	return connection.Kernel{}, false
}
