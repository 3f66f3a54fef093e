package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KOMKZ/go-fabric/errcode"
	"github.com/KOMKZ/go-fabric/httpx"
	"github.com/KOMKZ/go-fabric/registry"
)

// RegisterRequest 注册实例请求
type RegisterRequest struct {
	ServiceName string            `json:"service_name"`
	InstanceID  string            `json:"instance_id"`
	Address     string            `json:"address"`
	Port        int               `json:"port"`
	Weight      int               `json:"weight"`
	Metadata    map[string]string `json:"metadata"`
}

// RegisterResponse 注册成功响应
type RegisterResponse struct {
	ServiceName string `json:"service_name"`
	InstanceID  string `json:"instance_id"`
	Address     string `json:"address"`
	Version     uint64 `json:"version"`
}

// HeartbeatRequest 心跳续约请求
type HeartbeatRequest struct {
	ServiceName string `json:"service_name"`
	InstanceID  string `json:"instance_id"`
}

// LookupResponse 服务实例查询响应
type LookupResponse struct {
	ServiceName string          `json:"service_name"`
	Version     uint64          `json:"version"`
	Instances   []*InstanceView `json:"instances"`
}

// InstanceView 实例的对外视图
type InstanceView struct {
	InstanceID string            `json:"instance_id"`
	Address    string            `json:"address"`
	Port       int               `json:"port"`
	Weight     int               `json:"weight,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	State      string            `json:"state"`
}

// registryHandler 注册中心 API 处理器
type registryHandler struct {
	store   registry.Store
	monitor *registry.Monitor
}

// register POST /registry/instances
// 成功返回 201；同名存活实例返回 409；字段非法返回 400
func (h *registryHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := httpx.Parse(c, &req); err != nil {
		httpx.HandleError(c, errcode.ErrInvalidInstance.Wrap(err))
		return
	}

	inst := &registry.Instance{
		ServiceName: req.ServiceName,
		InstanceID:  req.InstanceID,
		Address:     req.Address,
		Port:        req.Port,
		Weight:      req.Weight,
		Metadata:    req.Metadata,
	}
	if err := h.store.Register(c.Request.Context(), inst); err != nil {
		httpx.HandleError(c, err)
		return
	}
	h.monitor.AnnounceRegistered(c.Request.Context(), inst)

	httpx.CreatedJson(c, &RegisterResponse{
		ServiceName: inst.ServiceName,
		InstanceID:  inst.InstanceID,
		Address:     inst.GetAddress(),
		Version:     h.store.Version(),
	})
}

// deregister DELETE /registry/instances/:service/:id
// 成功返回 204；实例不存在返回 404
func (h *registryHandler) deregister(c *gin.Context) {
	serviceName := c.Param("service")
	instanceID := c.Param("id")

	if err := h.store.Deregister(c.Request.Context(), serviceName, instanceID); err != nil {
		httpx.HandleError(c, err)
		return
	}
	h.monitor.AnnounceDeregistered(c.Request.Context(), serviceName, instanceID)
	c.Status(http.StatusNoContent)
}

// heartbeat POST /registry/heartbeat
// HEALTHY 刷新心跳；SUSPECT 恢复；DEAD 或未知返回 404，客户端应重新注册
func (h *registryHandler) heartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if err := httpx.Parse(c, &req); err != nil {
		httpx.HandleError(c, errcode.ErrInvalidInstance.Wrap(err))
		return
	}

	if req.ServiceName == "" || req.InstanceID == "" {
		httpx.HandleError(c, errcode.ErrInvalidInstance.WithMsg("service_name and instance_id are required"))
		return
	}

	if err := h.monitor.Renew(c.Request.Context(), req.ServiceName, req.InstanceID); err != nil {
		httpx.HandleError(c, err)
		return
	}
	httpx.OkJson(c, gin.H{"renewed": true})
}

// lookup GET /registry/services/:service
// 返回该服务全部 HEALTHY 实例（按实例 ID 升序）；未知服务返回空列表
func (h *registryHandler) lookup(c *gin.Context) {
	serviceName := c.Param("service")

	instances, err := h.store.Lookup(c.Request.Context(), serviceName)
	if err != nil {
		httpx.HandleError(c, err)
		return
	}

	views := make([]*InstanceView, 0, len(instances))
	for _, inst := range instances {
		views = append(views, &InstanceView{
			InstanceID: inst.InstanceID,
			Address:    inst.GetAddress(),
			Port:       inst.Port,
			Weight:     inst.Weight,
			Metadata:   inst.Metadata,
			State:      string(inst.State),
		})
	}

	httpx.OkJson(c, &LookupResponse{
		ServiceName: serviceName,
		Version:     h.store.Version(),
		Instances:   views,
	})
}
