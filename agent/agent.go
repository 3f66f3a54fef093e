// Package agent 实现实例侧的注册代理。
// 启动时向注册中心注册自身，按心跳周期续约；
// 续约返回 404（实例已被判死）或注册中心不可达时，
// 按指数退避重新注册，直到恢复。
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/logger"
	"github.com/KOMKZ/go-fabric/retry"
	"github.com/KOMKZ/go-fabric/trace"
)

// ErrNotRegistered 注册中心不认识本实例，需要重新注册
var ErrNotRegistered = errors.New("agent: instance not registered")

// Agent 注册代理
type Agent struct {
	config Config
	client *http.Client
	logger *logger.CtxZapLogger

	mu         sync.Mutex
	instanceID string
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewAgent 创建注册代理
func NewAgent(config Config) (*Agent, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Agent{
		config: config,
		client: &http.Client{Timeout: config.RequestTimeout},
		logger: logger.GetLogger("agent"),
	}, nil
}

// InstanceID 当前生效的实例标识（注册成功后可用）
func (a *Agent) InstanceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.instanceID
}

// Start 注册并启动心跳循环（非阻塞）
// 首次注册失败会按退避持续重试，直到成功或 ctx 取消
func (a *Agent) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		cancel()
		return errors.New("agent already started")
	}
	a.cancel = cancel
	a.done = make(chan struct{})
	a.mu.Unlock()

	if err := a.registerWithBackoff(runCtx); err != nil {
		cancel()
		a.mu.Lock()
		a.cancel = nil
		close(a.done)
		a.mu.Unlock()
		return err
	}

	go a.renewLoop(runCtx)
	return nil
}

// Stop 停止心跳并注销实例
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return a.deregister(ctx)
}

// renewLoop 心跳循环：续约失败转入重新注册
func (a *Agent) renewLoop(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.config.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.renew(ctx); err != nil {
				a.logger.WarnCtx(ctx, "心跳续约失败，尝试重新注册",
					zap.String("service", a.config.ServiceName),
					zap.String("instance_id", a.InstanceID()),
					zap.Error(err))
				if rerr := a.registerWithBackoff(ctx); rerr != nil {
					// ctx 已取消，循环随之退出
					continue
				}
				a.logger.InfoCtx(ctx, "✅ 实例已重新注册",
					zap.String("service", a.config.ServiceName),
					zap.String("instance_id", a.InstanceID()))
			}
		}
	}
}

// registerWithBackoff 无限重试注册，只被 ctx 取消打断
func (a *Agent) registerWithBackoff(ctx context.Context) error {
	return retry.Do(ctx, a.register,
		retry.MaxAttempts(0),
		retry.Backoff(retry.ExponentialBackoff(
			a.config.RegisterBackoff,
			retry.WithMaxDelay(a.config.RegisterBackoffMax),
		)),
		retry.OnRetry(func(attempt int, err error) {
			a.logger.WarnCtx(ctx, "注册失败，退避后重试",
				zap.String("service", a.config.ServiceName),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}),
	)
}

type registerPayload struct {
	ServiceName string            `json:"service_name"`
	InstanceID  string            `json:"instance_id,omitempty"`
	Address     string            `json:"address"`
	Port        int               `json:"port"`
	Weight      int               `json:"weight,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type heartbeatPayload struct {
	ServiceName string `json:"service_name"`
	InstanceID  string `json:"instance_id"`
}

// register 一次注册尝试
// 409 说明注册表里同名实例仍存活（通常是上一代身份），视为注册成功
func (a *Agent) register(ctx context.Context) error {
	resp, err := a.postJSON(ctx, "/registry/instances", &registerPayload{
		ServiceName: a.config.ServiceName,
		InstanceID:  a.config.InstanceID,
		Address:     a.config.Address,
		Port:        a.config.Port,
		Weight:      a.config.Weight,
		Metadata:    a.config.Metadata,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var body struct {
			Data struct {
				InstanceID string `json:"instance_id"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode register response: %w", err)
		}
		a.mu.Lock()
		a.instanceID = body.Data.InstanceID
		a.mu.Unlock()

		a.logger.InfoCtx(ctx, "✅ 实例注册成功",
			zap.String("service", a.config.ServiceName),
			zap.String("instance_id", body.Data.InstanceID),
			zap.String("registry", a.config.RegistryURL))
		return nil
	case http.StatusConflict:
		a.mu.Lock()
		if a.instanceID == "" {
			a.instanceID = a.config.InstanceID
		}
		a.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("register returned %d", resp.StatusCode)
	}
}

// renew 一次心跳续约
func (a *Agent) renew(ctx context.Context) error {
	id := a.InstanceID()
	if id == "" {
		return ErrNotRegistered
	}

	resp, err := a.postJSON(ctx, "/registry/heartbeat", &heartbeatPayload{
		ServiceName: a.config.ServiceName,
		InstanceID:  id,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotRegistered
	default:
		return fmt.Errorf("heartbeat returned %d", resp.StatusCode)
	}
}

// deregister 注销实例（关停时尽力而为）
func (a *Agent) deregister(ctx context.Context) error {
	id := a.InstanceID()
	if id == "" {
		return nil
	}

	url := fmt.Sprintf("%s/registry/instances/%s/%s",
		a.config.RegistryURL, a.config.ServiceName, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	trace.Outbound(ctx, req.Header)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("deregister returned %d", resp.StatusCode)
	}
	a.logger.InfoCtx(ctx, "实例已注销",
		zap.String("service", a.config.ServiceName),
		zap.String("instance_id", id))
	return nil
}

func (a *Agent) postJSON(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.RegistryURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	trace.Outbound(ctx, req.Header)

	return a.client.Do(req)
}
