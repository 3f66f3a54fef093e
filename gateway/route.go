package gateway

import (
	"strings"

	"github.com/KOMKZ/go-fabric/router"
)

// route 一条已编译的路由
type route struct {
	pathPrefix  string
	service     string
	policy      router.Policy
	stripPrefix bool
}

// routeTable 静态路由表，按前缀长度降序存放
type routeTable struct {
	routes []*route
}

// newRouteTable 由配置构建路由表
// 前缀更长的路由优先匹配，构建后只读
func newRouteTable(cfg *Config) *routeTable {
	sorted := cfg.sortedRoutes()
	routes := make([]*route, 0, len(sorted))
	for _, rc := range sorted {
		policy := rc.Policy
		if policy == "" {
			policy = cfg.DefaultPolicy
		}
		routes = append(routes, &route{
			pathPrefix:  rc.PathPrefix,
			service:     rc.Service,
			policy:      router.Policy(policy),
			stripPrefix: rc.StripPrefix,
		})
	}
	return &routeTable{routes: routes}
}

// match 最长前缀匹配，未命中返回 nil
// 前缀按路径段对齐：/api 匹配 /api 与 /api/v1，但不匹配 /apiv2
func (t *routeTable) match(path string) *route {
	for _, r := range t.routes {
		if matchPrefix(path, r.pathPrefix) {
			return r
		}
	}
	return nil
}

func matchPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// rewritePath 按路由规则改写上游路径
func (r *route) rewritePath(path string) string {
	if !r.stripPrefix {
		return path
	}
	rest := strings.TrimPrefix(path, r.pathPrefix)
	if rest == "" || rest[0] != '/' {
		rest = "/" + rest
	}
	return rest
}
