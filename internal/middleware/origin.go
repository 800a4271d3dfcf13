package middleware

import (
	"net"
	"net/http"
	"strings"
)

// OriginPolicy 本地命令服务的访问来源策略
// Host 必须是本机地址；带 Origin 的请求必须在白名单中，白名单为空时拒绝所有跨域请求
type OriginPolicy struct {
	origins map[string]struct{}
	hosts   map[string]struct{}
}

// NewOriginPolicy 创建来源策略，extraHosts 为除本机地址外允许的 Host
func NewOriginPolicy(origins []string, extraHosts ...string) *OriginPolicy {
	p := &OriginPolicy{
		origins: make(map[string]struct{}, len(origins)),
		hosts:   map[string]struct{}{"localhost": {}, "127.0.0.1": {}, "::1": {}},
	}
	for _, o := range origins {
		if o = normalizeOrigin(o); o != "" {
			p.origins[o] = struct{}{}
		}
	}
	for _, h := range extraHosts {
		switch h {
		case "", "0.0.0.0", "::":
		default:
			p.hosts[strings.ToLower(h)] = struct{}{}
		}
	}
	return p
}

// Allowed 判断请求是否可以访问
func (p *OriginPolicy) Allowed(r *http.Request) bool {
	return p.HostAllowed(r.Host) && p.OriginAllowed(r.Header.Get("Origin"))
}

// OriginAllowed 没有 Origin 的请求来自非浏览器客户端，直接放行
func (p *OriginPolicy) OriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := p.origins[normalizeOrigin(origin)]
	return ok
}

// HostAllowed 拒绝指向本服务的其他域名（DNS 重绑定）
func (p *OriginPolicy) HostAllowed(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	_, ok := p.hosts[host]
	return ok
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}
