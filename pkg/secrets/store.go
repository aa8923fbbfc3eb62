// Copyright 2026 fanjia1024
// Secret management abstraction

package secrets

import (
	"context"
	"fmt"
	"strings"
)

// 外部服务凭证的约定 key；gateway 各客户端按名取用
const (
	KeyTSAAPIKey       = "NOTARY_TSA_API_KEY"
	KeyPolygonAPIKey   = "NOTARY_POLYGON_API_KEY"
	KeyBitcoinAPIKey   = "NOTARY_BITCOIN_API_KEY"
	KeyNotifyRedisPass = "NOTARY_NOTIFY_REDIS_PASSWORD"
)

// credSlug 把约定 key 转成路径/文件名形态：NOTARY_TSA_API_KEY → tsa-api-key
func credSlug(key string) string {
	s := strings.TrimPrefix(key, "NOTARY_")
	return strings.ToLower(strings.ReplaceAll(s, "_", "-"))
}

// credKeyFromSlug credSlug 的逆映射：tsa-api-key → NOTARY_TSA_API_KEY
func credKeyFromSlug(slug string) string {
	return "NOTARY_" + strings.ToUpper(strings.ReplaceAll(slug, "-", "_"))
}

// Store Secret 存储接口
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除 secret
	Delete(ctx context.Context, key string) error

	// List 列出所有 secret keys
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config Secret Store 配置
type Config struct {
	Provider string            `mapstructure:"provider"` // vault | k8s | env | memory
	Config   map[string]string `mapstructure:"config"`   // Provider-specific config
}

// NewStore 创建 Secret Store
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "", "memory":
		return NewMemoryStore(), nil
	case "env":
		return NewEnvStore(), nil
	case "vault":
		return NewVaultStore(VaultConfig{
			Address:    config.Config["address"],
			Token:      config.Config["token"],
			PathPrefix: config.Config["path_prefix"],
		})
	case "k8s":
		return NewK8sStore(K8sConfig{
			MountPath: config.Config["mount_path"],
		})
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}
