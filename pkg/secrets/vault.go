// Copyright 2026 fanjia1024
// HashiCorp Vault secret store

package secrets

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address    string `yaml:"address"`     // Vault 地址，如 http://vault:8200
	Token      string `yaml:"token"`       // Vault token
	PathPrefix string `yaml:"path_prefix"` // 凭据挂载路径，默认 secret/notary/credentials
}

// vaultStore 外部凭据的 Vault 后端。
// 约定 key（NOTARY_TSA_API_KEY）映射到 <path_prefix>/tsa-api-key，
// 值放在 data["value"] 字段。
type vaultStore struct {
	client   *vault.Client
	basePath string
}

// NewVaultStore 创建 Vault secret store
func NewVaultStore(config VaultConfig) (Store, error) {
	if config.Address == "" {
		config.Address = "http://localhost:8200"
	}

	cfg := vault.DefaultConfig()
	cfg.Address = config.Address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}
	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("vault health check: %w", err)
	}

	basePath := "secret/notary/credentials"
	if config.PathPrefix != "" {
		basePath = strings.TrimSuffix(config.PathPrefix, "/")
	}
	return &vaultStore{client: client, basePath: basePath}, nil
}

func (v *vaultStore) credPath(key string) string {
	return v.basePath + "/" + credSlug(key)
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.credPath(key))
	if err != nil {
		return "", fmt.Errorf("vault read %s: %w", credSlug(key), err)
	}
	if secret == nil {
		return "", fmt.Errorf("credential not found: %s", key)
	}
	if value, ok := secret.Data["value"].(string); ok {
		return value, nil
	}
	return "", fmt.Errorf("credential %s has no value field", key)
}

func (v *vaultStore) Set(ctx context.Context, key string, value string) error {
	_, err := v.client.Logical().WriteWithContext(ctx, v.credPath(key), map[string]interface{}{
		"value": value,
	})
	if err != nil {
		return fmt.Errorf("vault write %s: %w", credSlug(key), err)
	}
	return nil
}

func (v *vaultStore) Delete(ctx context.Context, key string) error {
	if _, err := v.client.Logical().DeleteWithContext(ctx, v.credPath(key)); err != nil {
		return fmt.Errorf("vault delete %s: %w", credSlug(key), err)
	}
	return nil
}

// List 列出挂载路径下的凭据，slug 还原成约定 key 后按 prefix 过滤
func (v *vaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	secret, err := v.client.Logical().ListWithContext(ctx, v.basePath)
	if err != nil {
		return nil, fmt.Errorf("vault list: %w", err)
	}
	if secret == nil {
		return nil, nil
	}
	raw, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}
	var keys []string
	for _, item := range raw {
		slug, ok := item.(string)
		if !ok {
			continue
		}
		key := credKeyFromSlug(slug)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
