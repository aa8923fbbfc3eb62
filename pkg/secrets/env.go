// Copyright 2026 fanjia1024
// Environment variable based secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// envStore 进程环境变量后端；约定 key 本身就是 NOTARY_* 变量名
type envStore struct{}

// NewEnvStore 创建环境变量 secret store
func NewEnvStore() Store {
	return &envStore{}
}

// resolve 未带约定前缀的 key（如 tsa-api-key）补全成 NOTARY_* 变量名
func (e *envStore) resolve(key string) string {
	if strings.HasPrefix(key, "NOTARY_") {
		return key
	}
	return credKeyFromSlug(key)
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	value := os.Getenv(e.resolve(key))
	if value == "" {
		return "", fmt.Errorf("credential not set: %s", e.resolve(key))
	}
	return value, nil
}

func (e *envStore) Set(ctx context.Context, key string, value string) error {
	return os.Setenv(e.resolve(key), value)
}

func (e *envStore) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(e.resolve(key))
}

func (e *envStore) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix == "" {
		prefix = "NOTARY_"
	}
	var keys []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if ok && strings.HasPrefix(name, prefix) {
			keys = append(keys, name)
		}
	}
	return keys, nil
}
