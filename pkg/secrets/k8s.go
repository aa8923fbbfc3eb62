// Copyright 2026 fanjia1024
// Kubernetes secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// K8sConfig Kubernetes 配置
type K8sConfig struct {
	// MountPath 凭据 Secret 卷的挂载点，每个凭据一个文件（文件名为 slug 形态，
	// 如 tsa-api-key）。默认 /etc/notary/credentials。
	MountPath string `yaml:"mount_path"`
}

// k8sStore 从挂载的 Secret 卷读取凭据。卷在 pod 内只读，
// Set 只写进程内覆盖层，供配置播种的凭据盖过卷内容。
type k8sStore struct {
	mountPath string
	mu        sync.RWMutex
	overlay   map[string]string
}

// NewK8sStore 创建 Kubernetes secret store
func NewK8sStore(config K8sConfig) (Store, error) {
	mountPath := "/etc/notary/credentials"
	if config.MountPath != "" {
		mountPath = config.MountPath
	}
	if _, err := os.Stat(mountPath); err != nil {
		return nil, fmt.Errorf("credential volume not mounted at %s: %w", mountPath, err)
	}
	return &k8sStore{mountPath: mountPath, overlay: make(map[string]string)}, nil
}

func (k *k8sStore) Get(ctx context.Context, key string) (string, error) {
	k.mu.RLock()
	if value, ok := k.overlay[key]; ok {
		k.mu.RUnlock()
		return value, nil
	}
	k.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(k.mountPath, credSlug(key)))
	if err != nil {
		return "", fmt.Errorf("credential not found: %s", key)
	}
	return strings.TrimSpace(string(data)), nil
}

func (k *k8sStore) Set(ctx context.Context, key string, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.overlay[key] = value
	return nil
}

func (k *k8sStore) Delete(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.overlay, key)
	return nil
}

func (k *k8sStore) List(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]bool)
	var keys []string

	entries, err := os.ReadDir(k.mountPath)
	if err != nil {
		return nil, fmt.Errorf("list credential volume: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		key := credKeyFromSlug(e.Name())
		if prefix == "" || strings.HasPrefix(key, prefix) {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	for key := range k.overlay {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}
