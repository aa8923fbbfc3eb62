package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		wantErr     bool
		errContains string
	}{
		{name: "memory", provider: "memory", wantErr: false},
		{name: "default is memory", provider: "", wantErr: false},
		{name: "env", provider: "env", wantErr: false},
		{name: "unknown provider", provider: "unknown", wantErr: true, errContains: "unsupported secret provider"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(Config{Provider: tc.provider})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, want contains %q", err.Error(), tc.errContains)
				}
				if store != nil {
					t.Fatalf("store should be nil when error occurs")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store == nil {
				t.Fatalf("store should not be nil")
			}
		})
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Set(ctx, KeyTSAAPIKey, "tsa-secret"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := store.Get(ctx, KeyTSAAPIKey)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "tsa-secret" {
		t.Errorf("Get = %q, want %q", got, "tsa-secret")
	}

	keys, err := store.List(ctx, "NOTARY_")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("List returned %d keys, want 1", len(keys))
	}

	if err := store.Delete(ctx, KeyTSAAPIKey); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, KeyTSAAPIKey); err == nil {
		t.Error("Get after Delete should fail")
	}
}

func TestCredSlugRoundTrip(t *testing.T) {
	cases := map[string]string{
		KeyTSAAPIKey:       "tsa-api-key",
		KeyPolygonAPIKey:   "polygon-api-key",
		KeyBitcoinAPIKey:   "bitcoin-api-key",
		KeyNotifyRedisPass: "notify-redis-password",
	}
	for key, slug := range cases {
		if got := credSlug(key); got != slug {
			t.Errorf("credSlug(%s) = %q, want %q", key, got, slug)
		}
		if got := credKeyFromSlug(slug); got != key {
			t.Errorf("credKeyFromSlug(%s) = %q, want %q", slug, got, key)
		}
	}
}

func TestEnvStoreResolvesSlugKeys(t *testing.T) {
	ctx := context.Background()
	store := NewEnvStore()
	t.Setenv(KeyTSAAPIKey, "tsa-secret")

	got, err := store.Get(ctx, KeyTSAAPIKey)
	if err != nil || got != "tsa-secret" {
		t.Fatalf("Get(约定 key) = %q, %v", got, err)
	}
	// slug 形态的 key 解析到同一个变量
	got, err = store.Get(ctx, "tsa-api-key")
	if err != nil || got != "tsa-secret" {
		t.Fatalf("Get(slug) = %q, %v", got, err)
	}
	if _, err := store.Get(ctx, KeyBitcoinAPIKey); err == nil {
		t.Error("未设置的凭据应报错")
	}
}

func TestK8sStoreReadsMountedFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tsa-api-key"), []byte("mounted-secret\n"), 0o600); err != nil {
		t.Fatalf("write mounted file: %v", err)
	}

	store, err := NewK8sStore(K8sConfig{MountPath: dir})
	if err != nil {
		t.Fatalf("NewK8sStore: %v", err)
	}

	got, err := store.Get(ctx, KeyTSAAPIKey)
	if err != nil || got != "mounted-secret" {
		t.Fatalf("Get = %q, %v (末尾换行应被去掉)", got, err)
	}

	// Set 是覆盖层，盖过卷内容
	if err := store.Set(ctx, KeyTSAAPIKey, "seeded"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := store.Get(ctx, KeyTSAAPIKey); got != "seeded" {
		t.Fatalf("覆盖层未生效: %q", got)
	}
	if err := store.Delete(ctx, KeyTSAAPIKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := store.Get(ctx, KeyTSAAPIKey); got != "mounted-secret" {
		t.Fatalf("删除覆盖层后应回落到卷: %q", got)
	}

	keys, err := store.List(ctx, "NOTARY_")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 || keys[0] != KeyTSAAPIKey {
		t.Fatalf("List = %v, want [%s]", keys, KeyTSAAPIKey)
	}

	if _, err := NewK8sStore(K8sConfig{MountPath: filepath.Join(dir, "missing")}); err == nil {
		t.Error("挂载点不存在应报错")
	}
}
