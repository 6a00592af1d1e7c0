package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mirror-pond/internal/domain"
	"github.com/ashureev/mirror-pond/internal/grpcserver"
	"github.com/ashureev/mirror-pond/internal/identity"
	"github.com/ashureev/mirror-pond/internal/memory"
	"github.com/ashureev/mirror-pond/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func seedMemory(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pond_memory.json")
	repo, err := store.NewJSONFile(path)
	require.NoError(t, err)

	mem := memory.New(memory.Options{Repo: repo})
	id := mem.ResolveUser("abc", "")
	mem.Touch(id, "reflect")
	require.True(t, mem.RecordVow(id, "I vow to walk the narrow path", "ctx"))
	mem.RecordReflection(id, "q", "r", "reflect", "")
	mem.Save(context.Background())
	return path
}

func TestIdentityShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pond_identity.json")
	want, err := identity.NewManager(identity.Options{Path: path}).Initialize()
	require.NoError(t, err)

	out, err := execute(t, "identity", "show", "--file", path)
	require.NoError(t, err)

	var got identity.Identity
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, want, got)
}

func TestIdentityShowMissingFile(t *testing.T) {
	_, err := execute(t, "identity", "show", "--file", filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
}

func TestMemoryStats(t *testing.T) {
	path := seedMemory(t)

	out, err := execute(t, "memory", "stats", "abc", "--backend", "json", "--file", path)
	require.NoError(t, err)

	var got domain.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "traveler_abc", got.UserID)
	assert.True(t, got.Exists)
	assert.Equal(t, 1, got.VowCount)
	assert.Equal(t, 1, got.ReflectionCount)
}

func TestMemoryVows(t *testing.T) {
	path := seedMemory(t)

	out, err := execute(t, "memory", "vows", "traveler_abc", "--backend", "json", "--file", path)
	require.NoError(t, err)

	var got []domain.Vow
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "I vow to walk the narrow path", got[0].Text)

	_, err = execute(t, "memory", "vows", "nobody", "--backend", "json", "--file", path)
	assert.ErrorContains(t, err, "not found")
}

type alwaysLocal struct{}

func (alwaysLocal) Backends() (bool, bool) { return true, false }

func TestHealth(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = grpcserver.New(grpcserver.Options{Backends: alwaysLocal{}}).Serve(ctx, lis) }()

	out, err := execute(t, "health", "--addr", lis.Addr().String(), "--timeout", (5 * time.Second).String())
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"SERVING"}`, out)
}
