package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/config"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestStorageUploadAcceptsImages(t *testing.T) {
	store := NewMemoryStore("https://cdn.test")
	svc := NewStorageServiceWith(store, 1024, "https://gateway.test/ipfs")

	obj, err := svc.Upload(context.Background(), "photo.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	assert.Equal(t, "image/png", obj.Type)
	assert.Equal(t, int64(len(pngHeader)), obj.Size)
	assert.Len(t, obj.Hash, 64)
	assert.Equal(t, "https://cdn.test/"+obj.Hash, obj.URL)
	assert.Equal(t, obj.URL, svc.URL(obj.Hash))

	stored, ok := store.Get(obj.Hash)
	require.True(t, ok)
	assert.Equal(t, pngHeader, stored)
}

func TestStorageUploadRejectsUnsupportedAndOversized(t *testing.T) {
	svc := NewStorageServiceWith(NewMemoryStore(""), 16, "")

	_, err := svc.Upload(context.Background(), "notes.txt", strings.NewReader("plain text"))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = svc.Upload(context.Background(), "photo.png", bytes.NewReader(pngHeader))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = svc.Upload(context.Background(), "empty.png", bytes.NewReader(nil))
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestLighthouseStorePut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v0/add", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "photo.png", header.Filename)
		assert.Equal(t, pngHeader, body)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Name":"photo.png","Hash":"QmTestHash","Size":"42"}`))
	}))
	defer server.Close()

	store := NewLighthouseStore(config.StorageConfig{
		LighthouseAPIKey: "secret",
		LighthouseURL:    server.URL,
		GatewayURL:       "https://gateway.lighthouse.storage/ipfs/",
	})

	obj, err := store.Put(context.Background(), "photo.png", pngHeader, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "QmTestHash", obj.Hash)
	assert.Equal(t, int64(42), obj.Size)
	assert.Equal(t, "https://gateway.lighthouse.storage/ipfs/QmTestHash", obj.URL)
}

func TestLighthouseStoreRequiresAPIKey(t *testing.T) {
	store := NewLighthouseStore(config.StorageConfig{LighthouseURL: "http://127.0.0.1:1"})
	_, err := store.Put(context.Background(), "a.png", pngHeader, "image/png")
	assert.Error(t, err)
}

func TestFetchMetadataLayouts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ipfs/flat":
			w.Write([]byte(`{"name":"Vintage Watch","category":"Watches","images":["https://img/1"]}`))
		case "/ipfs/nested":
			w.Write([]byte(`{"product":{"name":"Camera","manufacturer":"Acme"},"files":{"images":[{"url":"https://img/2"}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	svc := NewStorageServiceWith(NewMemoryStore(""), 0, server.URL+"/ipfs")

	flat, err := svc.FetchMetadata(context.Background(), "flat")
	require.NoError(t, err)
	assert.Equal(t, "Vintage Watch", flat.Name)
	assert.Equal(t, "Watches", flat.Category)
	assert.Equal(t, []string{"https://img/1"}, flat.Images)

	nested, err := svc.FetchMetadata(context.Background(), "nested")
	require.NoError(t, err)
	assert.Equal(t, "Camera", nested.Name)
	assert.Equal(t, "Acme", nested.Manufacturer)
	assert.Equal(t, []string{"https://img/2"}, nested.Images)

	_, err = svc.FetchMetadata(context.Background(), "missing")
	assert.Error(t, err)
}
