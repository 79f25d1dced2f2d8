package controllers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/storage"
)

func uploadRequest(t *testing.T, field string, payload []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, "file.bin")
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadStoresImage(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir, "/uploads")
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	handler := Upload(store, 1<<20, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, uploadRequest(t, "image", pngBytes))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data uploadResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(envelope.Data.ImageURL, "/uploads/uploads/") {
		t.Fatalf("unexpected url %q", envelope.Data.ImageURL)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(envelope.Data.Key))); err != nil {
		t.Fatalf("expected stored file: %v", err)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	handler := Upload(store, 1<<20, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, uploadRequest(t, "image", []byte("#!/bin/sh\necho hi\n")))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestUploadRequiresImageField(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	handler := Upload(store, 1<<20, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, uploadRequest(t, "file", pngBytes))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
