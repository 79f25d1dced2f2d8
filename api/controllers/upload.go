package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/storage"
)

const uploadKeyPrefix = "uploads"

type uploadResponse struct {
	Key         string `json:"key"`
	ImageURL    string `json:"image_url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Upload stores the single image sent in the "image" form field.
func Upload(store storage.Store, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "object storage unavailable"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+multipartMemory)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			responses.WriteError(r.Context(), logg, w, multipartError(err))
			return
		}
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()

		file, header, err := r.FormFile("image")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "no file uploaded").
				WithDetails(map[string]any{"field": "image"}))
			return
		}
		defer file.Close()

		if header.Size > maxUploadBytes {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "image too large").
				WithDetails(map[string]any{"max_bytes": maxUploadBytes}))
			return
		}

		obj, err := storage.PutImage(r.Context(), store, uploadKeyPrefix, file, header.Size, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{"key": obj.Key, "size": obj.Size}), "upload stored")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, uploadResponse{
			Key:         obj.Key,
			ImageURL:    obj.URL,
			ContentType: obj.ContentType,
			Size:        obj.Size,
		})
	}
}
