package controllers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	multipartMemory = 8 << 20
	maxSearchLength = 100
)

type updateProductRequest struct {
	Name          *string          `json:"name,omitempty"`
	Description   *string          `json:"description,omitempty"`
	Brand         *string          `json:"brand,omitempty"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	OfferPrice    *decimal.Decimal `json:"offer_price,omitempty"`
	Stock         *int             `json:"stock,omitempty"`
	ImageKeys     *[]string        `json:"image_keys,omitempty"`
}

func productsUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
}

// ProductList returns a cursor page of the catalog, newest first.
func ProductList(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productsUnavailable(w, r, logg)
			return
		}

		params, err := validators.PageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListProducts(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// ProductSearch matches the {query} path segment against name, brand and
// description.
func ProductSearch(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productsUnavailable(w, r, logg)
			return
		}

		raw := chi.URLParam(r, "query")
		query, err := url.PathUnescape(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid search query"))
			return
		}
		query = validators.SanitizeString(query, maxSearchLength)

		params, err := validators.PageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SearchProducts(r.Context(), query, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

func ProductDetail(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productsUnavailable(w, r, logg)
			return
		}

		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.GetProduct(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto)
	}
}

// ProductCreate accepts a multipart form with the product fields and up to
// three files under "images".
func ProductCreate(svc product.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productsUnavailable(w, r, logg)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes*product.MaxImages+multipartMemory)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			responses.WriteError(r.Context(), logg, w, multipartError(err))
			return
		}
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()

		input, err := createInputFromForm(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		files := r.MultipartForm.File["images"]
		if len(files) > product.MaxImages {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d images are allowed", product.MaxImages)))
			return
		}
		for _, header := range files {
			if header.Size > maxUploadBytes {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "image too large").
					WithDetails(map[string]any{"file": header.Filename, "max_bytes": maxUploadBytes}))
				return
			}
			file, err := header.Open()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read upload"))
				return
			}
			defer file.Close()
			input.Images = append(input.Images, product.ImageUpload{
				Filename: header.Filename,
				Size:     header.Size,
				Body:     file,
			})
		}

		dto, err := svc.CreateProduct(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// ProductUpdate applies a partial JSON update.
func ProductUpdate(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productsUnavailable(w, r, logg)
			return
		}

		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.UpdateProduct(r.Context(), id, product.UpdateProductInput{
			Name:          body.Name,
			Description:   body.Description,
			Brand:         body.Brand,
			OriginalPrice: body.OriginalPrice,
			OfferPrice:    body.OfferPrice,
			Stock:         body.Stock,
			ImageKeys:     body.ImageKeys,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto)
	}
}

func createInputFromForm(r *http.Request) (product.CreateProductInput, error) {
	input := product.CreateProductInput{
		Name:        formValue(r, "name"),
		Description: formValue(r, "description"),
		Brand:       formValue(r, "brand"),
	}

	var err error
	if input.OriginalPrice, err = formDecimal(r, "original_price", "originalPrice"); err != nil {
		return input, err
	}
	if input.OfferPrice, err = formDecimal(r, "offer_price", "offerPrice"); err != nil {
		return input, err
	}

	stock := formValue(r, "stock")
	if stock != "" {
		if input.Stock, err = strconv.Atoi(stock); err != nil {
			return input, pkgerrors.New(pkgerrors.CodeValidation, "stock must be an integer").
				WithDetails(map[string]any{"field": "stock"})
		}
	}
	return input, nil
}

func formValue(r *http.Request, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(r.FormValue(key)); v != "" {
			return v
		}
	}
	return ""
}

func formDecimal(r *http.Request, keys ...string) (decimal.Decimal, error) {
	raw := formValue(r, keys...)
	if raw == "" {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "price is required").
			WithDetails(map[string]any{"field": keys[0]})
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "price must be a number").
			WithDetails(map[string]any{"field": keys[0]})
	}
	return value, nil
}

func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return pkgerrors.New(pkgerrors.CodeValidation, "upload too large").
			WithDetails(map[string]any{"max_bytes": tooLarge.Limit})
	}
	if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "expected multipart form data")
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
}
