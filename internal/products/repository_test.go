package product

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func seedProduct(t *testing.T, repo *Repository, name, brand string, createdAt time.Time) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:               name,
		Description:        name + " description",
		Brand:              brand,
		OriginalPricePaise: 100000,
		OfferPricePaise:    90000,
		Stock:              5,
		CreatedAt:          createdAt.UTC(),
		UpdatedAt:          createdAt.UTC(),
	}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func TestRepositoryListPaginatesNewestFirst(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	oldest := seedProduct(t, repo, "Pixel 8", "Google", base)
	middle := seedProduct(t, repo, "Galaxy S24", "Samsung", base.Add(time.Minute))
	newest := seedProduct(t, repo, "iPhone 16", "Apple", base.Add(2*time.Minute))

	ctx := context.Background()
	page, next, err := repo.List(ctx, productListQuery{Pagination: pagination.Params{Limit: 2}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != newest.ID || page[1].ID != middle.ID {
		t.Fatalf("unexpected first page %+v", page)
	}
	if next == "" {
		t.Fatal("expected next cursor")
	}

	page, next, err = repo.List(ctx, productListQuery{Pagination: pagination.Params{Limit: 2, Cursor: next}})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(page) != 1 || page[0].ID != oldest.ID {
		t.Fatalf("unexpected second page %+v", page)
	}
	if next != "" {
		t.Fatalf("expected no further cursor, got %q", next)
	}
}

func TestRepositorySearchIsCaseInsensitiveAcrossFields(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	base := time.Now().Add(-time.Hour)
	phone := seedProduct(t, repo, "Pixel 8", "Google", base)
	seedProduct(t, repo, "Galaxy S24", "Samsung", base.Add(time.Second))

	ctx := context.Background()
	for _, q := range []string{"PIXEL", "goog", "pixel 8 desc"} {
		rows, _, err := repo.List(ctx, productListQuery{Search: q})
		if err != nil {
			t.Fatalf("search %q: %v", q, err)
		}
		if len(rows) != 1 || rows[0].ID != phone.ID {
			t.Fatalf("search %q: expected the pixel, got %+v", q, rows)
		}
	}
}

func TestRepositorySearchEscapesWildcards(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	base := time.Now().Add(-time.Hour)
	discounted := seedProduct(t, repo, "Charger 50% off", "Anker", base)
	seedProduct(t, repo, "Charger 50W", "Anker", base.Add(time.Second))

	rows, _, err := repo.List(context.Background(), productListQuery{Search: "50%"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != discounted.ID {
		t.Fatalf("expected literal %% match only, got %+v", rows)
	}

	rows, _, err = repo.List(context.Background(), productListQuery{Search: "_"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected underscore to match literally, got %d rows", len(rows))
	}
}

func TestRepositoryDecrementStockClampsAtZero(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	p := seedProduct(t, repo, "Pixel 8", "Google", time.Now())
	ctx := context.Background()

	if err := repo.DecrementStock(ctx, p.ID, 2); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	got, err := repo.FindByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Stock != 3 {
		t.Fatalf("expected stock 3, got %d", got.Stock)
	}

	if err := repo.DecrementStock(ctx, p.ID, 10); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	got, _ = repo.FindByID(ctx, p.ID)
	if got.Stock != 0 {
		t.Fatalf("expected stock clamped to 0, got %d", got.Stock)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`a%b_c\d`); got != `a\%b\_c\\d` {
		t.Fatalf("unexpected escape %q", got)
	}
}
