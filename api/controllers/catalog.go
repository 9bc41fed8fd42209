package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/pos-engine/api/responses"
	"github.com/angelmondragon/pos-engine/api/validators"
	"github.com/angelmondragon/pos-engine/internal/cart"
	"github.com/angelmondragon/pos-engine/internal/catalog"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

// CatalogService is the subset of catalog.Service the API needs.
type CatalogService interface {
	Lookup(ctx context.Context, code string) (cart.Item, error)
	SaveItem(ctx context.Context, in catalog.ItemInput) (*models.CatalogItem, error)
	Items(ctx context.Context, query string, limit int) ([]models.CatalogItem, error)
	Customer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

func CatalogItems(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := validators.SanitizeString(r.URL.Query().Get("q"), 64)
		items, err := svc.Items(r.Context(), query, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func CatalogLookup(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.Lookup(r.Context(), r.URL.Query().Get("code"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func CatalogSaveItem(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in catalog.ItemInput
		if err := validators.DecodeJSONBody(r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.SaveItem(r.Context(), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func CatalogCustomer(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "customerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.Customer(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

func toCartCustomer(row *models.Customer) *cart.Customer {
	c := &cart.Customer{ID: row.ID, Name: row.Name}
	if row.RemoteID != nil {
		c.RemoteID = *row.RemoteID
	}
	if row.Email != nil {
		c.Email = *row.Email
	}
	if row.Phone != nil {
		c.Phone = *row.Phone
	}
	return c
}
