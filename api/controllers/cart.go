package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/api/middleware"
	"github.com/angelmondragon/pos-engine/api/responses"
	"github.com/angelmondragon/pos-engine/api/validators"
	"github.com/angelmondragon/pos-engine/internal/cart"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

// Register is the register terminal as seen by the cart endpoints.
type Register interface {
	Cart() cart.State
	Scan(ctx context.Context, code string) (cart.Line, error)
	ScanNext(ctx context.Context) (cart.Line, error)
	AddItem(item cart.Item, qty decimal.Decimal) (cart.Line, error)
	SetQuantity(lineID uuid.UUID, qty decimal.Decimal) error
	RemoveLine(lineID uuid.UUID) error
	SetLineDiscount(lineID uuid.UUID, kind enums.DiscountKind, value decimal.Decimal) error
	ClearLineDiscount(lineID uuid.UUID) error
	ApplyCartDiscount(d cart.Discount) (cart.Discount, error)
	RemoveCartDiscount(discountID uuid.UUID) error
	SetCustomer(customer *cart.Customer) error
	UpsertCustomer(ctx context.Context, in cart.Customer, operatorID uuid.UUID) (*cart.Customer, error)
	ClearCart() error
}

func CartGet(reg Register) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, reg.Cart())
	}
}

type scanRequest struct {
	Code string `json:"code"`
}

// CartScan adds one unit of the scanned item, or reads the scale for weighed
// items. An empty code pulls the next code from the attached scanner.
func CartScan(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code := validators.SanitizeString(req.Code, 64)

		var (
			line cart.Line
			err  error
		)
		if code == "" {
			line, err = reg.ScanNext(r.Context())
		} else {
			line, err = reg.Scan(r.Context(), code)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, cartLineResponse{Line: line, Cart: reg.Cart()})
	}
}

type addItemRequest struct {
	Code     string          `json:"code" validate:"required,max=64"`
	Quantity decimal.Decimal `json:"quantity"`
}

type cartLineResponse struct {
	Line cart.Line  `json:"line"`
	Cart cart.State `json:"cart"`
}

// CartAddItem adds a keyed-in quantity of a catalog item.
func CartAddItem(reg Register, items CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := items.Lookup(r.Context(), req.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		line, err := reg.AddItem(item, req.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, cartLineResponse{Line: line, Cart: reg.Cart()})
	}
}

type quantityRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

func CartSetQuantity(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParseUUIDParam(r, "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req quantityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, reg, logg, reg.SetQuantity(lineID, req.Quantity))
	}
}

func CartRemoveLine(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParseUUIDParam(r, "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, reg, logg, reg.RemoveLine(lineID))
	}
}

type discountRequest struct {
	Kind  enums.DiscountKind `json:"kind" validate:"required"`
	Value decimal.Decimal    `json:"value"`
	Code  string             `json:"code" validate:"max=32"`
}

func CartSetLineDiscount(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParseUUIDParam(r, "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req discountRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, reg, logg, reg.SetLineDiscount(lineID, req.Kind, req.Value))
	}
}

func CartClearLineDiscount(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParseUUIDParam(r, "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, reg, logg, reg.ClearLineDiscount(lineID))
	}
}

func CartApplyDiscount(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req discountRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		d, err := reg.ApplyCartDiscount(cart.Discount{Kind: req.Kind, Value: req.Value, Code: req.Code})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"discount": d, "cart": reg.Cart()})
	}
}

func CartRemoveDiscount(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		discountID, err := validators.ParseUUIDParam(r, "discountID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, reg, logg, reg.RemoveCartDiscount(discountID))
	}
}

type attachCustomerRequest struct {
	CustomerID uuid.UUID `json:"customerId" validate:"required"`
}

// CartAttachCustomer attaches a known customer by id.
func CartAttachCustomer(reg Register, customers CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req attachCustomerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := customers.Customer(r.Context(), req.CustomerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, reg, logg, reg.SetCustomer(toCartCustomer(row)))
	}
}

type customerRequest struct {
	ID    *uuid.UUID `json:"id"`
	Name  string     `json:"name" validate:"required,max=200"`
	Email string     `json:"email" validate:"omitempty,email"`
	Phone string     `json:"phone" validate:"omitempty,max=32"`
}

// CartUpsertCustomer creates or edits a customer and attaches it to the sale.
func CartUpsertCustomer(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req customerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		in := cart.Customer{
			Name:  validators.SanitizeString(req.Name, 200),
			Email: validators.SanitizeString(req.Email, 254),
			Phone: validators.SanitizeString(req.Phone, 32),
		}
		if req.ID != nil {
			in.ID = *req.ID
		}
		saved, err := reg.UpsertCustomer(r.Context(), in, middleware.OperatorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, saved)
	}
}

func CartDetachCustomer(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeCart(w, r, reg, logg, reg.SetCustomer(nil))
	}
}

func CartClear(reg Register, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeCart(w, r, reg, logg, reg.ClearCart())
	}
}

func writeCart(w http.ResponseWriter, r *http.Request, reg Register, logg *logger.Logger, err error) {
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, reg.Cart())
}
