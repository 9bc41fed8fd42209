package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/pos-engine/api/controllers"
	"github.com/angelmondragon/pos-engine/api/middleware"
	"github.com/angelmondragon/pos-engine/pkg/config"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

// Terminal is everything the register endpoints call on the active terminal.
type Terminal interface {
	controllers.Register
	controllers.HeldCartRegister
	controllers.CheckoutRegister
}

// Deps collects the services behind the register's local API.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Authorizer   middleware.Authorizer
	Operators    controllers.OperatorService
	Catalog      controllers.CatalogService
	Terminal     Terminal
	Transactions controllers.TransactionService
	Shifts       controllers.ShiftService
	Sync         controllers.SyncEngine
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger
	registerID := cfg.Register.ID

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, d.DB, logg))

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session/login", controllers.SessionLogin(d.Operators, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(d.Authorizer, cfg.FeatureFlags.RequireAuth, logg))
			manager := middleware.RequireRole(logg, enums.OperatorManager)

			r.Get("/session", controllers.SessionCurrent(logg))
			r.Post("/session/logout", controllers.SessionLogout(d.Operators, logg))

			r.With(manager).Get("/operators", controllers.OperatorsList(d.Operators, logg))
			r.With(manager).Post("/operators", controllers.OperatorsProvision(d.Operators, logg))

			r.Route("/catalog", func(r chi.Router) {
				r.Get("/items", controllers.CatalogItems(d.Catalog, logg))
				r.Get("/lookup", controllers.CatalogLookup(d.Catalog, logg))
				r.With(manager).Put("/items", controllers.CatalogSaveItem(d.Catalog, logg))
				r.Get("/customers/{customerID}", controllers.CatalogCustomer(d.Catalog, logg))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartGet(d.Terminal))
				r.Delete("/", controllers.CartClear(d.Terminal, logg))
				r.Post("/scan", controllers.CartScan(d.Terminal, logg))
				r.Post("/items", controllers.CartAddItem(d.Terminal, d.Catalog, logg))
				r.Patch("/lines/{lineID}", controllers.CartSetQuantity(d.Terminal, logg))
				r.Delete("/lines/{lineID}", controllers.CartRemoveLine(d.Terminal, logg))
				r.Put("/lines/{lineID}/discount", controllers.CartSetLineDiscount(d.Terminal, logg))
				r.Delete("/lines/{lineID}/discount", controllers.CartClearLineDiscount(d.Terminal, logg))
				r.Post("/discounts", controllers.CartApplyDiscount(d.Terminal, logg))
				r.Delete("/discounts/{discountID}", controllers.CartRemoveDiscount(d.Terminal, logg))
				r.Put("/customer", controllers.CartAttachCustomer(d.Terminal, d.Catalog, logg))
				r.Post("/customer", controllers.CartUpsertCustomer(d.Terminal, logg))
				r.Delete("/customer", controllers.CartDetachCustomer(d.Terminal, logg))
			})

			r.Route("/held-carts", func(r chi.Router) {
				r.Get("/", controllers.HeldCartsList(d.Terminal, logg))
				r.Post("/", controllers.HeldCartsHold(d.Terminal, logg))
				r.Post("/{cartID}/recall", controllers.HeldCartsRecall(d.Terminal, logg))
				r.Delete("/{cartID}", controllers.HeldCartsDiscard(d.Terminal, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/", controllers.CheckoutBegin(d.Terminal, logg))
				r.Get("/", controllers.CheckoutGet(d.Terminal, logg))
				r.Post("/tenders", controllers.CheckoutAddTender(d.Terminal, logg))
				r.Delete("/tenders/{tenderID}", controllers.CheckoutRemoveTender(d.Terminal, logg))
				r.Post("/finalize", controllers.CheckoutFinalize(d.Terminal, logg))
				r.Post("/abort", controllers.CheckoutAbort(d.Terminal, logg))
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", controllers.TransactionsList(d.Transactions, registerID, logg))
				r.Get("/{transactionID}", controllers.TransactionsGet(d.Transactions, logg))
				r.Get("/{transactionID}/receipt", controllers.TransactionsReceipt(d.Transactions, logg))
				r.With(manager).Post("/{transactionID}/void", controllers.TransactionsVoid(d.Transactions, logg))
			})

			r.Route("/sync", func(r chi.Router) {
				r.Get("/status", controllers.SyncStatus(d.Sync, logg))
				r.Get("/failed", controllers.SyncFailed(d.Sync, logg))
				r.Post("/run", controllers.SyncRun(d.Sync, logg))
				r.With(manager).Post("/retry", controllers.SyncRetry(d.Sync, logg))
			})

			r.Route("/shifts", func(r chi.Router) {
				r.Post("/open", controllers.ShiftsOpen(d.Shifts, registerID, logg))
				r.Post("/close", controllers.ShiftsClose(d.Shifts, registerID, logg))
				r.Get("/current", controllers.ShiftsCurrent(d.Shifts, registerID, logg))
				r.Get("/history", controllers.ShiftsHistory(d.Shifts, registerID, logg))
			})
		})
	})

	return r
}
