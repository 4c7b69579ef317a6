package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/harukimz/ledgermart-backend/internal/config"
	"github.com/harukimz/ledgermart-backend/internal/credential"
	"github.com/harukimz/ledgermart-backend/internal/escrow"
	"github.com/harukimz/ledgermart-backend/internal/handler"
	"github.com/harukimz/ledgermart-backend/internal/ledger"
	appmw "github.com/harukimz/ledgermart-backend/internal/middleware"
	"github.com/harukimz/ledgermart-backend/internal/repository"
	"github.com/harukimz/ledgermart-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Server struct {
	e            *echo.Echo
	productRepo  repository.ProductRepository
	purchaseRepo repository.PurchaseRepository
	ratingRepo   repository.RatingRepository
	escrowRepo   repository.EscrowRepository
	orchestrator *service.PurchaseOrchestrator
	sha          string
	build        string
}

type Params struct {
	DB             *gorm.DB
	Cfg            *config.Config
	Gateway        ledger.Gateway
	Signers        ledger.SignerFactory
	PlatformSigner ledger.Signer
	Scheduler      *escrow.Scheduler
	Lock           service.FlowLocker
	Access         service.AccessService
	Log            zerolog.Logger
	SHA            string
	BuildTime      string
}

func New(p Params) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Ledger-Principal"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) (bool, error) {
			low := strings.ToLower(origin)
			if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
				strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
				return true, nil
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false, nil
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return false, nil
			}
			if strings.HasSuffix(u.Hostname(), "vercel.app") {
				return true, nil
			}
			return false, nil
		},
	}))

	productRepo := repository.NewProductRepository(p.DB)
	purchaseRepo := repository.NewPurchaseRepository(p.DB)
	ratingRepo := repository.NewRatingRepository(p.DB)
	escrowRepo := repository.NewEscrowRepository(p.DB)

	creds := credential.NewAdapter(p.Gateway, p.Cfg.PlatformPrincipal, p.PlatformSigner, p.Log)

	orchestrator := service.NewPurchaseOrchestrator(service.OrchestratorConfig{
		Products:          productRepo,
		Purchases:         purchaseRepo,
		Ratings:           ratingRepo,
		Escrows:           escrowRepo,
		Gateway:           p.Gateway,
		Creds:             creds,
		Scheduler:         p.Scheduler,
		Access:            p.Access,
		Lock:              p.Lock,
		PlatformPrincipal: p.Cfg.PlatformPrincipal,
		PlatformSigner:    p.PlatformSigner,
		FinishDelta:       p.Cfg.EscrowFinishDelta,
		CancelDelta:       p.Cfg.EscrowCancelDelta,
		CredentialTTL:     p.Cfg.CredentialTTL,
		Logger:            p.Log,
	})

	productSvc := service.NewProductService(productRepo)
	ratingSvc := service.NewRatingService(ratingRepo, purchaseRepo, productRepo, p.Gateway, p.Cfg.PlatformPrincipal, p.PlatformSigner, p.Log)

	productHandler := handler.NewProductHandler(productSvc)
	purchaseHandler := handler.NewPurchaseHandler(orchestrator, p.Signers)
	ratingHandler := handler.NewRatingHandler(ratingSvc)

	authMw, err := appmw.NewAuthMiddleware(context.Background())
	if err != nil {
		p.Log.Warn().Err(err).Msg("firebase auth unavailable, falling back to header principal")
	}
	var requireAuth echo.MiddlewareFunc
	if authMw != nil {
		requireAuth = authMw.RequireAuth
	} else {
		requireAuth = headerPrincipal
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    p.SHA,
			"build_time": p.BuildTime,
		})
	})

	api := e.Group("/api")
	api.GET("/products", productHandler.List)
	api.GET("/products/:id", productHandler.Get)
	api.GET("/products/:id/ratings", ratingHandler.ListByProduct)
	api.POST("/products", productHandler.Create, requireAuth)
	api.POST("/products/:id/purchase", purchaseHandler.Purchase, requireAuth)
	api.GET("/products/:id/purchase", purchaseHandler.GetByProduct, requireAuth)
	api.POST("/products/:id/access", purchaseHandler.RequestAccess, requireAuth)
	api.POST("/products/:id/rating", ratingHandler.Create, requireAuth)
	api.GET("/me/purchases", purchaseHandler.ListMine, requireAuth)

	return &Server{
		e:            e,
		productRepo:  productRepo,
		purchaseRepo: purchaseRepo,
		ratingRepo:   ratingRepo,
		escrowRepo:   escrowRepo,
		orchestrator: orchestrator,
		sha:          p.SHA,
		build:        p.BuildTime,
	}
}

// headerPrincipal is the local-development substitute for the Firebase
// middleware: the caller states its ledger principal outright.
func headerPrincipal(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		principal := c.Request().Header.Get("X-Ledger-Principal")
		if principal == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		c.Set("principal", principal)
		return next(c)
	}
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) SetDB(db *gorm.DB) {
	s.productRepo.SetDB(db)
	s.purchaseRepo.SetDB(db)
	s.ratingRepo.SetDB(db)
	s.escrowRepo.SetDB(db)
}
