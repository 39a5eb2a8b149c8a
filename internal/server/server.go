package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/theheadmen/cafeloyalty/internal/ratelimit"
	"github.com/theheadmen/cafeloyalty/internal/security"
	"github.com/theheadmen/cafeloyalty/internal/service"
)

type ServerSystem struct {
	Storage  service.Storage
	Notifier service.Notifier
	Random   service.RandomSource
	Tokens   *security.TokenManager
	Hasher   *security.PasswordHasher
	// Limiter is optional; without it requests are not rate limited.
	Limiter         *ratelimit.RateLimiter
	RateLimit       int
	SuperAdminEmail string
	Now             func() time.Time
}

func NewServerSystem(storage service.Storage, notifier service.Notifier, random service.RandomSource, tokens *security.TokenManager, hasher *security.PasswordHasher) *ServerSystem {
	if notifier == nil {
		notifier = service.NopNotifier{}
	}
	return &ServerSystem{
		Storage:  storage,
		Notifier: notifier,
		Random:   random,
		Tokens:   tokens,
		Hasher:   hasher,
		Now:      time.Now,
	}
}

// Router builds the route table.
func (ls *ServerSystem) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger)

	r.HandleFunc("/health", ls.HealthHandler).Methods(http.MethodGet)

	// auth
	r.Handle("/auth/login", ls.limited("login", http.HandlerFunc(ls.LoginHandler))).Methods(http.MethodPost)
	r.Handle("/auth/register-super-admin", ls.limited("login", http.HandlerFunc(ls.RegisterSuperAdminHandler))).Methods(http.MethodPost)
	r.Handle("/auth/me", ls.staff(ls.MeHandler)).Methods(http.MethodGet)

	r.Handle("/admin-users", ls.manager(ls.ListAdminsHandler)).Methods(http.MethodGet)
	r.Handle("/admin-users", ls.manager(ls.CreateAdminHandler)).Methods(http.MethodPost)
	r.Handle("/admin-users/{id:[0-9]+}", ls.manager(ls.UpdateAdminHandler)).Methods(http.MethodPut)
	r.Handle("/admin-users/{id:[0-9]+}", ls.manager(ls.DeleteAdminHandler)).Methods(http.MethodDelete)

	// loyalty flow
	r.Handle("/checkout/{user_id:[0-9]+}", ls.limited("checkout", ls.staff(ls.CheckoutHandler))).Methods(http.MethodPost)
	r.Handle("/spin-reward", ls.limited("spin", ls.staff(ls.SpinHandler))).Methods(http.MethodPost)
	r.Handle("/user-rewards/{id:[0-9]+}/use", ls.staff(ls.UseRewardHandler)).Methods(http.MethodPost)

	// customers
	r.Handle("/users", ls.staff(ls.ListUsersHandler)).Methods(http.MethodGet)
	r.Handle("/users", ls.staff(ls.RegisterUserHandler)).Methods(http.MethodPost)
	r.Handle("/users/phone/{phone}", ls.staff(ls.GetUserByPhoneHandler)).Methods(http.MethodGet)
	r.Handle("/users/email/{email}", ls.staff(ls.GetUserByEmailHandler)).Methods(http.MethodGet)
	r.Handle("/users/{id:[0-9]+}", ls.staff(ls.GetUserHandler)).Methods(http.MethodGet)
	r.Handle("/users/{id:[0-9]+}", ls.staff(ls.UpdateUserHandler)).Methods(http.MethodPut)
	r.Handle("/users/{id:[0-9]+}", ls.manager(ls.DeleteUserHandler)).Methods(http.MethodDelete)
	r.Handle("/users/{id:[0-9]+}/visits", ls.staff(ls.GetUserVisitsHandler)).Methods(http.MethodGet)
	r.Handle("/users/{id:[0-9]+}/rewards", ls.staff(ls.GetUserRewardsHandler)).Methods(http.MethodGet)

	// catalog
	r.Handle("/tiers", ls.staff(ls.ListTiersHandler)).Methods(http.MethodGet)
	r.Handle("/tiers", ls.manager(ls.CreateTierHandler)).Methods(http.MethodPost)
	r.Handle("/tiers/{id:[0-9]+}", ls.staff(ls.GetTierHandler)).Methods(http.MethodGet)
	r.Handle("/tiers/{id:[0-9]+}", ls.manager(ls.UpdateTierHandler)).Methods(http.MethodPut)
	r.Handle("/tiers/{id:[0-9]+}", ls.manager(ls.DeleteTierHandler)).Methods(http.MethodDelete)
	r.Handle("/tiers/{id:[0-9]+}/rewards", ls.staff(ls.GetTierRewardsHandler)).Methods(http.MethodGet)

	r.Handle("/rewards", ls.staff(ls.ListRewardsHandler)).Methods(http.MethodGet)
	r.Handle("/rewards", ls.manager(ls.CreateRewardHandler)).Methods(http.MethodPost)
	r.Handle("/rewards/{id:[0-9]+}", ls.staff(ls.GetRewardHandler)).Methods(http.MethodGet)
	r.Handle("/rewards/{id:[0-9]+}", ls.manager(ls.UpdateRewardHandler)).Methods(http.MethodPut)
	r.Handle("/rewards/{id:[0-9]+}", ls.manager(ls.DeleteRewardHandler)).Methods(http.MethodDelete)
	r.Handle("/rewards/{id:[0-9]+}/spinner-options", ls.staff(ls.ListSpinnerOptionsHandler)).Methods(http.MethodGet)
	r.Handle("/rewards/{id:[0-9]+}/spinner-options", ls.manager(ls.CreateSpinnerOptionHandler)).Methods(http.MethodPost)
	r.Handle("/spinner-options/{id:[0-9]+}", ls.manager(ls.UpdateSpinnerOptionHandler)).Methods(http.MethodPut)
	r.Handle("/spinner-options/{id:[0-9]+}", ls.manager(ls.DeleteSpinnerOptionHandler)).Methods(http.MethodDelete)

	// branding
	r.HandleFunc("/app-settings", ls.GetAppSettingsHandler).Methods(http.MethodGet)
	r.Handle("/app-settings", ls.manager(ls.SaveAppSettingsHandler)).Methods(http.MethodPut, http.MethodPost)
	r.Handle("/app-settings/upload-logo", ls.manager(ls.UploadLogoHandler)).Methods(http.MethodPost)
	r.Handle("/app-settings/{id:[0-9]+}", ls.manager(ls.DeleteAppSettingsHandler)).Methods(http.MethodDelete)

	return r
}

func (ls *ServerSystem) MakeServer(serverAddr string) *http.Server {
	server := http.Server{
		Addr:         serverAddr,
		Handler:      ls.Router(),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	return &server
}

func (ls *ServerSystem) limited(name string, next http.Handler) http.Handler {
	if ls.Limiter == nil || ls.RateLimit <= 0 {
		return next
	}
	return ls.Limiter.Limit(name, ls.RateLimit, time.Minute)(next)
}

func (ls *ServerSystem) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "cafe-loyalty"})
}
