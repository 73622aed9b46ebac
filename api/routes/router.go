package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simcheck/simcheck-backend/api/controllers"
	analyticscontrollers "github.com/simcheck/simcheck-backend/api/controllers/analytics"
	webhookcontrollers "github.com/simcheck/simcheck-backend/api/controllers/webhooks"
	"github.com/simcheck/simcheck-backend/api/middleware"
	"github.com/simcheck/simcheck-backend/internal/analytics"
	"github.com/simcheck/simcheck-backend/internal/bulkmatch"
	"github.com/simcheck/simcheck-backend/internal/credits"
	"github.com/simcheck/simcheck-backend/internal/documents"
	"github.com/simcheck/simcheck-backend/internal/email"
	"github.com/simcheck/simcheck-backend/internal/extension"
	"github.com/simcheck/simcheck-backend/internal/magiclinks"
	"github.com/simcheck/simcheck-backend/internal/notifications"
	"github.com/simcheck/simcheck-backend/internal/payments"
	"github.com/simcheck/simcheck-backend/internal/profiles"
	"github.com/simcheck/simcheck-backend/internal/push"
	"github.com/simcheck/simcheck-backend/internal/refunds"
	"github.com/simcheck/simcheck-backend/internal/tickets"
	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/redis"
)

// ProfileLookup resolves extension token owners.
type ProfileLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// Deps carries everything the router mounts. Analytics, Stripe and Viva may be
// nil; their routes are then left out.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger
	Redis  *redis.Client
	Health map[string]controllers.Pinger

	Profiles      profiles.Service
	ProfileLookup ProfileLookup
	Documents     documents.Service
	Credits       credits.Service
	MagicLinks    magiclinks.Service
	Extension     extension.Service
	Payments      payments.Service
	Notifications notifications.Service
	Push          push.Service
	Email         email.Service
	Tickets       tickets.Service
	Refunds       refunds.Service
	BulkMatch     bulkmatch.Service
	Analytics     analytics.Service

	PaddleWebhook webhookcontrollers.SignedDelivery
	StripeWebhook webhookcontrollers.SignedDelivery
	VivaWebhook   webhookcontrollers.VivaDelivery
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	maxUpload := cfg.Storage.MaxUploadBytes()

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.PublicURL, cfg.App.IsDev()),
	)

	guestPolicy := middleware.NewRateLimitPolicy(
		"guest_upload",
		cfg.RateLimit.GuestUploadWindow,
		cfg.RateLimit.GuestUploadLimit,
		0,
	)
	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.CheckoutWindow,
		0,
		cfg.RateLimit.CheckoutLimit,
	)

	r.Handle("/metrics", promhttp.Handler())
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, d.Health, logg))
	})

	r.Route("/api/public/v1/upload", func(r chi.Router) {
		r.Use(middleware.RateLimit(guestPolicy, d.Redis, logg))
		r.Get("/", controllers.MagicLinkInfo(d.MagicLinks, logg))
		r.Post("/", controllers.GuestUpload(d.Documents, maxUpload, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paddle", webhookcontrollers.PaddleWebhook(d.PaddleWebhook, logg))
		if d.VivaWebhook != nil {
			r.Get("/viva", webhookcontrollers.VivaVerification(d.VivaWebhook))
			r.Post("/viva", webhookcontrollers.VivaWebhook(d.VivaWebhook, logg))
		}
		if d.StripeWebhook != nil {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(d.StripeWebhook, logg))
		}
	})

	r.Route("/extension-api", func(r chi.Router) {
		r.Use(middleware.ExtensionAuth(d.Extension, d.ProfileLookup, logg))
		r.Get("/pending", controllers.ExtensionPending(d.Documents, logg))
		r.Get("/download/{documentId}", controllers.ExtensionDownload(d.Documents, logg))
		r.Post("/upload-report", controllers.ExtensionUploadReport(d.Documents, maxUpload, logg))
		r.Post("/heartbeat", controllers.ExtensionHeartbeat(d.Extension, d.Documents, logg))
		r.Post("/error", controllers.ExtensionError(d.Documents, logg))
		r.Get("/slots", controllers.ExtensionSlots(d.Extension, logg))
		r.Post("/slots/update-usage", controllers.UpdateExtensionSlotUsage(d.Extension, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Profiles, logg))
		r.Use(middleware.Idempotency(d.Redis, logg))

		r.Get("/profile", controllers.GetProfile(d.Profiles, logg))
		r.Patch("/profile", controllers.UpdateProfile(d.Profiles, logg))

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", controllers.ListDocuments(d.Documents, logg))
			r.Post("/", controllers.UploadDocument(d.Documents, maxUpload, logg))
			r.Get("/{documentId}", controllers.GetDocument(d.Documents, logg))
			r.Get("/{documentId}/activity", controllers.DocumentActivity(d.Documents, logg))
			r.Get("/{documentId}/download", controllers.DocumentDownload(d.Documents, logg))
			r.Delete("/{documentId}", controllers.DeleteDocument(d.Documents, logg))
		})

		r.Route("/credits", func(r chi.Router) {
			r.Get("/", controllers.CreditBalance(d.Credits, logg))
			r.Get("/history", controllers.CreditHistory(d.Credits, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/packages", controllers.CreditPackages(d.Payments))
			r.With(middleware.RateLimit(checkoutPolicy, d.Redis, logg)).Post("/checkout", controllers.Checkout(d.Payments, logg))
			r.Get("/", controllers.ListPayments(d.Payments, logg))
			r.Get("/invoices", controllers.ListInvoices(d.Payments, logg))
			r.Get("/receipts", controllers.ListReceipts(d.Payments, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(d.Notifications, false, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(d.Notifications, false, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(d.Notifications, false, logg))
		})

		r.Route("/push", func(r chi.Router) {
			r.Get("/public-key", controllers.PushPublicKey(d.Push))
			r.Post("/subscriptions", controllers.SubscribePush(d.Push, logg))
			r.Delete("/subscriptions", controllers.UnsubscribePush(d.Push, logg))
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", controllers.ListTickets(d.Tickets, logg))
			r.Post("/", controllers.CreateTicket(d.Tickets, logg))
			r.Get("/{ticketId}", controllers.GetTicket(d.Tickets, logg))
			r.Post("/{ticketId}/messages", controllers.ReplyTicket(d.Tickets, logg))
		})

		r.Route("/refunds", func(r chi.Router) {
			r.Get("/", controllers.ListRefunds(d.Refunds, false, logg))
			r.Post("/", controllers.RequestRefund(d.Refunds, logg))
		})

		r.Route("/extension/tokens", func(r chi.Router) {
			r.Get("/", controllers.ListExtensionTokens(d.Extension, logg))
			r.Post("/", controllers.CreateExtensionToken(d.Extension, logg))
			r.Post("/{tokenId}/revoke", controllers.RevokeExtensionToken(d.Extension, logg))
			r.Delete("/{tokenId}", controllers.DeleteExtensionToken(d.Extension, logg))
		})
	})

	r.Route("/api/staff/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Profiles, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleStaff, enums.RoleAdmin))
		r.Use(middleware.Idempotency(d.Redis, logg))

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", controllers.ListDocuments(d.Documents, logg))
			r.Get("/stats", controllers.DocumentStats(d.Documents, logg))
			r.Get("/{documentId}", controllers.GetDocument(d.Documents, logg))
			r.Get("/{documentId}/download", controllers.DocumentDownload(d.Documents, logg))
			r.Post("/{documentId}/claim", controllers.ClaimDocument(d.Documents, logg))
			r.Post("/{documentId}/status", controllers.ChangeDocumentStatus(d.Documents, logg))
			r.Post("/{documentId}/reports", controllers.AttachDocumentReports(d.Documents, maxUpload, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Profiles, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
		r.Use(middleware.Idempotency(d.Redis, logg))

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", controllers.ListDocuments(d.Documents, logg))
			r.Get("/stats", controllers.DocumentStats(d.Documents, logg))
			r.Get("/{documentId}/activity", controllers.DocumentActivity(d.Documents, logg))
			r.Delete("/{documentId}", controllers.DeleteDocument(d.Documents, logg))
		})

		r.Route("/magic-links", func(r chi.Router) {
			r.Get("/", controllers.AdminListMagicLinks(d.MagicLinks, logg))
			r.Post("/", controllers.AdminCreateMagicLink(d.MagicLinks, logg))
			r.Post("/{linkId}/disable", controllers.AdminDisableMagicLink(d.MagicLinks, logg))
			r.Post("/{linkId}/enable", controllers.AdminEnableMagicLink(d.MagicLinks, logg))
			r.Delete("/{linkId}", controllers.AdminDeleteMagicLink(d.MagicLinks, logg))
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", controllers.AdminListProfiles(d.Profiles, logg))
			r.Post("/{profileId}/role", controllers.AdminSetRole(d.Profiles, logg))
		})

		r.Route("/credits", func(r chi.Router) {
			r.Post("/adjust", controllers.AdminAdjustCredits(d.Credits, logg))
			r.Get("/history", controllers.AdminCreditHistory(d.Credits, logg))
			r.Get("/history/export", controllers.AdminExportCredits(d.Credits, logg))
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", controllers.AdminListWebhooks(d.Payments, logg))
			r.Get("/export", controllers.AdminExportWebhooks(d.Payments, logg))
		})

		r.Route("/reports", func(r chi.Router) {
			r.Post("/bulk", controllers.AdminBulkReports(d.BulkMatch, maxUpload, logg))
			r.Get("/logs", controllers.AdminMatchLogs(d.BulkMatch, "", logg))
			r.Get("/unmatched", controllers.AdminMatchLogs(d.BulkMatch, string(enums.MatchUnmatched), logg))
		})

		r.Route("/emails", func(r chi.Router) {
			r.Post("/", controllers.AdminSendEmail(d.Email, logg))
			r.Get("/", controllers.AdminListCampaigns(d.Email, logg))
			r.Get("/{campaignId}/logs", controllers.AdminCampaignLogs(d.Email, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(d.Notifications, true, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(d.Notifications, true, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(d.Notifications, true, logg))
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", controllers.ListTickets(d.Tickets, logg))
			r.Get("/{ticketId}", controllers.GetTicket(d.Tickets, logg))
			r.Post("/{ticketId}/messages", controllers.ReplyTicket(d.Tickets, logg))
			r.Post("/{ticketId}/status", controllers.SetTicketStatus(d.Tickets, logg))
		})

		r.Route("/refunds", func(r chi.Router) {
			r.Get("/", controllers.ListRefunds(d.Refunds, true, logg))
			r.Post("/{refundId}/approve", controllers.ApproveRefund(d.Refunds, logg))
			r.Post("/{refundId}/reject", controllers.RejectRefund(d.Refunds, logg))
		})

		if d.Analytics != nil {
			r.Get("/analytics/dashboard", analyticscontrollers.Dashboard(d.Analytics, logg))
		}
	})

	return r
}
