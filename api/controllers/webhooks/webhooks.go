package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// SignedDelivery is a provider consumer that authenticates via a header.
type SignedDelivery interface {
	HandleDelivery(ctx context.Context, signature string, body []byte) (enums.WebhookStatus, error)
}

// UnsignedDelivery is a provider consumer that carries no signature header.
type UnsignedDelivery interface {
	HandleDelivery(ctx context.Context, body []byte) (enums.WebhookStatus, error)
}

// VivaDelivery also answers Viva's endpoint verification handshake.
type VivaDelivery interface {
	UnsignedDelivery
	VerificationKey() string
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	return body, nil
}

func writeOutcome(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, provider enums.PaymentProvider, status enums.WebhookStatus, err error) {
	if err != nil {
		if logg != nil {
			ctx = logg.WithProvider(ctx, provider.String())
		}
		responses.WriteError(ctx, logg, w, err)
		return
	}
	responses.WriteSuccess(w, map[string]string{"status": string(status)})
}

// PaddleWebhook verifies the Paddle-Signature header and applies transaction events.
func PaddleWebhook(svc SignedDelivery, logg *logger.Logger) http.HandlerFunc {
	return signedWebhook(enums.ProviderPaddle, "Paddle-Signature", svc, logg)
}

// StripeWebhook verifies the Stripe-Signature header and applies checkout events.
func StripeWebhook(svc SignedDelivery, logg *logger.Logger) http.HandlerFunc {
	return signedWebhook(enums.ProviderStripe, "Stripe-Signature", svc, logg)
}

func signedWebhook(provider enums.PaymentProvider, header string, svc SignedDelivery, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := svc.HandleDelivery(ctx, r.Header.Get(header), body)
		writeOutcome(ctx, logg, w, provider, status, err)
	}
}

// VivaVerification answers GET with the merchant verification key.
func VivaVerification(svc VivaDelivery) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"Key": svc.VerificationKey()})
	}
}

// VivaWebhook applies payment created and reversal notifications.
func VivaWebhook(svc UnsignedDelivery, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := svc.HandleDelivery(ctx, body)
		writeOutcome(ctx, logg, w, enums.ProviderViva, status, err)
	}
}
