package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rajasatyajit/ResumeCore/internal/deliveries"
	"github.com/rajasatyajit/ResumeCore/internal/dispatch"
	"github.com/rajasatyajit/ResumeCore/internal/logger"
	"github.com/rajasatyajit/ResumeCore/internal/metrics"
)

// webhookHandler verifies, de-duplicates and dispatches one provider's deliveries
func (h *Handler) webhookHandler(ep Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		source := string(ep.Receiver.Source())
		log := logger.WithContext(ctx).With("source", source)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.writeErrorResponse(w, r, http.StatusRequestEntityTooLarge, "payload too large")
				return
			}
			h.writeErrorResponse(w, r, http.StatusBadRequest, "unable to read body")
			return
		}

		env, err := ep.Receiver.Receive(ctx, r.Header, body)
		if err != nil {
			h.writeDispatch(w, ep.Dispatcher.ForError(ctx, err))
			return
		}
		log = log.With("event_id", env.ID, "kind", string(env.Kind))

		tracked := false
		if env.ID != "" {
			state, err := h.Deliveries.Claim(ctx, source, env.ID)
			switch {
			case err != nil:
				log.Warn("delivery tracking unavailable; processing without de-duplication", "error", err)
			case state == deliveries.Done:
				log.Info("duplicate delivery acknowledged")
				metrics.RecordWebhook(source, string(env.Kind), dispatch.OutcomeDuplicate)
				h.writeDispatch(w, ep.Dispatcher.Success("Duplicate delivery"))
				return
			case state == deliveries.InFlight:
				log.Info("delivery already in progress")
				metrics.RecordWebhook(source, string(env.Kind), dispatch.OutcomeDuplicate)
				h.writeDispatch(w, dispatch.Response{
					StatusCode: http.StatusConflict,
					Payload:    dispatch.Message{Message: "Delivery in progress", OK: false},
				})
				return
			default:
				tracked = true
			}
		}

		resp := ep.Dispatcher.Dispatch(ctx, env)

		if tracked {
			// the provider may have hung up; the marker must still be written
			bg := context.WithoutCancel(ctx)
			if resp.StatusCode < http.StatusMultipleChoices {
				err = h.Deliveries.Complete(bg, source, env.ID)
			} else {
				err = h.Deliveries.Release(bg, source, env.ID)
			}
			if err != nil {
				log.Warn("delivery tracking update failed", "error", err)
			}
		}
		h.writeDispatch(w, resp)
	}
}

func (h *Handler) writeDispatch(w http.ResponseWriter, resp dispatch.Response) {
	h.writeJSONResponse(w, resp.StatusCode, resp.Payload)
}
