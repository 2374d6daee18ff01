// Package functions serves the small JSON endpoints under /functions/v1.
package functions

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/radif/dropzone/internal/logger"
	"github.com/radif/dropzone/internal/response"
)

// Handler holds the function endpoints. A nil mailer means email is not configured.
type Handler struct {
	mailer Mailer
	from   string
	env    string

	randN func(n int) int
	now   func() time.Time
}

// NewHandler creates a new functions Handler.
func NewHandler(mailer Mailer, from, env string) *Handler {
	if env == "" {
		env = "development"
	}
	return &Handler{
		mailer: mailer,
		from:   from,
		env:    env,
		randN:  rand.IntN,
		now:    time.Now,
	}
}

// Routes returns the functions router, to be mounted under /functions/v1.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/hello-world", h.Hello)
	r.Post("/hello-world", h.Hello)
	r.Post("/send-email", h.SendEmail)
	return r
}

type helloData struct {
	RandomNumber int    `json:"randomNumber" example:"42"`
	Environment  string `json:"environment"  example:"development"`
}

type helloResponse struct {
	Message   string    `json:"message"   example:"Hello from the server!"`
	Timestamp string    `json:"timestamp" example:"2026-01-02T03:04:05.000Z"`
	Success   bool      `json:"success"   example:"true"`
	Data      helloData `json:"data"`
}

// Hello godoc
//
//	@Summary		Hello probe
//	@Description	Returns a greeting, the server time and a random number. Used to check the functions surface is up.
//	@Tags			functions
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	helloResponse
//	@Router			/functions/v1/hello-world [get]
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	logger.Log.Debug().Msg("hello-world invoked")
	response.JSON(w, http.StatusOK, helloResponse{
		Message:   "Hello from the server!",
		Timestamp: isoTime(h.now()),
		Success:   true,
		Data: helloData{
			RandomNumber: h.randN(100),
			Environment:  h.env,
		},
	})
}

type sendEmailRequest struct {
	To      string `json:"to"      example:"someone@example.com"`
	Subject string `json:"subject" example:"Hello"`
	Message string `json:"message" example:"Sent from dropzone."`
}

type sendEmailData struct {
	EmailID   string `json:"emailId"   example:"4ef9a417-02e9-4d39-ad75-9611e0fcc33c"`
	Recipient string `json:"recipient" example:"someone@example.com"`
	Timestamp string `json:"timestamp" example:"2026-01-02T03:04:05.000Z"`
}

// SendEmail godoc
//
//	@Summary		Send email
//	@Description	Sends a simple HTML email through Resend. Fields missing from the body, or a body that is not valid JSON, fall back to defaults.
//	@Tags			functions
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		sendEmailRequest	false	"Email"
//	@Success		200		{object}	response.Envelope{data=sendEmailData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/functions/v1/send-email [post]
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	if h.mailer == nil {
		logger.Log.Error().Msg("send-email: RESEND_API_KEY missing")
		response.InternalErrorMessage(w, "RESEND_API_KEY is not set in environment variables")
		return
	}

	req := sendEmailRequest{Subject: defaultSubject, Message: defaultMessage}
	body := req
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Log.Debug().Err(err).Msg("send-email: no valid JSON body, using defaults")
	} else {
		req = body
	}

	if !strings.Contains(req.To, "@") {
		response.BadRequest(w, "Valid recipient email address is required")
		return
	}

	html, err := renderEmail(req.Subject, req.Message)
	if err != nil {
		logger.Log.Error().Err(err).Msg("send-email: render failed")
		response.InternalError(w)
		return
	}

	logger.Log.Info().Str("to", req.To).Msg("sending email")
	id, err := h.mailer.Send(r.Context(), Email{From: h.from, To: req.To, Subject: req.Subject, HTML: html})
	if err != nil {
		logger.Log.Error().Err(err).Str("to", req.To).Msg("send-email failed")
		response.InternalErrorMessage(w, "Failed to send email: "+err.Error())
		return
	}

	response.OKMessage(w, "Email sent successfully", sendEmailData{
		EmailID:   id,
		Recipient: req.To,
		Timestamp: isoTime(h.now()),
	})
}

func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
