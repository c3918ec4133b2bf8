package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/i474232898/wanderguard/internal/common"
	"github.com/i474232898/wanderguard/internal/patient"
	"github.com/i474232898/wanderguard/internal/risk"
)

var validate = validator.New()

// Options controls the optional surfaces of the API.
type Options struct {
	// TimeOutsideUnit is the unit of the numeric time_outside field.
	TimeOutsideUnit time.Duration
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// StaticDir holds caretaker.html, served at / when set.
	StaticDir string
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *patient.Service, opts Options) {
	if opts.TimeOutsideUnit <= 0 {
		opts.TimeOutsideUnit = time.Minute
	}

	predict := func(c *fiber.Ctx) error {
		var req predictRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.JSON(service.Reject("malformed body"))
		}
		if err := validate.Struct(req); err != nil {
			return c.JSON(service.Reject(err.Error()))
		}
		return c.JSON(service.Predict(c.UserContext(), req.toRequest(opts.TimeOutsideUnit)))
	}

	v1 := app.Group("/api/v1")
	v1.Post("/predict", predict)
	app.Post("/predict", predict)

	v1.Post("/patients/:id/feedback", func(c *fiber.Ctx) error {
		var req feedbackRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid feedback body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		fb, err := service.SubmitFeedback(c.UserContext(), c.Params("id"), req.Label)
		if err != nil {
			switch {
			case errors.Is(err, patient.ErrInvalidFeedback):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			case errors.Is(err, patient.ErrNotFound):
				return fiber.NewError(fiber.StatusNotFound, "unknown patient")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to store feedback")
		}
		return c.Status(fiber.StatusCreated).JSON(fb)
	})

	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
	}
	if opts.StaticDir != "" {
		dashboard := filepath.Join(opts.StaticDir, "caretaker.html")
		app.Get("/", func(c *fiber.Ctx) error {
			return c.SendFile(dashboard)
		})
	}
}

// predictRequest is the telemetry body posted by the patient's device.
type predictRequest struct {
	PatientID     string   `json:"patientId" validate:"required"`
	Speed         float64  `json:"speed"`
	Distance      float64  `json:"distance"`
	TimeOutside   float64  `json:"time_outside"`
	Latitude      float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude     float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Battery       *float64 `json:"battery" validate:"omitempty,gte=0,lte=100"`
	IsRaining     bool     `json:"isRaining"`
	LightLevel    string   `json:"lightLevel"`
	Feedback      string   `json:"feedback"`
	FeedbackID    string   `json:"feedbackId"`
	PrevRiskLevel string   `json:"prevRiskLevel"`
}

func (r predictRequest) toRequest(unit time.Duration) patient.Request {
	battery := 100.0
	if r.Battery != nil {
		battery = *r.Battery
	}
	light := risk.LightNormal
	switch {
	case common.EqualFoldAny(r.LightLevel, string(risk.LightLow)):
		light = risk.LightLow
	case common.EqualFoldAny(r.LightLevel, string(risk.LightHigh)):
		light = risk.LightHigh
	}
	feedback, _ := risk.ParseFeedback(r.Feedback)

	return patient.Request{
		PatientID: r.PatientID,
		Telemetry: risk.Telemetry{
			Distance:    common.NonNegative(r.Distance),
			TimeOutside: common.ToDuration(r.TimeOutside, unit),
			Speed:       common.NonNegative(r.Speed),
			Latitude:    r.Latitude,
			Longitude:   r.Longitude,
			Battery:     battery,
			IsRaining:   r.IsRaining,
			Light:       light,
		},
		PrevLevel:  risk.ParseLevel(r.PrevRiskLevel),
		Feedback:   feedback,
		FeedbackID: r.FeedbackID,
	}
}

type feedbackRequest struct {
	Label string `json:"label" validate:"required"`
}
