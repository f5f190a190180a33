package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/errors"
	"github.com/gmsas95/dosetrack/internal/medication"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   "0.1.0",
		"timestamp": time.Now().Unix(),
	})
}

// ==================== Medications ====================

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	var meds []medication.Medication
	switch c.Query("active") {
	case "true":
		meds = s.store.ActiveMedications()
	case "false":
		meds = s.store.InactiveMedications()
	default:
		meds = s.store.Medications()
	}

	out := make([]medicationResponse, 0, len(meds))
	for _, m := range meds {
		out = append(out, s.medicationResponse(m))
	}
	return c.JSON(out)
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	med, ok := s.store.Medication(c.Params("id"))
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "medication not found"})
	}
	return c.JSON(s.medicationResponse(med))
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	var req medicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	spec, err := s.medicationSpec(req)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	med, warn := s.store.AddMedication(spec)
	return c.Status(201).JSON(s.withWarning(s.medicationResponse(med), warn))
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := s.store.Medication(id); !ok {
		return c.Status(404).JSON(fiber.Map{"error": "medication not found"})
	}

	var req medicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	spec, err := s.medicationSpec(req)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	warn := s.store.UpdateMedication(id, func(m *medication.Medication) {
		m.Name = spec.Name
		m.Dosage = spec.Dosage
		m.Site = spec.Site
		m.Frequency = spec.Frequency
		m.Notes = spec.Notes
		if req.IsActive != nil {
			m.IsActive = *req.IsActive
		}
	})

	med, _ := s.store.Medication(id)
	return c.JSON(s.withWarning(s.medicationResponse(med), warn))
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	warn := s.store.DeleteMedication(c.Params("id"))
	return c.JSON(s.withWarning(fiber.Map{"deleted": true}, warn))
}

func (s *Server) handleSetActive(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := s.store.Medication(id); !ok {
		return c.Status(404).JSON(fiber.Map{"error": "medication not found"})
	}

	var req setActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	warn := s.store.SetActive(id, req.Active)
	med, _ := s.store.Medication(id)
	return c.JSON(s.withWarning(s.medicationResponse(med), warn))
}

// ==================== Injections ====================

func (s *Server) handleListInjections(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := s.store.Medication(id); !ok {
		return c.Status(404).JSON(fiber.Map{"error": "medication not found"})
	}
	records := s.store.InjectionsFor(id)
	if records == nil {
		records = []medication.InjectionRecord{}
	}
	return c.JSON(records)
}

func (s *Server) handleRecordInjection(c *fiber.Ctx) error {
	var req recordInjectionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	var site *medication.InjectionSite
	if req.Site != "" {
		candidate := medication.InjectionSite(req.Site)
		if err := candidate.Validate(); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		site = &candidate
	}

	rec, warn := s.store.RecordInjection(c.Params("id"), site, req.Notes)
	if rec == nil {
		return c.Status(404).JSON(fiber.Map{"error": "medication not found"})
	}
	return c.Status(201).JSON(s.withWarning(rec, warn))
}

func (s *Server) handleUpdateInjection(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := s.store.Injection(id); !ok {
		return c.Status(404).JSON(fiber.Map{"error": "injection record not found"})
	}

	var req updateInjectionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	if req.Site != "" {
		if err := medication.InjectionSite(req.Site).Validate(); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
	}

	err := s.store.UpdateInjection(id, func(r *medication.InjectionRecord) {
		if req.Site != "" {
			r.Site = medication.InjectionSite(req.Site)
		}
		if req.Notes != nil {
			r.Notes = *req.Notes
		}
		if req.Timestamp != nil {
			r.Timestamp = *req.Timestamp
		}
	})
	if err == errors.ErrFutureTimestamp {
		return c.Status(422).JSON(fiber.Map{
			"error": err.Error(),
			"code":  errors.ErrFutureTimestamp.Code,
		})
	}

	rec, _ := s.store.Injection(id)
	return c.JSON(s.withWarning(rec, err))
}

func (s *Server) handleDeleteInjection(c *fiber.Ctx) error {
	warn := s.store.DeleteInjection(c.Params("id"))
	return c.JSON(s.withWarning(fiber.Map{"deleted": true}, warn))
}

// ==================== Notifications ====================

func (s *Server) handleNotificationStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"authorized": s.gateway.IsAuthorized(),
		"pending":    len(s.gateway.ListPending()),
	})
}

func (s *Server) handleAuthorize(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	granted, err := s.gateway.RequestAuthorization(ctx)
	if err != nil {
		s.logger.Error("Authorization request failed", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "authorization request failed"})
	}

	if granted {
		go s.reconciler.ResyncAll()
	}

	return c.JSON(fiber.Map{"authorized": granted})
}

type revoker interface {
	Revoke()
}

func (s *Server) handleRevoke(c *fiber.Ctx) error {
	if r, ok := s.gateway.(revoker); ok {
		r.Revoke()
	} else {
		s.gateway.CancelAll()
	}
	return c.JSON(fiber.Map{"authorized": false})
}

// ==================== Helpers ====================

// medicationSpec validates the caller-side invariants: name and dosage must
// be non-empty and the site and frequency must come from their closed sets.
// The store itself accepts whatever it is given.
func (s *Server) medicationSpec(req medicationRequest) (medication.Spec, error) {
	name := strings.TrimSpace(req.Name)
	dosage := strings.TrimSpace(req.Dosage)
	if name == "" {
		return medication.Spec{}, errors.New(errors.ErrValidation.Code, "name is required")
	}
	if dosage == "" {
		return medication.Spec{}, errors.New(errors.ErrValidation.Code, "dosage is required")
	}

	site := medication.SiteSubcutaneous
	if req.Site != "" {
		site = medication.InjectionSite(req.Site)
		if err := site.Validate(); err != nil {
			return medication.Spec{}, err
		}
	}

	freq := medication.Frequency{Kind: medication.FrequencyKind(req.Frequency.Kind), N: req.Frequency.N}
	if req.Frequency.Kind == "" {
		freq = medication.Frequency{Kind: medication.FrequencyDaily}
	}
	if err := freq.Validate(); err != nil {
		return medication.Spec{}, err
	}

	return medication.Spec{
		Name:      name,
		Dosage:    dosage,
		Site:      site,
		Frequency: freq,
		Notes:     req.Notes,
	}, nil
}

// withWarning attaches a non-fatal durability warning to a successful
// response body
func (s *Server) withWarning(body interface{}, warn error) interface{} {
	if warn == nil {
		return body
	}
	return fiber.Map{"result": body, "warning": warn.Error()}
}
