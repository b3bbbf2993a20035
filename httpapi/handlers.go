package httpapi

import (
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/benjaminabbitt/medreserve/api"
	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/prescription/logic"
)

func parse(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return medreserve.NewInvalidArgument("malformed request body: " + err.Error())
	}
	return nil
}

func (h *handler) adjustStock(c *fiber.Ctx) error {
	var req api.AdjustStockRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	rec, err := h.svc.Inventory.Adjust(c.UserContext(), actorOf(c), req.Key(), req.Delta, req.Adjustment())
	if err != nil {
		return err
	}
	return c.JSON(api.FromRecord(rec))
}

func (h *handler) listInventory(c *fiber.Ctx) error {
	q := api.InventoryQuery{
		PharmacyID:    c.Query("pharmacy_id"),
		MedicineID:    c.Query("medicine_id"),
		OnlyAvailable: c.QueryBool("only_available"),
	}
	recs, err := h.svc.Inventory.List(c.UserContext(), q.Filter())
	if err != nil {
		return err
	}
	return c.JSON(api.FromRecords(recs))
}

func (h *handler) search(c *fiber.Ctx) error {
	recs, err := h.svc.Inventory.Search(c.UserContext(), c.Query("medicine_id"))
	if err != nil {
		return err
	}
	return c.JSON(api.FromRecords(recs))
}

func (h *handler) createReservation(c *fiber.Ctx) error {
	var req api.CreateReservationRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	r, err := h.svc.Reservations.Create(c.UserContext(), actorOf(c), req.PharmacyID, req.ItemRequests())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(api.FromReservation(r))
}

func (h *handler) listReservations(c *fiber.Ctx) error {
	rs, err := h.svc.Reservations.ListMine(c.UserContext(), actorOf(c))
	if err != nil {
		return err
	}
	return c.JSON(api.FromReservations(rs))
}

func (h *handler) getReservation(c *fiber.Ctx) error {
	r, err := h.svc.Reservations.Get(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(api.FromReservation(r))
}

func (h *handler) confirmReservation(c *fiber.Ctx) error {
	r, err := h.svc.Reservations.Confirm(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(api.FromReservation(r))
}

func (h *handler) cancelReservation(c *fiber.Ctx) error {
	r, err := h.svc.Reservations.Cancel(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(api.FromReservation(r))
}

func (h *handler) pickupReservation(c *fiber.Ctx) error {
	r, err := h.svc.Reservations.Pickup(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(api.FromReservation(r))
}

// submitPrescription accepts multipart uploads in the "files" field or a JSON
// body with inline base64 files.
func (h *handler) submitPrescription(c *fiber.Ctx) error {
	var req api.SubmitPrescriptionRequest
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return medreserve.NewInvalidArgument("malformed multipart form: " + err.Error())
		}
		req.PharmacyID = first(form.Value["pharmacy_id"])
		req.Note = first(form.Value["note"])
		for i, fh := range form.File["files"] {
			if i >= logic.MaxFiles {
				// Count the extra part without reading it so validation reports it.
				req.Files = append(req.Files, api.Upload{Filename: fh.Filename})
				continue
			}
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("open upload %s: %w", fh.Filename, err)
			}
			// One byte past the limit is enough for validation to reject it.
			data, err := io.ReadAll(io.LimitReader(f, h.cfg.MaxFileSize+1))
			f.Close()
			if err != nil {
				return fmt.Errorf("read upload %s: %w", fh.Filename, err)
			}
			req.Files = append(req.Files, api.Upload{
				Filename: fh.Filename,
				MIMEType: fh.Header.Get(fiber.HeaderContentType),
				Data:     data,
			})
		}
	} else if err := parse(c, &req); err != nil {
		return err
	}

	p, err := h.svc.Prescriptions.Submit(c.UserContext(), actorOf(c), req.PharmacyID, req.Uploads(), req.Note)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(api.FromPrescription(p))
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// listPrescriptions returns a pharmacy's queue when pharmacy_id is given and
// the caller's own prescriptions otherwise.
func (h *handler) listPrescriptions(c *fiber.Ctx) error {
	actor := actorOf(c)
	if pharmacyID := c.Query("pharmacy_id"); pharmacyID != "" {
		ps, err := h.svc.Prescriptions.ListForPharmacy(c.UserContext(), actor, pharmacyID, c.Query("status"))
		if err != nil {
			return err
		}
		return c.JSON(api.FromPrescriptions(ps))
	}
	ps, err := h.svc.Prescriptions.ListMine(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(api.FromPrescriptions(ps))
}

func (h *handler) getPrescription(c *fiber.Ctx) error {
	p, err := h.svc.Prescriptions.Get(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(api.FromPrescription(p))
}

func (h *handler) startReview(c *fiber.Ctx) error {
	p, err := h.svc.Prescriptions.StartReview(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(api.FromPrescription(p))
}

func (h *handler) decide(c *fiber.Ctx) error {
	var req api.DecisionRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	p, err := h.svc.Prescriptions.Decide(c.UserContext(), actorOf(c), c.Params("id"), req.Decision())
	if err != nil {
		return err
	}
	return c.JSON(api.FromPrescription(p))
}

func (h *handler) confirmPrescription(c *fiber.Ctx) error {
	p, r, err := h.svc.Prescriptions.ConfirmToReservation(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(api.ConfirmPrescriptionResponse{
		Prescription: api.FromPrescription(p),
		Reservation:  api.FromReservation(r),
	})
}

func (h *handler) cancelPrescription(c *fiber.Ctx) error {
	p, err := h.svc.Prescriptions.Cancel(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(api.FromPrescription(p))
}
