package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminabbitt/medreserve/api"
	"github.com/benjaminabbitt/medreserve/filestore"
	"github.com/benjaminabbitt/medreserve/inventory"
	"github.com/benjaminabbitt/medreserve/ledger"
	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/prescription"
	"github.com/benjaminabbitt/medreserve/reservation"
)

var (
	customer = medreserve.Actor{ID: "cust-1", Role: medreserve.RoleCustomer}
	staff    = medreserve.Actor{ID: "staff-1", Role: medreserve.RolePharmacy, PharmacyID: "P"}
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
)

type fixture struct {
	t      *testing.T
	app    *fiber.App
	upload string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	dir := t.TempDir()
	files, err := filestore.NewLocal(dir, "/uploads", nil)
	require.NoError(t, err)

	l := ledger.NewMemoryLedger()
	reservations := reservation.NewManager(l, reservation.NewMemoryStore())
	svc := api.Services{
		Inventory:     inventory.NewService(l),
		Reservations:  reservations,
		Prescriptions: prescription.NewManager(prescription.NewMemoryStore(), files, reservations),
	}
	cfg.UploadDir = dir
	cfg.UploadURL = "/uploads"
	return &fixture{t: t, app: New(svc, cfg, nil), upload: dir}
}

func withActor(req *http.Request, a medreserve.Actor) *http.Request {
	req.Header.Set(api.HeaderActorID, a.ID)
	req.Header.Set(api.HeaderActorRole, string(a.Role))
	if a.PharmacyID != "" {
		req.Header.Set(api.HeaderActorPharmacy, a.PharmacyID)
	}
	return req
}

// do sends body as JSON and decodes the reply into out when out is non-nil.
func (f *fixture) do(method, path string, a medreserve.Actor, body, out any) int {
	f.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		r = bytes.NewReader(raw)
	}
	req := withActor(httptest.NewRequest(method, path, r), a)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return f.send(req, out)
}

func (f *fixture) send(req *http.Request, out any) int {
	f.t.Helper()
	resp, err := f.app.Test(req, -1)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) stock(medicineID string, delta int, price string) {
	f.t.Helper()
	p := decimal.RequireFromString(price)
	code := f.do(http.MethodPut, "/api/v1/inventory", staff,
		api.AdjustStockRequest{PharmacyID: "P", MedicineID: medicineID, Delta: delta, Price: &p}, nil)
	require.Equal(f.t, http.StatusOK, code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Config{})
	var body map[string]string
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", medreserve.Actor{}, nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestReservationLifecycle(t *testing.T) {
	f := newFixture(t, Config{})
	f.stock("M", 10, "100")

	var r api.Reservation
	code := f.do(http.MethodPost, "/api/v1/reservations", customer, api.CreateReservationRequest{
		PharmacyID: "P",
		Items:      []api.ItemRequest{{MedicineID: "M", Qty: 6}},
	}, &r)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "pending", r.Status)

	var failure api.Error
	code = f.do(http.MethodPost, "/api/v1/reservations", customer, api.CreateReservationRequest{
		PharmacyID: "P",
		Items:      []api.ItemRequest{{MedicineID: "M", Qty: 6}},
	}, &failure)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INSUFFICIENT_STOCK", failure.Code)

	var search api.InventoryList
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/search?medicine_id=M", customer, nil, &search))
	require.Len(t, search.Items, 1)
	assert.Equal(t, 4, search.Items[0].Available)

	var got api.Reservation
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/reservations/"+r.ID, staff, nil, &got))
	assert.Equal(t, r.ID, got.ID)

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/reservations/"+r.ID+"/cancel", customer, nil, &got))
	assert.Equal(t, "cancelled", got.Status)

	code = f.do(http.MethodPost, "/api/v1/reservations/"+r.ID+"/confirm", customer, nil, &failure)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_TERMINAL", failure.Code)

	var mine api.ReservationList
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/reservations?mine=true", customer, nil, &mine))
	assert.Len(t, mine.Items, 1)

	var inv api.InventoryList
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/inventory?pharmacy_id=P", customer, nil, &inv))
	require.Len(t, inv.Items, 1)
	assert.Equal(t, 0, inv.Items[0].Reserved)
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t, Config{})

	var e api.Error
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/v1/reservations", medreserve.Actor{}, nil, &e))
	assert.Equal(t, "FORBIDDEN", e.Code)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/reservations/nope", customer, nil, &e))
	assert.Equal(t, "NOT_FOUND", e.Code)

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader("{")), customer)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, f.send(req, &e))
	assert.Equal(t, "INVALID_ARGUMENT", e.Code)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPut, "/api/v1/inventory", customer,
		api.AdjustStockRequest{PharmacyID: "P", MedicineID: "M", Delta: 1}, &e))

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/nowhere", customer, nil, &e))
	assert.Equal(t, "HTTP_404", e.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{medreserve.NewInvalidArgument("x"), 400},
		{medreserve.NewInvalidFile("f", "x"), 400},
		{medreserve.NewInvalidQuantity("k", "x"), 400},
		{medreserve.NewNotFound("r", "x"), 404},
		{medreserve.NewInsufficientStock("k", 1, 2), 409},
		{medreserve.NewInvalidState("r", "x"), 409},
		{medreserve.NewAlreadyTerminal("r", "cancelled"), 409},
		{medreserve.NewExpired("r", "x"), 410},
		{medreserve.NewForbidden("r", "x"), 403},
		{fmt.Errorf("wrapped: %w", medreserve.NewExpired("r", "x")), 410},
		{errors.New("disk on fire"), 500},
		{fiber.ErrTooManyRequests, 429},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), "%v", tt.err)
	}
}

func multipartRequest(t *testing.T, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, data := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
		h.Set("Content-Type", "image/png")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	return req
}

func TestPrescriptionOverHTTP(t *testing.T) {
	f := newFixture(t, Config{})
	f.stock("M", 10, "100")

	var p api.Prescription
	req := withActor(multipartRequest(t, map[string]string{"pharmacy_id": "P", "note": "urgent"},
		map[string][]byte{"rx.png": pngBytes}), customer)
	require.Equal(t, http.StatusCreated, f.send(req, &p))
	assert.Equal(t, "submitted", p.Status)
	assert.Equal(t, "urgent", p.Note)
	require.Len(t, p.Files, 1)
	assert.True(t, strings.HasPrefix(p.Files[0].URL, "/uploads/"))

	stored, err := os.ReadFile(filepath.Join(f.upload, filepath.Base(p.Files[0].URL)))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, p.Files[0].URL, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var queue api.PrescriptionList
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/prescriptions?pharmacy_id=P&status=submitted", staff, nil, &queue))
	require.Len(t, queue.Items, 1)

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/prescriptions/"+p.ID+"/review", staff, nil, &p))
	assert.Equal(t, "under_review", p.Status)

	expires := time.Now().Add(time.Hour).UTC()
	code := f.do(http.MethodPost, "/api/v1/prescriptions/"+p.ID+"/decision", staff, map[string]any{
		"approve":                true,
		"items":                  []map[string]any{{"medicine_id": "M", "qty": 5, "price": "100"}},
		"total":                  "500",
		"reservation_expires_at": expires,
	}, &p)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "approved_with_quote", p.Status)

	var confirmed api.ConfirmPrescriptionResponse
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/prescriptions/"+p.ID+"/confirm", customer, nil, &confirmed))
	assert.Equal(t, "consumed", confirmed.Prescription.Status)
	assert.True(t, confirmed.Reservation.Total.Equal(decimal.NewFromInt(500)))

	var e api.Error
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/v1/prescriptions/"+p.ID+"/confirm", customer, nil, &e))
	assert.Equal(t, "INVALID_STATE", e.Code)

	var mine api.PrescriptionList
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/prescriptions", customer, nil, &mine))
	assert.Len(t, mine.Items, 1)
}

func TestPrescriptionRejectsSpoofedUpload(t *testing.T) {
	f := newFixture(t, Config{})

	var e api.Error
	req := withActor(multipartRequest(t, map[string]string{"pharmacy_id": "P"},
		map[string][]byte{"rx.png": []byte("%PDF-1.7 not an image")}), customer)
	assert.Equal(t, http.StatusBadRequest, f.send(req, &e))
	assert.Equal(t, "INVALID_FILE", e.Code)

	entries, err := os.ReadDir(f.upload)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 2, RateWindow: time.Minute})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/inventory", customer, nil, nil))
	}
	var e api.Error
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/api/v1/inventory", customer, nil, &e))
	assert.Equal(t, "RATE_LIMITED", e.Code)
}
