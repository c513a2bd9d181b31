package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"waiterboard/domain/waiter"
	"waiterboard/snapshot"
)

const maxBody = 1 << 20

// ---------------- Records ----------------

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	var (
		orders []waiter.Order
		err    error
	)
	switch r.URL.Query().Get("type") {
	case "", "all":
		if r.URL.Query().Get("include_completed") == "true" {
			orders, err = s.svc.AllOrders(r.Context())
		} else {
			orders, err = s.svc.ActiveOrders(r.Context())
		}
	case "production":
		orders, err = s.svc.ProductionBoard(r.Context())
	case "mail":
		orders, err = s.svc.MailQueue(r.Context())
	default:
		s.fail(w, errors.Wrapf(waiter.ErrInvalid, "unknown record type %q", r.URL.Query().Get("type")))
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(orders))
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	var in waiter.NewOrder
	if !s.decode(w, r, &in) {
		return
	}
	o, err := s.svc.CreateOrder(r.Context(), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	o, err := s.svc.GetOrder(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type updateRequest struct {
	waiter.Patch
	StaffInitials string `json:"staff_initials"`
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}
	o, err := s.svc.UpdateOrder(r.Context(), id, req.Patch, req.StaffInitials)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteOrder(r.Context(), id, r.URL.Query().Get("initials")); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) recordAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	hist, err := s.svc.OrderHistory(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(hist))
}

// ---------------- Boards ----------------

type productionEntry struct {
	waiter.Order
	Label          string `json:"label"`
	Color          string `json:"color"`
	TimeRemaining  string `json:"time_remaining"`
	Overdue        bool   `json:"overdue"`
	ElapsedMinutes int    `json:"elapsed_minutes"`
}

type productionResponse struct {
	Orders       []productionEntry `json:"orders"`
	OverdueCount int               `json:"overdue_count"`
	MailQueue    []productionEntry `json:"mail_queue"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

func (s *Server) productionBoard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := s.svc.Settings(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	board, err := s.svc.ProductionBoard(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	mail, err := s.svc.MailQueue(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}

	now := s.svc.Now()
	resp := productionResponse{
		Orders:       productionEntries(board, settings, now),
		OverdueCount: waiter.CountOverdue(board, now),
		MailQueue:    productionEntries(mail, settings, now),
		GeneratedAt:  now,
	}
	writeJSON(w, http.StatusOK, resp)
}

func productionEntries(orders []waiter.Order, s waiter.Settings, now time.Time) []productionEntry {
	out := make([]productionEntry, 0, len(orders))
	for _, o := range orders {
		out = append(out, productionEntry{
			Order:          o,
			Label:          o.Type.Label(),
			Color:          typeColor(o.Type, s),
			TimeRemaining:  waiter.FormatTimeRemaining(o.DueTime, now),
			Overdue:        o.Overdue(now),
			ElapsedMinutes: waiter.ElapsedMinutes(o.CreatedAt, now),
		})
	}
	return out
}

func typeColor(t waiter.OrderType, s waiter.Settings) string {
	switch t {
	case waiter.TypeAcute:
		return s.AcuteColor
	case waiter.TypeUrgentMail:
		return s.UrgentColor
	default:
		return s.WaiterColor
	}
}

// Only masked names and timing leave the building on the public board.
type patientEntry struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	NumPrescriptions int       `json:"num_prescriptions"`
	ReadyAt          time.Time `json:"ready_at"`
}

type patientResponse struct {
	PharmacyName   string         `json:"pharmacy_name"`
	DisplayName    string         `json:"display_name"`
	Message        string         `json:"message"`
	RefreshSeconds int            `json:"refresh_seconds"`
	FontSize       string         `json:"font_size"`
	DarkMode       bool           `json:"dark_mode"`
	Sound          bool           `json:"sound_notifications"`
	Color          string         `json:"color"`
	Orders         []patientEntry `json:"orders"`
}

func (s *Server) patientBoard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	board, err := s.svc.PatientBoard(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	settings, err := s.svc.Settings(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}

	resp := patientResponse{
		PharmacyName:   settings.PharmacyName,
		DisplayName:    settings.DisplayName,
		Message:        settings.PatientBoardMessage,
		RefreshSeconds: settings.PatientBoardRefreshRate,
		FontSize:       settings.DisplayFontSize,
		DarkMode:       settings.DarkMode,
		Sound:          settings.SoundNotifications,
		Color:          settings.WaiterColor,
		Orders:         make([]patientEntry, 0, len(board)),
	}
	for _, o := range board {
		resp.Orders = append(resp.Orders, patientEntry{
			ID:               o.ID,
			Name:             waiter.MaskName(o.FirstName, o.LastName),
			NumPrescriptions: o.NumPrescriptions,
			ReadyAt:          *o.ReadyAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---------------- Settings ----------------

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.svc.Settings(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var update map[string]any
	if !s.decode(w, r, &update) {
		return
	}
	settings, err := s.svc.UpdateSettings(r.Context(), update)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) exportSettings(w http.ResponseWriter, r *http.Request) {
	f, err := snapshot.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="waiterboard-settings.`+string(f)+`"`)
	if err := s.svc.ExportSettings(r.Context(), w, f); err != nil {
		s.log.Error("export settings", zap.Error(err))
	}
}

func (s *Server) importSettings(w http.ResponseWriter, r *http.Request) {
	f, err := snapshot.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, err)
		return
	}
	settings, err := s.svc.ImportSettings(r.Context(), http.MaxBytesReader(w, r.Body, maxBody), f)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// ---------------- Audit ----------------

func (s *Server) auditLog(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.fail(w, errors.Wrapf(waiter.ErrInvalid, "limit %q is not a number", v))
			return
		}
		limit = n
	}
	entries, err := s.svc.AuditLog(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// ---------------- Patients ----------------

func (s *Server) listPatients(w http.ResponseWriter, r *http.Request) {
	ps, err := s.svc.Patients(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ps))
}

func (s *Server) createPatient(w http.ResponseWriter, r *http.Request) {
	var p waiter.Patient
	if !s.decode(w, r, &p) {
		return
	}
	saved, err := s.svc.AddPatient(r.Context(), p)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

type searchResponse struct {
	Found   bool            `json:"found"`
	Patient *waiter.Patient `json:"patient,omitempty"`
}

func (s *Server) searchPatient(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.LookupPatient(r.Context(), r.URL.Query().Get("mrn"))
	switch {
	case errors.Is(err, waiter.ErrNotFound):
		writeJSON(w, http.StatusOK, searchResponse{Found: false})
	case err != nil:
		s.fail(w, err)
	default:
		writeJSON(w, http.StatusOK, searchResponse{Found: true, Patient: &p})
	}
}

// ---------------- Helpers ----------------

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.fail(w, errors.Wrapf(waiter.ErrInvalid, "invalid record id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, errors.Wrapf(waiter.ErrInvalid, "invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, waiter.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, waiter.ErrNotFound):
		status = http.StatusNotFound
	default:
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
