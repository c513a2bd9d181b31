package service

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"waiterboard/domain/waiter"
)

// LookupPatient finds a registry entry to prefill the order form.
func (s *WaiterService) LookupPatient(ctx context.Context, mrn string) (waiter.Patient, error) {
	mrn = waiter.NormalizeMRN(mrn)
	if mrn == "" {
		return waiter.Patient{}, errors.Wrap(waiter.ErrInvalid, "mrn is required")
	}
	return s.store.PatientByMRN(ctx, mrn)
}

func (s *WaiterService) Patients(ctx context.Context) ([]waiter.Patient, error) {
	return s.store.ListPatients(ctx)
}

// AddPatient registers a new patient. MRNs are unique.
func (s *WaiterService) AddPatient(ctx context.Context, p waiter.Patient) (waiter.Patient, error) {
	p.MRN = waiter.NormalizeMRN(p.MRN)
	if p.MRN == "" || p.FirstName == "" || p.LastName == "" {
		return waiter.Patient{}, errors.Wrap(waiter.ErrInvalid, "mrn, first_name and last_name are required")
	}
	p.CreatedAt = s.now()
	return s.store.InsertPatient(ctx, p)
}

// SeedPatients loads the demo registry. Existing MRNs are left alone, so
// seeding twice is harmless.
func (s *WaiterService) SeedPatients(ctx context.Context) (int, error) {
	now := s.now()
	ps := make([]waiter.Patient, 0, len(samplePatients))
	for _, p := range samplePatients {
		ps = append(ps, waiter.Patient{MRN: p.mrn, FirstName: p.first, LastName: p.last, DOB: p.dob, CreatedAt: now})
	}
	n, err := s.store.UpsertPatients(ctx, ps)
	if err != nil {
		return 0, errors.Wrap(err, "seed patients")
	}
	s.log.Info("seeded patients", zap.Int("added", n), zap.Int("total", len(ps)))
	return n, nil
}

var samplePatients = []struct{ mrn, first, last, dob string }{
	{"MRN-10001", "James", "Anderson", "1985-03-15"},
	{"MRN-10002", "Maria", "Garcia", "1992-07-22"},
	{"MRN-10003", "Robert", "Johnson", "1978-11-08"},
	{"MRN-10004", "Emily", "Williams", "2001-04-30"},
	{"MRN-10005", "Michael", "Brown", "1967-09-12"},
	{"MRN-10006", "Sarah", "Davis", "1989-12-05"},
	{"MRN-10007", "David", "Miller", "1955-06-18"},
	{"MRN-10008", "Jennifer", "Wilson", "1995-02-28"},
	{"MRN-10009", "William", "Moore", "1972-08-03"},
	{"MRN-10010", "Linda", "Taylor", "1983-01-17"},
	{"MRN-10011", "Thomas", "Anderson", "1948-10-25"},
	{"MRN-10012", "Patricia", "Thomas", "1990-05-09"},
	{"MRN-10013", "Christopher", "Jackson", "1976-07-14"},
	{"MRN-10014", "Elizabeth", "White", "2005-11-21"},
	{"MRN-10015", "Daniel", "Harris", "1963-04-06"},
	{"MRN-10016", "Barbara", "Martin", "1987-09-29"},
	{"MRN-10017", "Matthew", "Thompson", "1952-12-11"},
	{"MRN-10018", "Susan", "Robinson", "1998-03-23"},
	{"MRN-10019", "Anthony", "Clark", "1970-06-07"},
	{"MRN-10020", "Jessica", "Rodriguez", "1984-08-19"},
	{"MRN-10021", "Neima", "Brandon", "1991-04-12"},
	{"MRN-10022", "Charles", "Lewis", "1960-01-30"},
	{"MRN-10023", "Nancy", "Lee", "1973-05-15"},
	{"MRN-10024", "Steven", "Walker", "1982-10-08"},
	{"MRN-10025", "Karen", "Hall", "1945-02-14"},
}
