package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/patient"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/lock"
)

var (
	// ErrNotFound means one of the two patients does not exist.
	ErrNotFound = errors.New("patient not found")
	// ErrSamePatient means source and target are the same patient.
	ErrSamePatient = errors.New("source and target are the same patient")
	// ErrConflict means a blocking conflict prevents the merge.
	ErrConflict = errors.New("merge blocked by conflicts")
	// ErrAlreadyMerging means another merge involving either patient is in
	// flight.
	ErrAlreadyMerging = errors.New("a merge involving one of these patients is already in progress")
	// ErrStorage wraps unexpected storage failures after rollback.
	ErrStorage = errors.New("merge storage failure")
)

// PatientStore is the slice of the patient repository the engine needs.
type PatientStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	Update(ctx context.Context, p *patient.Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SubscriptionSource answers how many active subscriptions a patient holds.
type SubscriptionSource interface {
	ActiveCount(ctx context.Context, patientID uuid.UUID) (int, error)
}

// Service orchestrates merge preview and execution.
type Service struct {
	patients   PatientStore
	catalog    *Catalog
	subs       SubscriptionSource
	audits     AuditRepository
	tx         db.TxRunner
	locks      lock.PairLocker
	precedence Precedence
	log        zerolog.Logger
}

func NewService(patients PatientStore, catalog *Catalog, subs SubscriptionSource,
	audits AuditRepository, tx db.TxRunner, locks lock.PairLocker, logger zerolog.Logger) *Service {
	return &Service{
		patients:   patients,
		catalog:    catalog,
		subs:       subs,
		audits:     audits,
		tx:         tx,
		locks:      locks,
		precedence: PreferTarget,
		log:        logger,
	}
}

// SetPrecedence overrides which side wins profile conflicts. Target wins by
// default.
func (s *Service) SetPrecedence(p Precedence) {
	s.precedence = p
}

// Preview assesses a merge without changing anything. The result is
// advisory; Execute revalidates from scratch.
func (s *Service) Preview(ctx context.Context, sourceID, targetID uuid.UUID) (*Preview, error) {
	if sourceID == targetID {
		return nil, ErrSamePatient
	}

	a, err := s.assess(ctx, sourceID, targetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &Preview{
		Source:             PatientWithCounts{Patient: a.source, Counts: a.sourceCounts},
		Target:             PatientWithCounts{Patient: a.target, Counts: a.targetCounts},
		MergedProfile:      MergeProfiles(a.source, a.target, s.precedence),
		TotalRecordsToMove: totalCount(a.sourceCounts),
		Conflicts:          a.conflicts,
		CanMerge:           CanMerge(a.conflicts),
	}, nil
}

// Execute performs the merge: under a pair lock and inside one transaction
// it revalidates both patients, moves every relation category, applies the
// merged profile to the target, writes the audit entry, and deletes the
// source. Any failure rolls the whole transaction back.
func (s *Service) Execute(ctx context.Context, sourceID, targetID uuid.UUID, actorID string) (*Result, error) {
	if sourceID == targetID {
		return nil, ErrSamePatient
	}

	release, err := s.locks.Acquire(ctx, sourceID, targetID)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, ErrAlreadyMerging
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer release()

	var result *Result
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.assess(ctx, sourceID, targetID)
		if err != nil {
			return err
		}
		if !CanMerge(a.conflicts) {
			return ErrConflict
		}

		moved := make(map[string]int, s.catalog.Len())
		expected := countsByName(a.sourceCounts)
		for _, rel := range s.catalog.Relations() {
			n, err := rel.Reassign(ctx, sourceID, targetID)
			if err != nil {
				return fmt.Errorf("reassign %s: %w", rel.Name(), err)
			}
			moved[rel.Name()] = int(n)
			if int(n) != expected[rel.Name()] {
				s.log.Warn().
					Str("relation", rel.Name()).
					Int("counted", expected[rel.Name()]).
					Int64("moved", n).
					Msg("relation count changed between census and reassignment")
			}
		}

		merged := MergeProfiles(a.source, a.target, s.precedence)
		merged.Apply(a.target)
		if err := s.patients.Update(ctx, a.target); err != nil {
			return fmt.Errorf("update target profile: %w", err)
		}

		entry := &AuditEntry{
			SourcePatientID: sourceID,
			TargetPatientID: targetID,
			ActorID:         actorID,
			RelationCounts:  moved,
			MergedProfile:   merged,
		}
		if err := s.audits.Create(ctx, entry); err != nil {
			return fmt.Errorf("write audit entry: %w", err)
		}

		if err := s.patients.Delete(ctx, sourceID); err != nil {
			return fmt.Errorf("delete source patient: %w", err)
		}

		result = &Result{
			MergedPatientID:   targetID,
			PerRelationCounts: moved,
			AuditEntryID:      entry.ID,
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrSamePatient), errors.Is(err, ErrConflict):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}

	s.log.Info().
		Str("source_patient_id", sourceID.String()).
		Str("target_patient_id", targetID.String()).
		Str("actor_id", actorID).
		Str("audit_entry_id", result.AuditEntryID.String()).
		Msg("patient merge completed")
	return result, nil
}

// History returns the audit trail for a patient, either side, newest first.
func (s *Service) History(ctx context.Context, patientID uuid.UUID) ([]*AuditEntry, error) {
	entries, err := s.audits.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return entries, nil
}

type assessment struct {
	source       *patient.Patient
	target       *patient.Patient
	sourceCounts []RelationCount
	targetCounts []RelationCount
	conflicts    []Conflict
}

// assess loads both patients and computes the full conflict picture. Used
// by Preview directly and by Execute inside its transaction, so execution
// never trusts a stale preview.
func (s *Service) assess(ctx context.Context, sourceID, targetID uuid.UUID) (*assessment, error) {
	source, err := s.patients.GetByID(ctx, sourceID)
	if err != nil {
		return nil, mapPatientErr("source", err)
	}
	target, err := s.patients.GetByID(ctx, targetID)
	if err != nil {
		return nil, mapPatientErr("target", err)
	}

	sourceCounts, err := s.catalog.Counts(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	targetCounts, err := s.catalog.Counts(ctx, targetID)
	if err != nil {
		return nil, err
	}

	srcActive, err := s.subs.ActiveCount(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("count source active subscriptions: %w", err)
	}
	tgtActive, err := s.subs.ActiveCount(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("count target active subscriptions: %w", err)
	}

	var uniques []string
	for _, r := range s.catalog.Relations() {
		if r.Unique() {
			uniques = append(uniques, r.Name())
		}
	}

	conflicts := DetectConflicts(DetectionInput{
		Source:           source,
		Target:           target,
		SourceCounts:     sourceCounts,
		TargetCounts:     targetCounts,
		SourceActiveSubs: srcActive,
		TargetActiveSubs: tgtActive,
		UniqueRelations:  uniques,
	})

	return &assessment{
		source:       source,
		target:       target,
		sourceCounts: sourceCounts,
		targetCounts: targetCounts,
		conflicts:    conflicts,
	}, nil
}

func mapPatientErr(side string, err error) error {
	if errors.Is(err, patient.ErrNotFound) {
		return fmt.Errorf("%s patient: %w", side, ErrNotFound)
	}
	return err
}
