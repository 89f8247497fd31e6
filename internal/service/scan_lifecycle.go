package service

import (
	"context"
	"errors"

	"reward-service/internal/broker"
	"reward-service/internal/models"
	"reward-service/internal/store"
	"reward-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScanOutcome tells the caller what happened to their scan attempt.
type ScanOutcome string

const (
	// OutcomeStored means a scan record was created.
	OutcomeStored ScanOutcome = "stored"
	// OutcomeRetry means the classifier could not identify the item; nothing
	// was persisted and the caller should try another photo.
	OutcomeRetry ScanOutcome = "retry"
)

// CreateScanResult is the response to a scan attempt.
type CreateScanResult struct {
	Outcome     ScanOutcome        `json:"outcome"`
	Scan        *models.ScanRecord `json:"scan,omitempty"`
	GuestScan   *models.GuestScan  `json:"guest_scan,omitempty"`
	NeedsChoice bool               `json:"needs_choice"`
}

// ScanLifecycle turns classification results into point-bearing scan records
// and resolves disposal choices.
type ScanLifecycle struct {
	store         *store.Store
	classifier    ClassificationGateway
	media         MediaStorage
	ledger        *PointsLedger
	bus           *broker.Bus
	minConfidence float64
	logger        *zap.Logger
}

// NewScanLifecycle creates a new scan lifecycle service. media may be nil
// when no blob store is configured. Classifications below minConfidence are
// not stored.
func NewScanLifecycle(
	store *store.Store,
	classifier ClassificationGateway,
	media MediaStorage,
	ledger *PointsLedger,
	bus *broker.Bus,
	minConfidence float64,
) *ScanLifecycle {
	return &ScanLifecycle{
		store:         store,
		classifier:    classifier,
		media:         media,
		ledger:        ledger,
		bus:           bus,
		minConfidence: minConfidence,
		logger:        util.GetLogger(),
	}
}

// CreateScan classifies an image and creates the scan record. Items in a
// category with no disposal choice are approved and credited immediately;
// everything else starts pending with its points counted toward the
// informational pending total only.
func (s *ScanLifecycle) CreateScan(ctx context.Context, actor models.Actor, image string) (*CreateScanResult, error) {
	ctx, span := util.StartSpan(ctx, "ScanLifecycle.CreateScan")
	defer span.End()

	classification, err := s.classifier.Classify(ctx, image)
	if err != nil {
		util.ScansFailedTotal.WithLabelValues("classification_unavailable").Inc()
		return nil, err
	}

	if classification.Unidentifiable || classification.IsHuman ||
		classification.Confidence < s.minConfidence {
		util.ScansRetryTotal.Inc()
		return &CreateScanResult{Outcome: OutcomeRetry}, nil
	}
	if !KnownCategory(classification.Category) {
		// The classifier is not trusted with a category the multiplier
		// table cannot price.
		s.logger.Warn("Classifier returned unknown category",
			zap.String("category", classification.Category))
		util.ScansRetryTotal.Inc()
		return &CreateScanResult{Outcome: OutcomeRetry}, nil
	}

	// Guest scans keep no image; skip the upload.
	if actor.Guest() {
		return s.createGuestScan(ctx, actor.DeviceID, classification)
	}

	imageURL := s.uploadImage(ctx, image)

	if err := s.store.EnsureAccount(ctx, actor.AccountID); err != nil {
		return nil, err
	}

	scan := &models.ScanRecord{
		ID:          uuid.New(),
		AccountID:   actor.AccountID,
		Name:        classification.Name,
		Category:    classification.Category,
		BasePoints:  classification.Points,
		FinalPoints: classification.Points,
		ImageURL:    imageURL,
	}

	needsChoice := NeedsDisposalChoice(classification.Category)
	if !needsChoice {
		mutation, err := s.store.CreateApprovedScanTx(ctx, scan)
		if err != nil {
			util.ScansFailedTotal.WithLabelValues("db_error").Inc()
			return nil, err
		}
		util.ScansCreatedTotal.WithLabelValues(scan.Category, scan.Status).Inc()
		util.PointsCreditedTotal.Add(float64(scan.FinalPoints))
		s.ledger.SettleBalance(ctx, actor.AccountID, mutation.OldBalance, mutation.NewBalance)
		s.publishApproved(ctx, scan)
	} else {
		if err := s.store.CreatePendingScanTx(ctx, scan); err != nil {
			util.ScansFailedTotal.WithLabelValues("db_error").Inc()
			return nil, err
		}
		util.ScansCreatedTotal.WithLabelValues(scan.Category, scan.Status).Inc()
	}

	event := &models.ScanCreatedEvent{
		BaseEvent:   broker.NewBase(models.EventTypeScanCreated),
		ScanID:      scan.ID,
		AccountID:   scan.AccountID,
		Category:    scan.Category,
		BasePoints:  scan.BasePoints,
		FinalPoints: scan.FinalPoints,
		Status:      scan.Status,
	}
	if err := s.bus.PublishScanCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ScanCreated event", zap.Error(err))
	}

	return &CreateScanResult{
		Outcome:     OutcomeStored,
		Scan:        scan,
		NeedsChoice: needsChoice,
	}, nil
}

// ApplyDisposalChoice resolves the user's end-of-life choice for a pending
// scan. Discard settles immediately; donate, recycle and special wait for
// review; trade additionally seeds a draft listing priced at twice the final
// points. Terminal records reject re-application.
func (s *ScanLifecycle) ApplyDisposalChoice(ctx context.Context, actor models.Actor, scanID uuid.UUID, choice string) (*CreateScanResult, error) {
	ctx, span := util.StartSpan(ctx, "ScanLifecycle.ApplyDisposalChoice")
	defer span.End()

	if actor.Guest() {
		return s.resolveGuestChoice(ctx, actor.DeviceID, scanID, choice)
	}

	scan, err := s.store.GetScanByID(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if scan.AccountID != actor.AccountID {
		return nil, models.ErrNotOwner
	}
	if scan.Status != models.ScanStatusPending {
		return nil, models.ErrStaleTransition
	}

	finalPoints, err := FinalPoints(scan.BasePoints, scan.Category, choice)
	if err != nil {
		util.ScansFailedTotal.WithLabelValues("invalid_choice").Inc()
		return nil, err
	}

	approve := choice == models.ChoiceDiscard

	var draft *models.Listing
	if choice == models.ChoiceTrade {
		scanRef := scan.ID
		draft = &models.Listing{
			ID:          uuid.New(),
			SellerID:    scan.AccountID,
			ScanID:      &scanRef,
			Title:       scan.Name,
			Category:    scan.Category,
			PricePoints: finalPoints * 2,
			Status:      models.ListingStatusDraft,
			ImageURL:    scan.ImageURL,
		}
	}

	mutation, err := s.store.ApplyChoiceTx(ctx, scanID, choice, finalPoints, approve, draft)
	if err != nil {
		if errors.Is(err, models.ErrStaleTransition) {
			return nil, err
		}
		util.ScansFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	if mutation.Credited {
		util.PointsCreditedTotal.Add(float64(finalPoints))
		s.ledger.SettleBalance(ctx, scan.AccountID, mutation.OldBalance, mutation.NewBalance)
		s.publishApproved(ctx, mutation.Scan)
	}

	return &CreateScanResult{
		Outcome: OutcomeStored,
		Scan:    mutation.Scan,
	}, nil
}

// History returns the account's scan records, newest first.
func (s *ScanLifecycle) History(ctx context.Context, actor models.Actor) ([]models.ScanRecord, error) {
	return s.store.ListScansByAccount(ctx, actor.AccountID)
}

// createGuestScan accumulates a scan in the device-local guest store. Guest
// state has no review queue; only choice resolution settles pending scans.
func (s *ScanLifecycle) createGuestScan(ctx context.Context, deviceID string, classification *Classification) (*CreateScanResult, error) {
	needsChoice := NeedsDisposalChoice(classification.Category)

	scan := &models.GuestScan{
		ID:          uuid.New(),
		DeviceID:    deviceID,
		Name:        classification.Name,
		Category:    classification.Category,
		BasePoints:  classification.Points,
		FinalPoints: classification.Points,
		Status:      models.ScanStatusApproved,
	}
	credit := classification.Points
	if needsChoice {
		scan.Status = models.ScanStatusPending
		credit = 0
	}

	if err := s.store.CreateGuestScanTx(ctx, scan, credit); err != nil {
		util.ScansFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	util.ScansCreatedTotal.WithLabelValues(scan.Category, scan.Status).Inc()
	return &CreateScanResult{
		Outcome:     OutcomeStored,
		GuestScan:   scan,
		NeedsChoice: needsChoice,
	}, nil
}

func (s *ScanLifecycle) resolveGuestChoice(ctx context.Context, deviceID string, scanID uuid.UUID, choice string) (*CreateScanResult, error) {
	scan, err := s.store.GetGuestScanByID(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if scan.DeviceID != deviceID {
		return nil, models.ErrNotOwner
	}
	if scan.Status != models.ScanStatusPending {
		return nil, models.ErrStaleTransition
	}

	finalPoints, err := FinalPoints(scan.BasePoints, scan.Category, choice)
	if err != nil {
		util.ScansFailedTotal.WithLabelValues("invalid_choice").Inc()
		return nil, err
	}

	ok, err := s.store.ResolveGuestScanTx(ctx, scanID, deviceID, choice, finalPoints)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrStaleTransition
	}

	scan.DisposalChoice = &choice
	scan.FinalPoints = finalPoints
	scan.Status = models.ScanStatusApproved
	return &CreateScanResult{Outcome: OutcomeStored, GuestScan: scan}, nil
}

func (s *ScanLifecycle) uploadImage(ctx context.Context, image string) string {
	if s.media == nil || image == "" {
		return ""
	}
	url, err := s.media.Put(ctx, image)
	if err != nil {
		// Scan records persist without an image.
		s.logger.Warn("Image upload failed", zap.Error(err))
		return ""
	}
	return url
}

func (s *ScanLifecycle) publishApproved(ctx context.Context, scan *models.ScanRecord) {
	event := &models.ScanApprovedEvent{
		BaseEvent:   broker.NewBase(models.EventTypeScanApproved),
		ScanID:      scan.ID,
		AccountID:   scan.AccountID,
		Name:        scan.Name,
		FinalPoints: scan.FinalPoints,
	}
	if err := s.bus.PublishScanApproved(ctx, event); err != nil {
		s.logger.Error("Failed to publish ScanApproved event", zap.Error(err))
	}
}
