package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/crypto"
	"github.com/dealdesk-crm/intake-engine/pkg/logging"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
	"github.com/dealdesk-crm/intake-engine/pkg/repositories"
)

// Descriptions shorter than this are considered worth enriching.
const minDescriptionLen = 50

// Defaults for freshly created opportunities.
const (
	opportunityStatusNew    = "new"
	opportunityStageIntake  = "intake"
	opportunityPriorityMed  = "medium"
	opportunityDefaultTitle = "New opportunity"
)

// IngestRequest is one inbound submission on a stream.
type IngestRequest struct {
	StreamID uuid.UUID
	RawBody  []byte

	// Secret is the X-Stream-Secret header, Signature the X-Signature header.
	// At most one is expected; the shared-secret header wins when both are set.
	Secret    string
	Signature string

	// SkipVerification bypasses credential checks for trusted in-process
	// submissions (backfills, admin tooling). Never set from HTTP input.
	SkipVerification bool
}

// IngestResult is the outcome of one ingestion attempt. Business rejections
// (bad credentials, inactive stream, unusable payload) come back here with
// Success=false rather than as an error; the error return is reserved for
// infrastructure failures.
type IngestResult struct {
	Success       bool       `json:"success"`
	Status        int        `json:"-"`
	OpportunityID *uuid.UUID `json:"opportunity_id,omitempty"`
	Duplicate     bool       `json:"duplicate,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// IngestService is the gateway turning stream submissions into opportunities.
type IngestService interface {
	// Ingest runs the full intake flow: stream lookup, verification,
	// deduplication, payload mapping, enrichment, opportunity creation and
	// routing. Every attempt on a known stream writes exactly one ingest
	// event, success or failure.
	Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error)
}

type ingestService struct {
	streamRepo repositories.StreamRepository
	oppRepo    repositories.OpportunityRepository
	eventRepo  repositories.IngestEventRepository
	router     AssignmentService
	enricher   Enricher
	encryptor  *crypto.SecretEncryptor
	logger     *zap.Logger
	now        func() time.Time
}

// NewIngestService creates a new ingest service. encryptor may be nil, in
// which case HMAC-signed streams cannot be verified and reject.
func NewIngestService(
	streamRepo repositories.StreamRepository,
	oppRepo repositories.OpportunityRepository,
	eventRepo repositories.IngestEventRepository,
	router AssignmentService,
	enricher Enricher,
	encryptor *crypto.SecretEncryptor,
	logger *zap.Logger,
) IngestService {
	return &ingestService{
		streamRepo: streamRepo,
		oppRepo:    oppRepo,
		eventRepo:  eventRepo,
		router:     router,
		enricher:   enricher,
		encryptor:  encryptor,
		logger:     logger.Named("ingest-service"),
		now:        time.Now,
	}
}

var _ IngestService = (*ingestService)(nil)

func (s *ingestService) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	receivedAt := s.now()

	stream, err := s.streamRepo.GetByID(ctx, req.StreamID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Unknown stream: nothing to attach an audit row to.
			return &IngestResult{Status: http.StatusNotFound, Error: "stream not found"}, nil
		}
		return nil, fmt.Errorf("failed to load stream: %w", err)
	}

	event := &models.IngestEvent{
		StreamID:   stream.ID,
		ReceivedAt: receivedAt,
	}

	if !stream.IsActive {
		return s.reject(ctx, event, http.StatusForbidden, "stream is inactive", apperrors.ErrStreamInactive), nil
	}

	// Verification runs over the raw bytes, before anything is parsed.
	if !req.SkipVerification {
		if err := s.verify(stream, req.RawBody, req.Secret, req.Signature); err != nil {
			return s.reject(ctx, event, http.StatusUnauthorized, "verification failed", err), nil
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(req.RawBody, &payload); err != nil || payload == nil {
		return s.reject(ctx, event, http.StatusBadRequest, "body must be a JSON object", err), nil
	}
	event.Payload = logging.SanitizePayload(payload)

	key := BuildIdempotencyKey(payload, receivedAt)
	externalID := PayloadExternalID(payload)
	event.IdempotencyKey = &key
	event.ExternalID = externalID

	if existing, err := s.eventRepo.FindCreated(ctx, stream.ID, key, externalID); err == nil {
		return s.duplicate(ctx, event, existing), nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate submission: %w", err)
	}

	mapped := MapPayload(payload, stream.Config)
	if err := ValidateMapped(mapped); err != nil {
		return s.reject(ctx, event, http.StatusBadRequest, "payload has no usable opportunity fields", err), nil
	}

	opp := buildOpportunity(mapped, stream)
	s.enrich(ctx, opp, mapped, payload)

	if err := s.oppRepo.Create(ctx, opp); err != nil {
		s.writeEvent(ctx, event, models.IngestStatusError, http.StatusInternalServerError, "failed to store opportunity")
		return nil, fmt.Errorf("failed to create opportunity: %w", err)
	}

	event.Status = models.IngestStatusSuccess
	event.HTTPStatus = http.StatusOK
	event.CreatedOpportunityID = &opp.ID
	if err := s.eventRepo.Create(ctx, event); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// A concurrent delivery of the same submission won the unique
			// index. Its opportunity is the canonical one; ours must not
			// linger as an unreferenced row.
			event.CreatedOpportunityID = nil
			if derr := s.oppRepo.Delete(ctx, opp.ID); derr != nil {
				s.logger.Error("Failed to remove opportunity after losing duplicate race",
					zap.String("opportunity_id", opp.ID.String()),
					zap.String("error", logging.SanitizeError(derr)))
			}
			if existing, ferr := s.eventRepo.FindCreated(ctx, stream.ID, key, externalID); ferr == nil {
				return s.duplicate(ctx, event, existing), nil
			}
			return s.duplicate(ctx, event, nil), nil
		}
		return nil, fmt.Errorf("failed to record ingest event: %w", err)
	}

	s.logger.Info("Opportunity created",
		zap.String("stream_id", stream.ID.String()),
		zap.String("opportunity_id", opp.ID.String()),
		zap.String("title", opp.Title))

	// Routing is best-effort: a created opportunity without an assignee is a
	// valid outcome, an aborted ingestion is not.
	if s.router != nil {
		if _, err := s.router.Assign(ctx, opp.ID); err != nil {
			s.logger.Warn("Routing failed after ingest",
				zap.String("opportunity_id", opp.ID.String()),
				zap.String("error", logging.SanitizeError(err)))
		}
	}

	return &IngestResult{
		Success:       true,
		Status:        http.StatusOK,
		OpportunityID: &opp.ID,
	}, nil
}

// verify checks the request credential against the stream's configuration.
// Streams default to requiring a credential; only an explicit
// require_secret=false opts out.
func (s *ingestService) verify(stream *models.Stream, rawBody []byte, secret, signature string) error {
	if !stream.Config.SecretRequired() {
		return nil
	}

	switch {
	case secret != "":
		if stream.SecretHash == nil || !crypto.CompareSecret(*stream.SecretHash, secret) {
			return fmt.Errorf("shared secret mismatch: %w", apperrors.ErrVerificationFailed)
		}
		return nil

	case signature != "":
		if s.encryptor == nil || stream.SecretCiphertext == nil {
			return fmt.Errorf("stream has no signing secret: %w", apperrors.ErrVerificationFailed)
		}
		plaintext, err := s.encryptor.Decrypt(*stream.SecretCiphertext)
		if err != nil {
			return fmt.Errorf("failed to recover signing secret: %w", apperrors.ErrVerificationFailed)
		}
		mac := hmac.New(sha256.New, []byte(plaintext))
		mac.Write(rawBody)
		expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(signature), []byte(expected)) {
			return fmt.Errorf("signature mismatch: %w", apperrors.ErrVerificationFailed)
		}
		return nil

	default:
		return fmt.Errorf("missing credential: %w", apperrors.ErrVerificationFailed)
	}
}

// enrich fills description and value when the payload left them weak.
// Strictly best-effort: failures are logged and the opportunity ships as-is.
func (s *ingestService) enrich(ctx context.Context, opp *models.Opportunity, mapped, payload map[string]any) {
	if opp.Description == nil || len(*opp.Description) < minDescriptionLen {
		desc, err := s.enricher.Describe(ctx, mapped, payload)
		switch {
		case err != nil:
			s.logger.Warn("Description enrichment failed",
				zap.String("error", logging.SanitizeError(err)))
		case desc != "":
			opp.Description = &desc
		}
	}

	if opp.Value == nil || *opp.Value == 0 {
		value, err := s.enricher.EstimateValue(ctx, mapped, payload)
		switch {
		case err != nil:
			s.logger.Warn("Value enrichment failed",
				zap.String("error", logging.SanitizeError(err)))
		case value > 0:
			opp.Value = &value
		}
	}
}

// reject records a failed attempt and builds the client-facing result.
func (s *ingestService) reject(ctx context.Context, event *models.IngestEvent, status int, message string, cause error) *IngestResult {
	detail := message
	if cause != nil {
		detail = logging.SanitizeError(fmt.Errorf("%s: %w", message, cause))
	}
	s.writeEvent(ctx, event, models.IngestStatusError, status, detail)

	s.logger.Warn("Ingestion rejected",
		zap.String("stream_id", event.StreamID.String()),
		zap.Int("status", status),
		zap.String("reason", detail))

	return &IngestResult{Status: status, Error: message}
}

// duplicate records a repeat delivery and points the caller at the
// opportunity the first delivery created.
func (s *ingestService) duplicate(ctx context.Context, event *models.IngestEvent, existing *models.IngestEvent) *IngestResult {
	s.writeEvent(ctx, event, models.IngestStatusSuccess, http.StatusOK, "")

	result := &IngestResult{
		Success:   true,
		Status:    http.StatusOK,
		Duplicate: true,
	}
	if existing != nil {
		result.OpportunityID = existing.CreatedOpportunityID
	}

	s.logger.Info("Duplicate submission acknowledged",
		zap.String("stream_id", event.StreamID.String()))

	return result
}

// writeEvent appends the audit row for this attempt. A failed audit insert is
// logged, never propagated: the client outcome is already decided.
func (s *ingestService) writeEvent(ctx context.Context, event *models.IngestEvent, status string, httpStatus int, errorMessage string) {
	event.Status = status
	event.HTTPStatus = httpStatus
	if errorMessage != "" {
		event.ErrorMessage = &errorMessage
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		s.logger.Error("Failed to record ingest event",
			zap.String("stream_id", event.StreamID.String()),
			zap.String("error", logging.SanitizeError(err)))
	}
}

// buildOpportunity turns mapped payload fields into a new opportunity row.
func buildOpportunity(mapped map[string]any, stream *models.Stream) *models.Opportunity {
	opp := &models.Opportunity{
		Title:          mappedString(mapped, "title"),
		CompanyName:    mappedStringPtr(mapped, "company_name"),
		ContactName:    mappedStringPtr(mapped, "contact_name"),
		Email:          mappedStringPtr(mapped, "email"),
		Phone:          mappedStringPtr(mapped, "phone"),
		Address:        mappedStringPtr(mapped, "address"),
		City:           mappedStringPtr(mapped, "city"),
		Postcode:       mappedStringPtr(mapped, "postcode"),
		Description:    mappedStringPtr(mapped, "message"),
		Status:         opportunityStatusNew,
		Stage:          opportunityStageIntake,
		Priority:       opportunityPriorityMed,
		Value:          mappedFloat(mapped, "value"),
		SourceStreamID: &stream.ID,
	}

	if v := mappedString(mapped, "status"); v != "" {
		opp.Status = v
	}
	if v := mappedString(mapped, "stage"); v != "" {
		opp.Stage = v
	}
	if v := mappedString(mapped, "priority"); v != "" {
		opp.Priority = v
	}

	if opp.Title == "" {
		switch {
		case opp.CompanyName != nil:
			opp.Title = *opp.CompanyName
		case opp.ContactName != nil:
			opp.Title = *opp.ContactName
		default:
			opp.Title = opportunityDefaultTitle
		}
	}

	return opp
}

func mappedString(mapped map[string]any, field string) string {
	s, _ := mapped[field].(string)
	return strings.TrimSpace(s)
}

func mappedStringPtr(mapped map[string]any, field string) *string {
	if s := mappedString(mapped, field); s != "" {
		return &s
	}
	return nil
}

func mappedFloat(mapped map[string]any, field string) *float64 {
	switch v := mapped[field].(type) {
	case float64:
		if v > 0 {
			return &v
		}
	case int:
		if v > 0 {
			f := float64(v)
			return &f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			return &f
		}
	}
	return nil
}
