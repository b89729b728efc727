package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/landvault/internal/common"
	"github.com/dmitrijs2005/landvault/internal/dbx"
	"github.com/dmitrijs2005/landvault/internal/logging"
	"github.com/dmitrijs2005/landvault/internal/server/config"
	"github.com/dmitrijs2005/landvault/internal/server/models"
	"github.com/dmitrijs2005/landvault/internal/server/notifications"
	"github.com/dmitrijs2005/landvault/internal/server/repositories/audits"
	"github.com/dmitrijs2005/landvault/internal/server/repositories/documents"
	"github.com/dmitrijs2005/landvault/internal/server/repositories/lands"
	"github.com/jackc/pgx/v5/pgconn"
)

// -------- test fakes --------

type fakeLandsRepo struct {
	lands.Repository
	land *models.Land
	err  error
}

func (f *fakeLandsRepo) GetByID(ctx context.Context, id string) (*models.Land, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.land, nil
}

type fakeDocumentsRepo struct {
	documents.Repository

	byID       *models.DocumentVersion
	byIDErr    error
	latest     *models.DocumentVersion
	underRev   *models.DocumentVersion
	versions   []*models.DocumentVersion
	summary    []*models.SlotStatus
	groupIDs   []string
	deletedIDs []string

	inserted       []*models.DocumentVersion
	insertErr      error
	clearedLatest  []string
	lockedIDs      []string
	lockErrs       []error
	releasedIDs    []string
	completedIDs   []string
	completeStatus models.VersionStatus
	completeErr    error
}

func (f *fakeDocumentsRepo) Insert(ctx context.Context, doc *models.DocumentVersion) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, doc)
	return nil
}

func (f *fakeDocumentsRepo) GetByID(ctx context.Context, id string) (*models.DocumentVersion, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	return f.byID, nil
}

func (f *fakeDocumentsRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.DocumentVersion, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeDocumentsRepo) GetLatestInGroupForUpdate(ctx context.Context, landID, documentType, docSlot string) (*models.DocumentVersion, error) {
	return f.latest, nil
}

func (f *fakeDocumentsRepo) FindUnderReviewInGroupForUpdate(ctx context.Context, landID, documentType, docSlot string) (*models.DocumentVersion, error) {
	return f.underRev, nil
}

func (f *fakeDocumentsRepo) ClearLatest(ctx context.Context, id string) error {
	f.clearedLatest = append(f.clearedLatest, id)
	return nil
}

func (f *fakeDocumentsRepo) ListVersions(ctx context.Context, landID, documentType string) ([]*models.DocumentVersion, error) {
	return f.versions, nil
}

func (f *fakeDocumentsRepo) AcquireReviewLock(ctx context.Context, id, reviewerID string, lockedAt time.Time, reason string) error {
	if len(f.lockErrs) > 0 {
		err := f.lockErrs[0]
		f.lockErrs = f.lockErrs[1:]
		if err != nil {
			return err
		}
	}
	f.lockedIDs = append(f.lockedIDs, id)
	return nil
}

func (f *fakeDocumentsRepo) ReleaseReviewLock(ctx context.Context, id, reason string) error {
	f.releasedIDs = append(f.releasedIDs, id)
	return nil
}

func (f *fakeDocumentsRepo) CompleteReview(ctx context.Context, id, reviewerID string, newStatus models.VersionStatus, adminComments, reason string, approvedAt *time.Time) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completedIDs = append(f.completedIDs, id)
	f.completeStatus = newStatus
	return nil
}

func (f *fakeDocumentsRepo) SlotSummary(ctx context.Context, landID string) ([]*models.SlotStatus, error) {
	return f.summary, nil
}

func (f *fakeDocumentsRepo) SelectGroupIDsForUpdate(ctx context.Context, landID, documentType, docSlot string) ([]string, error) {
	return f.groupIDs, nil
}

func (f *fakeDocumentsRepo) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	f.deletedIDs = append(f.deletedIDs, ids...)
	return len(ids), nil
}

type fakeAuditsRepo struct {
	audits.Repository

	inserted  []*models.AuditEntry
	insertErr error
	entries   []*models.AuditEntry
	deleted   []string
}

func (f *fakeAuditsRepo) Insert(ctx context.Context, entry *models.AuditEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, entry)
	return nil
}

func (f *fakeAuditsRepo) ListByDocument(ctx context.Context, documentID string) ([]*models.AuditEntry, error) {
	return f.entries, nil
}

func (f *fakeAuditsRepo) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) (int, error) {
	f.deleted = append(f.deleted, documentIDs...)
	return len(documentIDs) * 2, nil
}

type fakeRepoManager struct {
	l *fakeLandsRepo
	d *fakeDocumentsRepo
	a *fakeAuditsRepo
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error  { return nil }
func (m *fakeRepoManager) ValidateSchema(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeRepoManager) Lands(db dbx.DBTX) lands.Repository                   { return m.l }
func (m *fakeRepoManager) Documents(db dbx.DBTX) documents.Repository           { return m.d }
func (m *fakeRepoManager) Audits(db dbx.DBTX) audits.Repository                 { return m.a }

type fakeLogger struct{}

func (l *fakeLogger) Debug(ctx context.Context, msg string, args ...any) {}
func (l *fakeLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (l *fakeLogger) Warn(ctx context.Context, msg string, args ...any)  {}
func (l *fakeLogger) Error(ctx context.Context, msg string, args ...any) {}
func (l *fakeLogger) With(args ...any) logging.Logger                    { return l }

type fakeNotifier struct {
	uploads  []notifications.Event
	statuses []notifications.Event
	locks    []notifications.Event
	err      error
}

func (n *fakeNotifier) NotifyVersionUpload(ctx context.Context, event notifications.Event) error {
	n.uploads = append(n.uploads, event)
	return n.err
}

func (n *fakeNotifier) NotifyStatusChange(ctx context.Context, event notifications.Event) error {
	n.statuses = append(n.statuses, event)
	return n.err
}

func (n *fakeNotifier) NotifyReviewLock(ctx context.Context, event notifications.Event) error {
	n.locks = append(n.locks, event)
	return n.err
}

// -------- helpers --------

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		TxMaxRetries:     1,
		TxRetryBaseDelay: time.Millisecond,
		S3Region:         "us-east-1",
		S3RootUser:       "x",
		S3RootPassword:   "y",
		S3BaseEndpoint:   "http://127.0.0.1:9000",
		S3Bucket:         "bucket",
	}
}

func newVersionService(t *testing.T, db *sql.DB, m *fakeRepoManager, n *fakeNotifier) *VersionService {
	t.Helper()
	return NewVersionService(db, m, testConfig(), &fakeLogger{}, n)
}

func serializationFailure() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
}

func groupIndexViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value"}
}

func activeDoc(id string, version int) *models.DocumentVersion {
	return &models.DocumentVersion{
		ID:              id,
		LandID:          "land-1",
		DocumentType:    "survey-plan",
		DocSlot:         models.DefaultSlot,
		VersionNumber:   version,
		IsLatestVersion: true,
		VersionStatus:   models.StatusActive,
	}
}

// -------- tests --------

func TestCreateVersion_FirstVersionInGroup(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := &fakeRepoManager{
		l: &fakeLandsRepo{land: &models.Land{ID: "land-1"}},
		d: &fakeDocumentsRepo{},
		a: &fakeAuditsRepo{},
	}
	n := &fakeNotifier{}
	s := newVersionService(t, db, m, n)

	res, err := s.CreateVersion(context.Background(), CreateVersionInput{
		LandID:       "land-1",
		DocumentType: "survey-plan",
		Metadata:     models.FileMetadata{FileName: "plan.pdf", FileSize: 1024},
		UploadedBy:   "user-1",
		Notes:        "initial upload",
	})
	if err != nil {
		t.Fatalf("CreateVersion error: %v", err)
	}

	doc := res.Document
	if doc.VersionNumber != 1 {
		t.Fatalf("want version 1, got %d", doc.VersionNumber)
	}
	if doc.ParentDocumentID != nil {
		t.Fatalf("first version must have no parent, got %v", *doc.ParentDocumentID)
	}
	if !doc.IsLatestVersion || doc.VersionStatus != models.StatusActive {
		t.Fatalf("unexpected new version state: %+v", doc)
	}
	if doc.DocSlot != models.DefaultSlot {
		t.Fatalf("empty slot must resolve to default, got %s", doc.DocSlot)
	}
	if res.UploadURL == "" {
		t.Fatal("no upload URL")
	}

	if len(m.d.clearedLatest) != 0 {
		t.Fatalf("nothing to clear in an empty group, cleared %v", m.d.clearedLatest)
	}
	if len(m.a.inserted) != 1 || m.a.inserted[0].Action != models.AuditVersionUpload {
		t.Fatalf("want one version_upload audit entry, got %+v", m.a.inserted)
	}
	if *m.a.inserted[0].NewVersionNumber != 1 || m.a.inserted[0].OldVersionNumber != nil {
		t.Fatalf("unexpected audit version numbers: %+v", m.a.inserted[0])
	}
	if len(n.uploads) != 1 {
		t.Fatalf("want one upload notification, got %d", len(n.uploads))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateVersion_IncrementsAndReplacesLatest(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	prev := activeDoc("doc-2", 2)
	m := &fakeRepoManager{
		l: &fakeLandsRepo{land: &models.Land{ID: "land-1"}},
		d: &fakeDocumentsRepo{latest: prev},
		a: &fakeAuditsRepo{},
	}
	s := newVersionService(t, db, m, &fakeNotifier{})

	res, err := s.CreateVersion(context.Background(), CreateVersionInput{
		LandID:       "land-1",
		DocumentType: "survey-plan",
		Metadata:     models.FileMetadata{FileName: "plan-v3.pdf"},
		UploadedBy:   "user-1",
	})
	if err != nil {
		t.Fatalf("CreateVersion error: %v", err)
	}

	doc := res.Document
	if doc.VersionNumber != 3 {
		t.Fatalf("want version 3, got %d", doc.VersionNumber)
	}
	if doc.ParentDocumentID == nil || *doc.ParentDocumentID != "doc-2" {
		t.Fatalf("want parent doc-2, got %v", doc.ParentDocumentID)
	}
	if len(m.d.clearedLatest) != 1 || m.d.clearedLatest[0] != "doc-2" {
		t.Fatalf("previous latest not cleared: %v", m.d.clearedLatest)
	}
	if *m.a.inserted[0].OldVersionNumber != 2 || *m.a.inserted[0].NewVersionNumber != 3 {
		t.Fatalf("unexpected audit version numbers: %+v", m.a.inserted[0])
	}
}

func TestCreateVersion_InvalidSlot(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := &fakeRepoManager{
		l: &fakeLandsRepo{land: &models.Land{ID: "land-1"}},
		d: &fakeDocumentsRepo{},
		a: &fakeAuditsRepo{},
	}
	s := newVersionService(t, db, m, &fakeNotifier{})

	_, err := s.CreateVersion(context.Background(), CreateVersionInput{
		LandID:       "land-1",
		DocumentType: "survey-plan",
		DocSlot:      "D2",
		UploadedBy:   "user-1",
	})
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestCreateVersion_SecondSlotForMultiInstanceType(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := &fakeRepoManager{
		l: &fakeLandsRepo{land: &models.Land{ID: "land-1"}},
		d: &fakeDocumentsRepo{},
		a: &fakeAuditsRepo{},
	}
	s := newVersionService(t, db, m, &fakeNotifier{})

	res, err := s.CreateVersion(context.Background(), CreateVersionInput{
		LandID:       "land-1",
		DocumentType: "ownership-documents",
		DocSlot:      "D2",
		UploadedBy:   "user-1",
	})
	if err != nil {
		t.Fatalf("CreateVersion error: %v", err)
	}
	if res.Document.DocSlot != "D2" {
		t.Fatalf("want slot D2, got %s", res.Document.DocSlot)
	}
}

func TestCreateVersion_LandNotFound(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := &fakeRepoManager{
		l: &fakeLandsRepo{err: common.ErrorNotFound},
		d: &fakeDocumentsRepo{},
		a: &fakeAuditsRepo{},
	}
	s := newVersionService(t, db, m, &fakeNotifier{})

	_, err := s.CreateVersion(context.Background(), CreateVersionInput{
		LandID:       "missing",
		DocumentType: "survey-plan",
		UploadedBy:   "user-1",
	})
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestCreateVersion_NotifierFailureDoesNotFailOperation(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := &fakeRepoManager{
		l: &fakeLandsRepo{land: &models.Land{ID: "land-1"}},
		d: &fakeDocumentsRepo{},
		a: &fakeAuditsRepo{},
	}
	n := &fakeNotifier{err: errors.New("smtp is down")}
	s := newVersionService(t, db, m, n)

	_, err := s.CreateVersion(context.Background(), CreateVersionInput{
		LandID:       "land-1",
		DocumentType: "survey-plan",
		UploadedBy:   "user-1",
	})
	if err != nil {
		t.Fatalf("notifier failure must not fail the upload: %v", err)
	}
}

func TestCreateVersion_AuditFailureRollsBack(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	m := &fakeRepoManager{
		l: &fakeLandsRepo{land: &models.Land{ID: "land-1"}},
		d: &fakeDocumentsRepo{},
		a: &fakeAuditsRepo{insertErr: errors.New("audit insert failed")},
	}
	n := &fakeNotifier{}
	s := newVersionService(t, db, m, n)

	_, err := s.CreateVersion(context.Background(), CreateVersionInput{
		LandID:       "land-1",
		DocumentType: "survey-plan",
		UploadedBy:   "user-1",
	})
	if err == nil {
		t.Fatal("expected error when audit insert fails")
	}
	if len(n.uploads) != 0 {
		t.Fatalf("no notification on rollback, got %d", len(n.uploads))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateVersion_LatestIndexRaceSurfacesErrConflict(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	// TxMaxRetries is 1, so the losing transaction runs twice before giving up.
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	m := &fakeRepoManager{
		l: &fakeLandsRepo{land: &models.Land{ID: "land-1"}},
		d: &fakeDocumentsRepo{insertErr: groupIndexViolation("document_versions_one_latest")},
		a: &fakeAuditsRepo{},
	}
	n := &fakeNotifier{}
	s := newVersionService(t, db, m, n)

	_, err := s.CreateVersion(context.Background(), CreateVersionInput{
		LandID:       "land-1",
		DocumentType: "survey-plan",
		UploadedBy:   "user-1",
	})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	if len(n.uploads) != 0 {
		t.Fatalf("no notification on conflict, got %d", len(n.uploads))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSlotStatusSummary_GroupsByDocumentType(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := &fakeRepoManager{
		l: &fakeLandsRepo{land: &models.Land{ID: "land-1"}},
		d: &fakeDocumentsRepo{summary: []*models.SlotStatus{
			{DocumentType: "ownership-documents", DocSlot: "D1", VersionNumber: 2, VersionStatus: models.StatusActive},
			{DocumentType: "ownership-documents", DocSlot: "D2", VersionNumber: 1, VersionStatus: models.StatusUnderReview},
			{DocumentType: "survey-plan", DocSlot: "D1", VersionNumber: 4, VersionStatus: models.StatusApproved},
		}},
		a: &fakeAuditsRepo{},
	}
	s := newVersionService(t, db, m, &fakeNotifier{})

	summary, err := s.SlotStatusSummary(context.Background(), "land-1")
	if err != nil {
		t.Fatalf("SlotStatusSummary error: %v", err)
	}
	if len(summary["ownership-documents"]) != 2 {
		t.Fatalf("want 2 ownership slots, got %d", len(summary["ownership-documents"]))
	}
	if len(summary["survey-plan"]) != 1 {
		t.Fatalf("want 1 survey-plan slot, got %d", len(summary["survey-plan"]))
	}
}

func TestListAuditTrail_UnknownDocument(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := &fakeRepoManager{
		l: &fakeLandsRepo{},
		d: &fakeDocumentsRepo{byIDErr: common.ErrorNotFound},
		a: &fakeAuditsRepo{},
	}
	s := newVersionService(t, db, m, &fakeNotifier{})

	_, err := s.ListAuditTrail(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestPurgeDocumentChain_DeletesAuditsThenDocuments(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := &fakeRepoManager{
		l: &fakeLandsRepo{land: &models.Land{ID: "land-1"}},
		d: &fakeDocumentsRepo{groupIDs: []string{"doc-2", "doc-1"}},
		a: &fakeAuditsRepo{},
	}
	s := newVersionService(t, db, m, &fakeNotifier{})

	res, err := s.PurgeDocumentChain(context.Background(), "land-1", "survey-plan", "")
	if err != nil {
		t.Fatalf("PurgeDocumentChain error: %v", err)
	}
	if res.DocumentsDeleted != 2 {
		t.Fatalf("want 2 documents deleted, got %d", res.DocumentsDeleted)
	}
	if res.AuditsDeleted != 4 {
		t.Fatalf("want 4 audits deleted, got %d", res.AuditsDeleted)
	}
	if len(m.a.deleted) != 2 || len(m.d.deletedIDs) != 2 {
		t.Fatalf("unexpected delete calls: audits=%v docs=%v", m.a.deleted, m.d.deletedIDs)
	}
}

func TestPurgeDocumentChain_EmptyGroup(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	m := &fakeRepoManager{
		l: &fakeLandsRepo{land: &models.Land{ID: "land-1"}},
		d: &fakeDocumentsRepo{},
		a: &fakeAuditsRepo{},
	}
	s := newVersionService(t, db, m, &fakeNotifier{})

	_, err := s.PurgeDocumentChain(context.Background(), "land-1", "survey-plan", "")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}
