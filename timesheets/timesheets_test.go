package timesheets

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"contracthub/apperr"
	"contracthub/database"
	"contracthub/models"
	"contracthub/roster"
)

// memStore keeps uploads in memory so tests never touch the disk.
type memStore struct {
	files map[string][]byte
	next  int
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}}
}

func (m *memStore) Save(ctx context.Context, r io.Reader, name string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.next++
	ref := fmt.Sprintf("ref-%d", m.next)
	m.files[ref] = data
	return ref, nil
}

func (m *memStore) Delete(ctx context.Context, ref string) error {
	delete(m.files, ref)
	return nil
}

func (m *memStore) URL(ref string) string {
	if ref == "" {
		return ""
	}
	return "http://test/files/" + ref
}

func (m *memStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	data, ok := m.files[ref]
	if !ok {
		return nil, fmt.Errorf("no such file %q", ref)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fixture struct {
	db     *gorm.DB
	roster *roster.Service
	svc    *Service
	store  *memStore

	owner *models.User
	c     *models.Contract
}

func newFixture(t *testing.T, approveWhenUnsupervised bool) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := zap.NewNop()
	r := roster.New(db, log)
	store := newMemStore()
	svc := New(db, log, store, r, approveWhenUnsupervised)

	f := &fixture{db: db, roster: r, svc: svc, store: store}
	f.owner = f.user(t, "owner@example.com")
	c, err := r.CreateContract(context.Background(), f.owner.ID, "Fall Term", "Course support")
	if err != nil {
		t.Fatal(err)
	}
	f.c = c
	return f
}

func (f *fixture) user(t *testing.T, email string) *models.User {
	t.Helper()
	u := &models.User{Name: strings.Split(email, "@")[0], Email: email, PasswordHash: "x"}
	if err := f.db.Create(u).Error; err != nil {
		t.Fatal(err)
	}
	return u
}

func (f *fixture) submitter(t *testing.T, email string, supervisorIDs ...uint) *models.User {
	t.Helper()
	u := f.user(t, email)
	err := f.roster.AttachExisting(context.Background(), f.c.ID, u.ID,
		models.RoleSubmitter, nil, roster.Window{}, supervisorIDs)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func (f *fixture) supervisor(t *testing.T, email string) *models.User {
	t.Helper()
	u := f.user(t, email)
	err := f.roster.AttachExisting(context.Background(), f.c.ID, u.ID,
		models.RoleSupervisor, nil, roster.Window{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func (f *fixture) task(t *testing.T) *models.TimesheetTask {
	t.Helper()
	task, err := f.svc.CreateTask(context.Background(), f.owner.ID, f.c.ID, TaskParams{
		Title:     "January timesheet",
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Role:      models.RoleSubmitter,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func (f *fixture) submit(t *testing.T, submitterID, taskID uint, content string) *models.Submission {
	t.Helper()
	sub, err := f.svc.Submit(context.Background(), submitterID, taskID, Upload{
		Reader: strings.NewReader(content),
		Name:   "hours.pdf",
	})
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func TestCreateTaskOwnerOnly(t *testing.T) {
	f := newFixture(t, false)
	sub := f.submitter(t, "sub@example.com")

	_, err := f.svc.CreateTask(context.Background(), sub.ID, f.c.ID, TaskParams{
		Title:     "rogue task",
		StartDate: time.Now(),
		Role:      models.RoleSubmitter,
	}, nil)
	if !apperr.IsKind(err, apperr.KindPermissionDenied) {
		t.Fatalf("got %v, want permission denied", err)
	}
}

func TestCreateTaskStoresTemplate(t *testing.T) {
	f := newFixture(t, false)

	task, err := f.svc.CreateTask(context.Background(), f.owner.ID, f.c.ID, TaskParams{
		Title:     "With template",
		StartDate: time.Now(),
		Role:      models.RoleSubmitter,
	}, &Upload{Reader: strings.NewReader("template bytes"), Name: "template.xlsx"})
	if err != nil {
		t.Fatal(err)
	}
	if task.TemplateFile == "" || task.TemplateFileName != "template.xlsx" {
		t.Fatalf("template not recorded: %+v", task)
	}
	if f.svc.TemplateURL(task) == "" {
		t.Fatal("template URL should resolve")
	}
}

func TestUpdateTaskReplacesTemplate(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	task, err := f.svc.CreateTask(ctx, f.owner.ID, f.c.ID, TaskParams{
		Title:     "With template",
		StartDate: time.Now(),
		Role:      models.RoleSubmitter,
	}, &Upload{Reader: strings.NewReader("v1"), Name: "t1.xlsx"})
	if err != nil {
		t.Fatal(err)
	}
	oldRef := task.TemplateFile

	updated, err := f.svc.UpdateTask(ctx, f.owner.ID, task.ID, TaskParams{
		Title:     "With template",
		StartDate: task.StartDate,
		Role:      task.Role,
	}, &Upload{Reader: strings.NewReader("v2"), Name: "t2.xlsx"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.TemplateFile == oldRef {
		t.Fatal("template ref should change on replacement")
	}
	if _, ok := f.store.files[oldRef]; ok {
		t.Fatal("old template should be deleted from storage")
	}
}

func TestDeleteTaskOwnerOnly(t *testing.T) {
	f := newFixture(t, false)
	sub := f.submitter(t, "sub@example.com")
	task := f.task(t)

	if err := f.svc.DeleteTask(context.Background(), sub.ID, task.ID); !apperr.IsKind(err, apperr.KindPermissionDenied) {
		t.Fatalf("got %v, want permission denied", err)
	}
	if err := f.svc.DeleteTask(context.Background(), f.owner.ID, task.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.GetTask(context.Background(), f.owner.ID, task.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("got %v, want not found after delete", err)
	}
}

func TestSubmitRequiresMembership(t *testing.T) {
	f := newFixture(t, false)
	task := f.task(t)
	outsider := f.user(t, "outsider@example.com")

	_, err := f.svc.Submit(context.Background(), outsider.ID, task.ID, Upload{
		Reader: strings.NewReader("x"), Name: "hours.pdf",
	})
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("got %v, want forbidden", err)
	}
}

func TestSubmitStartsPending(t *testing.T) {
	f := newFixture(t, false)
	sup := f.supervisor(t, "sup@example.com")
	sub := f.submitter(t, "sub@example.com", sup.ID)
	task := f.task(t)

	s1 := f.submit(t, sub.ID, task.ID, "week one")
	if s1.Status != models.StatusPending {
		t.Fatalf("status = %s, want pending", s1.Status)
	}
	if _, ok := f.store.files[s1.FilePath]; !ok {
		t.Fatal("upload should be stored")
	}

	// A second submission is appended, not overwritten.
	f.submit(t, sub.ID, task.ID, "week one corrected")
	var count int64
	f.db.Model(&models.Submission{}).
		Where("task_id = ? AND submitter_id = ?", task.ID, sub.ID).Count(&count)
	if count != 2 {
		t.Fatalf("submissions = %d, want history kept", count)
	}

	latest, err := f.svc.LatestFor(context.Background(), task.ID, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID == s1.ID {
		t.Fatal("latest should be the second submission")
	}
}

func TestDeleteSubmissionSubmitterOnly(t *testing.T) {
	f := newFixture(t, false)
	sup := f.supervisor(t, "sup@example.com")
	sub := f.submitter(t, "sub@example.com", sup.ID)
	task := f.task(t)
	s1 := f.submit(t, sub.ID, task.ID, "hours")

	if _, err := f.svc.RecordDecision(context.Background(), sup.ID, s1.ID, models.StatusApproved, ""); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.DeleteSubmission(context.Background(), f.owner.ID, s1.ID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("got %v, want forbidden for non-submitter", err)
	}

	if err := f.svc.DeleteSubmission(context.Background(), sub.ID, s1.ID); err != nil {
		t.Fatal(err)
	}
	var approvals int64
	f.db.Model(&models.SupervisorApproval{}).Where("submission_id = ?", s1.ID).Count(&approvals)
	if approvals != 0 {
		t.Fatal("approval records should be deleted with the submission")
	}
	if _, ok := f.store.files[s1.FilePath]; ok {
		t.Fatal("stored file should be deleted")
	}
}

func TestSingleSupervisorApproval(t *testing.T) {
	f := newFixture(t, false)
	sup := f.supervisor(t, "sup@example.com")
	sub := f.submitter(t, "sub@example.com", sup.ID)
	task := f.task(t)
	s1 := f.submit(t, sub.ID, task.ID, "hours")

	a, err := f.svc.RecordDecision(context.Background(), sup.ID, s1.ID, models.StatusApproved, "")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != models.StatusApproved {
		t.Fatalf("approval status = %s", a.Status)
	}

	overall, err := f.svc.OverallStatus(context.Background(), s1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if overall != models.StatusApproved {
		t.Fatalf("overall = %s, want approved", overall)
	}

	var cached models.Submission
	if err := f.db.First(&cached, s1.ID).Error; err != nil {
		t.Fatal(err)
	}
	if cached.Status != models.StatusApproved {
		t.Fatalf("cached status = %s, want approved", cached.Status)
	}
}

func TestMultiSupervisorAggregation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	s1 := f.supervisor(t, "s1@example.com")
	s2 := f.supervisor(t, "s2@example.com")
	sub := f.submitter(t, "sub@example.com", s1.ID, s2.ID)
	task := f.task(t)
	submission := f.submit(t, sub.ID, task.ID, "hours")

	if _, err := f.svc.RecordDecision(ctx, s1.ID, submission.ID, models.StatusApproved, ""); err != nil {
		t.Fatal(err)
	}
	overall, err := f.svc.OverallStatus(ctx, submission.ID)
	if err != nil {
		t.Fatal(err)
	}
	if overall != models.StatusPending {
		t.Fatalf("overall after one of two approvals = %s, want pending", overall)
	}

	if _, err := f.svc.RecordDecision(ctx, s2.ID, submission.ID, models.StatusRejected, "hours do not add up"); err != nil {
		t.Fatal(err)
	}
	overall, err = f.svc.OverallStatus(ctx, submission.ID)
	if err != nil {
		t.Fatal(err)
	}
	if overall != models.StatusRejected {
		t.Fatalf("overall = %s, rejection must win", overall)
	}

	// A changed mind updates the same record; with both approved the
	// aggregate flips to approved.
	if _, err := f.svc.RecordDecision(ctx, s2.ID, submission.ID, models.StatusApproved, ""); err != nil {
		t.Fatal(err)
	}
	var rows int64
	f.db.Model(&models.SupervisorApproval{}).Where("submission_id = ?", submission.ID).Count(&rows)
	if rows != 2 {
		t.Fatalf("approval rows = %d, want one per supervisor", rows)
	}
	overall, err = f.svc.OverallStatus(ctx, submission.ID)
	if err != nil {
		t.Fatal(err)
	}
	if overall != models.StatusApproved {
		t.Fatalf("overall = %s, want approved once both approve", overall)
	}
}

func TestRejectionRequiresReason(t *testing.T) {
	f := newFixture(t, false)
	sup := f.supervisor(t, "sup@example.com")
	sub := f.submitter(t, "sub@example.com", sup.ID)
	task := f.task(t)
	s1 := f.submit(t, sub.ID, task.ID, "hours")

	_, err := f.svc.RecordDecision(context.Background(), sup.ID, s1.ID, models.StatusRejected, "")
	if !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("got %v, want invalid argument", err)
	}
}

func TestApprovalClearsStaleReason(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	sup := f.supervisor(t, "sup@example.com")
	sub := f.submitter(t, "sub@example.com", sup.ID)
	task := f.task(t)
	s1 := f.submit(t, sub.ID, task.ID, "hours")

	if _, err := f.svc.RecordDecision(ctx, sup.ID, s1.ID, models.StatusRejected, "wrong week"); err != nil {
		t.Fatal(err)
	}
	a, err := f.svc.RecordDecision(ctx, sup.ID, s1.ID, models.StatusApproved, "wrong week")
	if err != nil {
		t.Fatal(err)
	}
	if a.RejectionReason != "" {
		t.Fatalf("reason = %q, should be cleared on approval", a.RejectionReason)
	}
}

func TestUnassignedSupervisorForbidden(t *testing.T) {
	f := newFixture(t, false)
	assigned := f.supervisor(t, "assigned@example.com")
	other := f.supervisor(t, "other@example.com")
	sub := f.submitter(t, "sub@example.com", assigned.ID)
	task := f.task(t)
	s1 := f.submit(t, sub.ID, task.ID, "hours")

	_, err := f.svc.RecordDecision(context.Background(), other.ID, s1.ID, models.StatusApproved, "")
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("got %v, want forbidden for an unassigned supervisor", err)
	}
}

func TestUnsupervisedSubmissionPolicy(t *testing.T) {
	t.Run("stays pending", func(t *testing.T) {
		f := newFixture(t, false)
		sub := f.submitter(t, "sub@example.com")
		task := f.task(t)
		s1 := f.submit(t, sub.ID, task.ID, "hours")

		overall, err := f.svc.OverallStatus(context.Background(), s1.ID)
		if err != nil {
			t.Fatal(err)
		}
		if overall != models.StatusPending {
			t.Fatalf("overall = %s, want pending without supervisors", overall)
		}
	})

	t.Run("resolves approved", func(t *testing.T) {
		f := newFixture(t, true)
		sub := f.submitter(t, "sub@example.com")
		task := f.task(t)
		s1 := f.submit(t, sub.ID, task.ID, "hours")

		overall, err := f.svc.OverallStatus(context.Background(), s1.ID)
		if err != nil {
			t.Fatal(err)
		}
		if overall != models.StatusApproved {
			t.Fatalf("overall = %s, want approved under the relaxed policy", overall)
		}
	})
}

func TestListForRolePrecedence(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	s1 := f.supervisor(t, "s1@example.com")
	s2 := f.supervisor(t, "s2@example.com")
	subA := f.submitter(t, "a@example.com", s1.ID)
	subB := f.submitter(t, "b@example.com", s1.ID, s2.ID)
	task := f.task(t)

	f.submit(t, subA.ID, task.ID, "a hours")
	sb := f.submit(t, subB.ID, task.ID, "b hours")
	if _, err := f.svc.RecordDecision(ctx, s1.ID, sb.ID, models.StatusApproved, ""); err != nil {
		t.Fatal(err)
	}

	ownerView, err := f.svc.ListFor(ctx, f.owner.ID, task.ID, f.c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ownerView.Role != models.RoleOwner || len(ownerView.Items) != 2 {
		t.Fatalf("owner view = %+v, want both submissions", ownerView)
	}
	for _, item := range ownerView.Items {
		if item.Submitter.ID == subB.ID {
			if item.TotalSupervisors != 2 || item.ApprovedCount != 1 {
				t.Fatalf("item = %+v, want 1 of 2 approvals", item)
			}
			if item.OverallStatus != models.StatusPending {
				t.Fatalf("overall = %s, want pending", item.OverallStatus)
			}
		}
	}

	supView, err := f.svc.ListFor(ctx, s2.ID, task.ID, f.c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if supView.Role != models.RoleSupervisor || len(supView.Supervised) != 1 {
		t.Fatalf("supervisor view = %+v, want only their supervisee", supView)
	}
	item := supView.Supervised[0]
	if item.Submitter.ID != subB.ID {
		t.Fatalf("supervised submitter = %d, want %d", item.Submitter.ID, subB.ID)
	}
	if item.Status != models.StatusPending {
		t.Fatalf("own decision = %s, want pending (the other supervisor approved)", item.Status)
	}
	if !item.RequiresMultipleApprovals {
		t.Fatal("two assigned supervisors should flag multiple approvals")
	}

	subView, err := f.svc.ListFor(ctx, subA.ID, task.ID, f.c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if subView.Role != models.RoleSubmitter || subView.Mine == nil {
		t.Fatalf("submitter view = %+v, want own latest submission", subView)
	}

	outsider := f.user(t, "outsider@example.com")
	if _, err := f.svc.ListFor(ctx, outsider.ID, task.ID, f.c.ID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("got %v, want forbidden", err)
	}
}

func TestSubmitterSeesFirstRejectionReason(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	sup := f.supervisor(t, "sup@example.com")
	sub := f.submitter(t, "sub@example.com", sup.ID)
	task := f.task(t)
	s1 := f.submit(t, sub.ID, task.ID, "hours")

	if _, err := f.svc.RecordDecision(ctx, sup.ID, s1.ID, models.StatusRejected, "missing totals"); err != nil {
		t.Fatal(err)
	}

	view, err := f.svc.ListFor(ctx, sub.ID, task.ID, f.c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if view.Mine == nil || view.Mine.Status != models.StatusRejected {
		t.Fatalf("view = %+v, want rejected", view.Mine)
	}
	if view.Mine.RejectionReason != "missing totals" {
		t.Fatalf("reason = %q", view.Mine.RejectionReason)
	}
}

func TestBundleApproved(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	sup := f.supervisor(t, "sup@example.com")
	subA := f.submitter(t, "a@example.com", sup.ID)
	subB := f.submitter(t, "b@example.com", sup.ID)
	task := f.task(t)

	sa := f.submit(t, subA.ID, task.ID, "a hours")
	f.submit(t, subB.ID, task.ID, "b hours") // stays pending

	if _, err := f.svc.RecordDecision(ctx, sup.ID, sa.ID, models.StatusApproved, ""); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	count, err := f.svc.BundleApproved(ctx, f.owner.ID, task.ID, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("bundled %d files, want only the approved one", count)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 1 {
		t.Fatalf("zip entries = %d, want 1", len(zr.File))
	}
	if !strings.Contains(zr.File[0].Name, "a_timesheet") {
		t.Fatalf("entry name = %q, want the submitter's name in it", zr.File[0].Name)
	}

	if _, err := f.svc.BundleApproved(ctx, subA.ID, task.ID, io.Discard); !apperr.IsKind(err, apperr.KindPermissionDenied) {
		t.Fatalf("got %v, want permission denied for non-owner", err)
	}
}

func TestBundleApprovedEmpty(t *testing.T) {
	f := newFixture(t, false)
	task := f.task(t)

	_, err := f.svc.BundleApproved(context.Background(), f.owner.ID, task.ID, io.Discard)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("got %v, want not found with nothing approved", err)
	}
}

func TestBundleApprovedWritesNothingOnError(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	sup := f.supervisor(t, "sup@example.com")
	subA := f.submitter(t, "a@example.com", sup.ID)
	task := f.task(t)

	sa := f.submit(t, subA.ID, task.ID, "a hours")
	if _, err := f.svc.RecordDecision(ctx, sup.ID, sa.ID, models.StatusApproved, ""); err != nil {
		t.Fatal(err)
	}

	// Drop the stored file so every approved row is skipped. The writer
	// must stay untouched: a later error response cannot trail zip bytes.
	for ref := range f.store.files {
		delete(f.store.files, ref)
	}

	var buf bytes.Buffer
	_, err := f.svc.BundleApproved(ctx, f.owner.ID, task.ID, &buf)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("got %v, want not found with every file missing", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("writer got %d bytes alongside the error, want none", buf.Len())
	}
}

func TestGetSubmissionUnknownNotFound(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.GetSubmission(context.Background(), f.owner.ID, 999)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestDownloadName(t *testing.T) {
	sub := &models.Submission{
		FileName:  "raw upload.xlsx",
		Submitter: &models.User{Name: "Ada Lovelace"},
	}
	if got := DownloadName(sub); got != "Ada_Lovelace_timesheet.xlsx" {
		t.Fatalf("DownloadName = %q", got)
	}

	noExt := &models.Submission{FileName: "scan", Submitter: &models.User{Name: "Bob"}}
	if got := DownloadName(noExt); got != "Bob_timesheet.pdf" {
		t.Fatalf("DownloadName = %q, want pdf fallback", got)
	}
}
