package user

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	repository.UserRepository
	findFn   func(ctx context.Context, uid string) (*model.User, error)
	updateFn func(ctx context.Context, uid string, name, photoURL *string) (*model.User, error)
	deleteFn func(ctx context.Context, uid string) (bool, error)
}

func (m *mockUserRepo) FindByFirebaseUID(ctx context.Context, uid string) (*model.User, error) {
	return m.findFn(ctx, uid)
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, uid string, name, photoURL *string) (*model.User, error) {
	return m.updateFn(ctx, uid, name, photoURL)
}

func (m *mockUserRepo) DeleteByFirebaseUID(ctx context.Context, uid string) (bool, error) {
	return m.deleteFn(ctx, uid)
}

type mockStubRepo struct {
	repository.UserStubRepository
	deleteFn func(ctx context.Context, uid string) (bool, error)
}

func (m *mockStubRepo) Delete(ctx context.Context, uid string) (bool, error) {
	return m.deleteFn(ctx, uid)
}

type mockJournalRepo struct {
	repository.JournalRepository
	journals []*model.Journal
}

func (m *mockJournalRepo) ListByUser(context.Context, string) ([]*model.Journal, error) {
	return m.journals, nil
}

type mockSessionRepo struct {
	repository.ChatSessionRepository
	sessions   []*model.ChatSession
	messages   map[string][]*model.Message
	messageErr error
}

func (m *mockSessionRepo) ListByUser(context.Context, string) ([]*model.ChatSession, error) {
	return m.sessions, nil
}

func (m *mockSessionRepo) ListMessages(_ context.Context, id string) ([]*model.Message, error) {
	return m.messages[id], m.messageErr
}

type mockBookmarkRepo struct {
	repository.BookmarkRepository
}

func (m *mockBookmarkRepo) ListByUser(context.Context, string) ([]*model.Bookmark, error) {
	return nil, nil
}

type fixture struct {
	users    *mockUserRepo
	stubs    *mockStubRepo
	journals *mockJournalRepo
	sessions *mockSessionRepo
	logs     *bytes.Buffer
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		users: &mockUserRepo{
			findFn: func(_ context.Context, uid string) (*model.User, error) {
				return &model.User{FirebaseUID: uid, Email: "a@example.com"}, nil
			},
			deleteFn: func(context.Context, string) (bool, error) { return true, nil },
		},
		stubs:    &mockStubRepo{deleteFn: func(context.Context, string) (bool, error) { return true, nil }},
		journals: &mockJournalRepo{},
		sessions: &mockSessionRepo{messages: map[string][]*model.Message{}},
		logs:     &bytes.Buffer{},
	}
	f.svc = NewService(f.users, f.stubs, f.journals, f.sessions, &mockBookmarkRepo{}, slog.New(slog.NewJSONHandler(f.logs, nil)))
	return f
}

// --- テスト ---

func TestService_UpdateProfile(t *testing.T) {
	f := newFixture()
	var gotName *string
	f.users.updateFn = func(_ context.Context, uid string, name, photo *string) (*model.User, error) {
		gotName = name
		return &model.User{FirebaseUID: uid, Name: name, PhotoURL: photo}, nil
	}

	user, err := f.svc.UpdateProfile(context.Background(), "uid-1", "  Ada  ", nil)
	if err != nil {
		t.Fatalf("UpdateProfile がエラーを返した: %v", err)
	}
	if gotName == nil || *gotName != "Ada" {
		t.Errorf("name = %v, want Ada", gotName)
	}
	if user.PhotoURL != nil {
		t.Error("photo URL should be left untouched when nil")
	}
}

func TestService_UpdateProfile_Errors(t *testing.T) {
	f := newFixture()
	f.users.updateFn = func(context.Context, string, *string, *string) (*model.User, error) { return nil, nil }

	var ve *model.ValidationError
	if _, err := f.svc.UpdateProfile(context.Background(), "", "Ada", nil); !errors.As(err, &ve) {
		t.Errorf("missing uid: error = %v, want ValidationError", err)
	}
	if _, err := f.svc.UpdateProfile(context.Background(), "uid-1", " ", nil); !errors.As(err, &ve) {
		t.Errorf("missing name: error = %v, want ValidationError", err)
	}

	var nf *model.NotFoundError
	if _, err := f.svc.UpdateProfile(context.Background(), "uid-1", "Ada", nil); !errors.As(err, &nf) {
		t.Errorf("unknown user: error = %v, want NotFoundError", err)
	}
}

func TestService_DeleteAccount_DeletesSecondaryThenPrimary(t *testing.T) {
	f := newFixture()
	var order []string
	f.stubs.deleteFn = func(context.Context, string) (bool, error) {
		order = append(order, model.StoreSecondary)
		return true, nil
	}
	f.users.deleteFn = func(context.Context, string) (bool, error) {
		order = append(order, model.StorePrimary)
		return true, nil
	}

	report, err := f.svc.DeleteAccount(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("DeleteAccount がエラーを返した: %v", err)
	}
	if !report.Primary || !report.Secondary {
		t.Errorf("report = %+v, want both deleted", report)
	}
	if len(order) != 2 || order[0] != model.StoreSecondary || order[1] != model.StorePrimary {
		t.Errorf("削除順序 = %v, want [secondary primary]", order)
	}
}

func TestService_DeleteAccount_SecondaryFailure_KeepsPrimary(t *testing.T) {
	f := newFixture()
	primaryCalled := false
	f.stubs.deleteFn = func(context.Context, string) (bool, error) { return false, errors.New("timeout") }
	f.users.deleteFn = func(context.Context, string) (bool, error) {
		primaryCalled = true
		return true, nil
	}

	_, err := f.svc.DeleteAccount(context.Background(), "uid-1")
	var pe *model.PersistenceError
	if !errors.As(err, &pe) || pe.Store != model.StoreSecondary {
		t.Fatalf("error = %v, want secondary PersistenceError", err)
	}
	if primaryCalled {
		t.Error("primary store must not be touched after secondary failure")
	}
}

func TestService_DeleteAccount_PrimaryFailure_ReportsPartialDeletion(t *testing.T) {
	f := newFixture()
	f.users.deleteFn = func(context.Context, string) (bool, error) { return false, errors.New("conn reset") }

	report, err := f.svc.DeleteAccount(context.Background(), "uid-1")
	var pe *model.PersistenceError
	if !errors.As(err, &pe) || pe.Store != model.StorePrimary {
		t.Fatalf("error = %v, want primary PersistenceError", err)
	}
	if !report.Secondary || report.Primary {
		t.Errorf("report = %+v, want secondary only", report)
	}
	if !bytes.Contains(f.logs.Bytes(), []byte(`"store":"primary"`)) {
		t.Errorf("log should name the failing store: %s", f.logs.String())
	}
}

func TestService_DeleteAccount_UnknownUser_ReturnsNotFound(t *testing.T) {
	f := newFixture()
	f.stubs.deleteFn = func(context.Context, string) (bool, error) { return false, nil }
	f.users.deleteFn = func(context.Context, string) (bool, error) { return false, nil }

	_, err := f.svc.DeleteAccount(context.Background(), "uid-1")
	var nf *model.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}

func TestService_ExportData(t *testing.T) {
	f := newFixture()
	f.journals.journals = []*model.Journal{{ID: "j1", Title: "day"}}
	f.sessions.sessions = []*model.ChatSession{{ID: "s1"}, {ID: "s2"}}
	f.sessions.messages["s1"] = []*model.Message{{ID: "m1", Content: "hi"}}

	export, err := f.svc.ExportData(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("ExportData がエラーを返した: %v", err)
	}
	if export.Profile.FirebaseUID != "uid-1" {
		t.Errorf("Profile = %+v", export.Profile)
	}
	if len(export.Journals) != 1 || len(export.Sessions) != 2 {
		t.Errorf("journals=%d sessions=%d", len(export.Journals), len(export.Sessions))
	}
	if len(export.Sessions[0].Messages) != 1 || export.Sessions[1].Messages == nil {
		t.Errorf("sessions = %+v", export.Sessions)
	}
	if export.Bookmarks == nil {
		t.Error("Bookmarks must not be nil")
	}
}

func TestService_ExportData_Failures(t *testing.T) {
	f := newFixture()
	f.users.findFn = func(context.Context, string) (*model.User, error) { return nil, nil }
	var nf *model.NotFoundError
	if _, err := f.svc.ExportData(context.Background(), "uid-1"); !errors.As(err, &nf) {
		t.Errorf("unknown user: error = %v, want NotFoundError", err)
	}

	f = newFixture()
	f.sessions.sessions = []*model.ChatSession{{ID: "s1"}}
	f.sessions.messageErr = errors.New("boom")
	var pe *model.PersistenceError
	if _, err := f.svc.ExportData(context.Background(), "uid-1"); !errors.As(err, &pe) || pe.Store != model.StoreSecondary {
		t.Errorf("message failure: error = %v, want secondary PersistenceError", err)
	}
}
