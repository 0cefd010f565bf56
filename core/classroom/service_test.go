package classroom

import (
	"context"
	"io"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/document"
	"github.com/trezcool/classdrive/core/preview"
	emailsvc "github.com/trezcool/classdrive/services/email"
	"github.com/trezcool/classdrive/storage/objectstore/memstore"
	"github.com/trezcool/classdrive/testutil"
)

type fixture struct {
	svc     *Service
	store   *document.Store
	mem     *memstore.Store
	objects *testutil.FaultyStore
	mailer  *emailsvc.ConsoleServiceMock
	logger  *testutil.Logger
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conf := &core.Config{
		AppName:      "ClassDrive",
		NotifyEmails: []mail.Address{{Name: "Teacher", Address: "teacher@classdrive.test"}},
	}
	f := &fixture{mem: memstore.New(), logger: &testutil.Logger{}}
	f.objects = testutil.NewFaultyStore(f.mem)
	f.store = testutil.NewDocumentStore(t, f.objects, f.logger)
	f.mailer = emailsvc.NewConsoleServiceMock(conf, f.logger)
	f.svc = NewService(f.store, f.objects, f.mailer, f.logger, conf)
	testutil.SeedAccount(t, f.store, core.RoleStudent, "amy", "Amy Pond", "x")
	testutil.SeedAccount(t, f.store, core.RoleStudent, "rory", "Rory Williams", "x")
	return f
}

func (f *fixture) rootID(t *testing.T) string {
	id, err := f.store.RootID(context.Background())
	require.NoError(t, err)
	return id
}

func (f *fixture) classFolder(t *testing.T, class string) string {
	return testutil.Snapshot(t, f.store).Classes[class].RemoteFolderID
}

func blob(name, content string) core.Blob {
	return core.Blob{Name: name, Content: strings.NewReader(content)}
}

func upload(name, content string) UploadedBlob {
	return UploadedBlob{Name: name, Content: strings.NewReader(content)}
}

// failingUploads fails the uploads of blobs named failName.
type failingUploads struct {
	core.ObjectStore
	failName string
}

func (s failingUploads) UploadBlob(ctx context.Context, r io.Reader, name, parentID string) (core.Object, error) {
	if name == s.failName {
		return core.Object{}, core.NewRemoteError("upload", errors.New("quota exceeded"))
	}
	return s.ObjectStore.UploadBlob(ctx, r, name, parentID)
}

func TestService_CreateClass(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	require.NoError(t, f.svc.CreateClass(ctx, " 10A1 "))
	assert.Contains(t, f.mem.Children(f.rootID(t)), "10A1")
	assert.NotEmpty(t, f.classFolder(t, "10A1"))

	t.Run("duplicate", func(t *testing.T) {
		before := testutil.Snapshot(t, f.store)
		objects := f.mem.Len()
		err := f.svc.CreateClass(ctx, "10A1")
		assert.True(t, errors.Is(err, core.ErrDuplicateName), "err = %v", err)
		assert.Equal(t, before, testutil.Snapshot(t, f.store))
		assert.Equal(t, objects, f.mem.Len())
	})

	t.Run("blank name", func(t *testing.T) {
		var vErr *core.ValidationError
		assert.True(t, errors.As(f.svc.CreateClass(ctx, "  "), &vErr))
	})

	t.Run("folder creation fails", func(t *testing.T) {
		f.objects.Fail(testutil.OpCreateFolder)
		defer f.objects.Heal()
		err := f.svc.CreateClass(ctx, "10A2")
		assert.True(t, errors.Is(err, core.ErrRemoteUnavailable), "err = %v", err)
		assert.NotContains(t, testutil.Snapshot(t, f.store).Classes, "10A2")
	})

	t.Run("save fails", func(t *testing.T) {
		f.objects.Fail(testutil.OpUpdate)
		defer f.objects.Heal()
		err := f.svc.CreateClass(ctx, "10A3")
		assert.True(t, errors.Is(err, core.ErrRemoteUnavailable), "err = %v", err)
		assert.NotContains(t, testutil.Snapshot(t, f.store).Classes, "10A3")
		assert.NotContains(t, f.mem.Children(f.rootID(t)), "10A3", "orphan folder is discarded")
	})

	classes, err := f.svc.ListClasses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ClassSummary{{Name: "10A1"}}, classes)
}

func TestService_CreateAssignment(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	require.NoError(t, f.svc.CreateClass(ctx, "ClassA"))
	classFolder := f.classFolder(t, "ClassA")

	a, err := f.svc.CreateAssignment(ctx, "ClassA", "HW1", upload("C:\\Users\\me\\hw1.pdf", "%PDF"))
	require.NoError(t, err)
	assert.Equal(t, []string{"HW1"}, f.mem.Children(classFolder))
	assert.Equal(t, []string{GradedFolder, "hw1.pdf", SubmissionsFolder}, f.mem.Children(a.RemoteFolderID))
	assert.Equal(t, document.Prompt{RemoteFileID: a.Prompt.RemoteFileID, DisplayName: "hw1.pdf"}, a.Prompt)
	assert.True(t, f.mem.IsPublic(a.Prompt.RemoteFileID))
	assert.NotEmpty(t, a.SubmissionsFolderID)
	assert.NotEmpty(t, a.GradedFolderID)
	assert.Equal(t, a, testutil.Snapshot(t, f.store).Classes["ClassA"].Assignments["HW1"])

	t.Run("duplicate", func(t *testing.T) {
		before := testutil.Snapshot(t, f.store)
		_, err := f.svc.CreateAssignment(ctx, "ClassA", "HW1", upload("hw1-v2.pdf", "%PDF"))
		assert.True(t, errors.Is(err, core.ErrDuplicateName), "err = %v", err)
		assert.Equal(t, before, testutil.Snapshot(t, f.store))
		assert.Len(t, testutil.Snapshot(t, f.store).Classes["ClassA"].Assignments, 1)
	})

	t.Run("external link", func(t *testing.T) {
		link := "https://docs.google.com/presentation/d/XYZ/edit"
		a, err := f.svc.CreateAssignment(ctx, "ClassA", "HW2", ExternalLink{URL: " " + link})
		require.NoError(t, err)
		assert.True(t, a.Prompt.IsExternalLink)
		assert.Equal(t, "HW2"+LinkExt, a.Prompt.DisplayName)

		data, err := f.mem.DownloadBlob(ctx, a.Prompt.RemoteFileID)
		require.NoError(t, err)
		assert.Equal(t, link, string(data))

		target, err := f.svc.PromptPreview(ctx, "ClassA", "HW2")
		require.NoError(t, err)
		assert.Equal(t, preview.KindLink, target.Kind)
		assert.Equal(t, "https://docs.google.com/presentation/d/XYZ/preview", target.URL)
	})

	t.Run("unknown class", func(t *testing.T) {
		_, err := f.svc.CreateAssignment(ctx, "ClassZ", "HW1", upload("hw1.pdf", "%PDF"))
		assert.True(t, errors.Is(err, core.ErrNotFound), "err = %v", err)
	})

	t.Run("invalid prompts", func(t *testing.T) {
		sources := []PromptSource{nil, ExternalLink{URL: "  "}, UploadedBlob{Name: "hw.pdf"}, upload("", "x")}
		for _, src := range sources {
			var vErr *core.ValidationError
			_, err := f.svc.CreateAssignment(ctx, "ClassA", "HW3", src)
			assert.True(t, errors.As(err, &vErr), "src = %#v, err = %v", src, err)
		}
	})

	t.Run("upload fails", func(t *testing.T) {
		before := testutil.Snapshot(t, f.store)
		f.objects.Fail(testutil.OpUpload)
		defer f.objects.Heal()
		_, err := f.svc.CreateAssignment(ctx, "ClassA", "HW4", upload("hw4.pdf", "%PDF"))
		assert.True(t, errors.Is(err, core.ErrRemoteUnavailable), "err = %v", err)
		assert.Equal(t, before, testutil.Snapshot(t, f.store))
		assert.NotContains(t, f.mem.Children(classFolder), "HW4", "partial tree is discarded")
	})

	list, err := f.svc.ListAssignments(ctx, "ClassA")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "HW1", list[0].Title)
	assert.Equal(t, "HW2", list[1].Title)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	require.NoError(t, f.svc.CreateClass(ctx, "ClassA"))
	a, err := f.svc.CreateAssignment(ctx, "ClassA", "HW1", upload("hw1.pdf", "%PDF"))
	require.NoError(t, err)

	f.objects.Fail(testutil.OpDelete)
	err = f.svc.DeleteAssignment(ctx, "ClassA", "HW1")
	assert.True(t, errors.Is(err, core.ErrRemoteUnavailable), "err = %v", err)
	assert.Contains(t, testutil.Snapshot(t, f.store).Classes["ClassA"].Assignments, "HW1", "record is kept")
	err = f.svc.DeleteClass(ctx, "ClassA")
	assert.True(t, errors.Is(err, core.ErrRemoteUnavailable), "err = %v", err)
	assert.Contains(t, testutil.Snapshot(t, f.store).Classes, "ClassA", "record is kept")
	f.objects.Heal()

	require.NoError(t, f.svc.DeleteAssignment(ctx, "ClassA", "HW1"))
	assert.NotContains(t, testutil.Snapshot(t, f.store).Classes["ClassA"].Assignments, "HW1")
	_, err = f.mem.DownloadBlob(ctx, a.Prompt.RemoteFileID)
	assert.True(t, errors.Is(err, core.ErrNotFound), "prompt is deleted with its folder")

	err = f.svc.DeleteAssignment(ctx, "ClassA", "HW1")
	assert.True(t, errors.Is(err, core.ErrNotFound), "err = %v", err)

	classFolder := f.classFolder(t, "ClassA")
	require.NoError(t, f.svc.DeleteClass(ctx, "ClassA"))
	assert.NotContains(t, testutil.Snapshot(t, f.store).Classes, "ClassA")
	assert.NotContains(t, f.mem.Children(f.rootID(t)), "ClassA")
	assert.Empty(t, f.mem.Children(classFolder))

	err = f.svc.DeleteClass(ctx, "ClassA")
	assert.True(t, errors.Is(err, core.ErrNotFound), "err = %v", err)
}

func TestService_RecordSubmission(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	require.NoError(t, f.svc.CreateClass(ctx, "ClassA"))
	a, err := f.svc.CreateAssignment(ctx, "ClassA", "HW1", upload("hw1.pdf", "%PDF"))
	require.NoError(t, err)

	now := time.Date(2025, 9, 5, 7, 30, 0, 0, time.UTC)
	NowFunc = func() time.Time { return now }
	defer func() { NowFunc = time.Now }()

	subs, err := f.svc.RecordSubmission(ctx, "ClassA", "HW1", "amy",
		blob("essay.pdf", "one"), blob("notes.txt", "two"), blob("photo.jpg", "three"))
	require.NoError(t, err)
	require.Len(t, subs, 3)
	for i, name := range []string{"amy_essay.pdf", "amy_notes.txt", "amy_photo.jpg"} {
		assert.Equal(t, name, subs[i].DisplayName)
		assert.Equal(t, "amy", subs[i].StudentUsername)
		assert.Equal(t, now, subs[i].SubmittedAt)
	}
	assert.Equal(t, subs, testutil.Snapshot(t, f.store).Classes["ClassA"].Assignments["HW1"].Submissions)
	assert.Equal(t, []string{"amy_essay.pdf", "amy_notes.txt", "amy_photo.jpg"}, f.mem.Children(a.SubmissionsFolderID))

	data, err := f.mem.DownloadBlob(ctx, subs[1].RemoteFileID)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	sent := f.mailer.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "Amy Pond (amy) submitted 3 file(s)")

	t.Run("no files", func(t *testing.T) {
		var vErr *core.ValidationError
		_, err := f.svc.RecordSubmission(ctx, "ClassA", "HW1", "amy")
		assert.True(t, errors.As(err, &vErr), "err = %v", err)
	})

	t.Run("unknown assignment", func(t *testing.T) {
		_, err := f.svc.RecordSubmission(ctx, "ClassA", "HW9", "amy", blob("essay.pdf", "one"))
		assert.True(t, errors.Is(err, core.ErrNotFound), "err = %v", err)
	})

	t.Run("one upload fails", func(t *testing.T) {
		svc := NewService(f.store, failingUploads{ObjectStore: f.mem, failName: "rory_b.txt"}, f.mailer, f.logger, &core.Config{})
		before := testutil.Snapshot(t, f.store)

		_, err := svc.RecordSubmission(ctx, "ClassA", "HW1", "rory", blob("a.txt", "a"), blob("b.txt", "b"), blob("c.txt", "c"))
		assert.True(t, errors.Is(err, core.ErrRemoteUnavailable), "err = %v", err)
		assert.Equal(t, before, testutil.Snapshot(t, f.store))
		for _, name := range f.mem.Children(a.SubmissionsFolderID) {
			assert.False(t, strings.HasPrefix(name, "rory_"), "uploaded blob %q is discarded", name)
		}
	})

	t.Run("save fails", func(t *testing.T) {
		before := testutil.Snapshot(t, f.store)
		f.objects.Fail(testutil.OpUpdate)
		defer f.objects.Heal()

		_, err := f.svc.RecordSubmission(ctx, "ClassA", "HW1", "rory", blob("a.txt", "a"))
		assert.True(t, errors.Is(err, core.ErrRemoteUnavailable), "err = %v", err)
		assert.Equal(t, before, testutil.Snapshot(t, f.store))
		assert.NotContains(t, f.mem.Children(a.SubmissionsFolderID), "rory_a.txt")
	})

	assert.Len(t, f.mailer.SentMessages(), 1, "failed submissions are not notified")
}

func TestService_RecordGradedFile(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	require.NoError(t, f.svc.CreateClass(ctx, "ClassA"))
	a, err := f.svc.CreateAssignment(ctx, "ClassA", "HW1", upload("hw1.pdf", "%PDF"))
	require.NoError(t, err)

	graded, err := f.svc.RecordGradedFile(ctx, "ClassA", "HW1", "amy", blob("essay.pdf", "8/10"))
	require.NoError(t, err)
	require.Len(t, graded, 1)
	assert.Equal(t, "GRADED_amy_essay.pdf", graded[0].DisplayName)
	assert.Equal(t, []string{"GRADED_amy_essay.pdf"}, f.mem.Children(a.GradedFolderID))

	_, err = f.svc.RecordGradedFile(ctx, "ClassA", "HW1", "clara", blob("essay.pdf", "8/10"))
	assert.True(t, errors.Is(err, core.ErrNotFound), "err = %v", err)

	mine, err := f.svc.StudentGradedFiles(ctx, "ClassA", "HW1", "amy")
	require.NoError(t, err)
	assert.Equal(t, graded, mine)
	theirs, err := f.svc.StudentGradedFiles(ctx, "ClassA", "HW1", "rory")
	require.NoError(t, err)
	assert.Empty(t, theirs)

	all, err := f.svc.GradedFiles(ctx, "ClassA", "HW1")
	require.NoError(t, err)
	assert.Equal(t, graded, all)
}

func TestGroupSubmissionsByStudent(t *testing.T) {
	sub := func(student, id string) document.Submission {
		return document.Submission{StudentUsername: student, RemoteFileID: id}
	}
	tests := []struct {
		name string
		subs []document.Submission
		want []StudentSubmissions
	}{
		{name: "none", want: []StudentSubmissions{}},
		{
			name: "interleaved",
			subs: []document.Submission{sub("rory", "1"), sub("amy", "2"), sub("rory", "3"), sub("amy", "4"), sub("rory", "5")},
			want: []StudentSubmissions{
				{Student: "rory", Submissions: []document.Submission{sub("rory", "1"), sub("rory", "3"), sub("rory", "5")}},
				{Student: "amy", Submissions: []document.Submission{sub("amy", "2"), sub("amy", "4")}},
			},
		},
		{
			name: "malformed entries are skipped",
			subs: []document.Submission{sub("", "1"), sub("amy", "2"), sub("", "3")},
			want: []StudentSubmissions{{Student: "amy", Submissions: []document.Submission{sub("amy", "2")}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GroupSubmissionsByStudent(document.Assignment{Submissions: tt.subs})
			assert.Equal(t, tt.want, got)

			var total, valid int
			for _, g := range got {
				total += len(g.Submissions)
			}
			for _, s := range tt.subs {
				if s.StudentUsername != "" {
					valid++
				}
			}
			assert.Equal(t, valid, total)
		})
	}
}

func TestService_Views(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	require.NoError(t, f.svc.CreateClass(ctx, "ClassA"))
	a, err := f.svc.CreateAssignment(ctx, "ClassA", "HW1", upload("hw1.pdf", "%PDF"))
	require.NoError(t, err)
	amySubs, err := f.svc.RecordSubmission(ctx, "ClassA", "HW1", "amy", blob("a.txt", "a"))
	require.NoError(t, err)
	rorySubs, err := f.svc.RecordSubmission(ctx, "ClassA", "HW1", "rory", blob("b.txt", "b"))
	require.NoError(t, err)
	graded, err := f.svc.RecordGradedFile(ctx, "ClassA", "HW1", "amy", blob("a.txt", "A+"))
	require.NoError(t, err)

	groups, err := f.svc.Submissions(ctx, "ClassA", "HW1")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Amy Pond", groups[0].FullName)
	assert.Equal(t, "Rory Williams", groups[1].FullName)

	mine, err := f.svc.StudentSubmissions(ctx, "ClassA", "HW1", "rory")
	require.NoError(t, err)
	assert.Equal(t, rorySubs, mine)

	target, err := f.svc.PromptPreview(ctx, "ClassA", "HW1")
	require.NoError(t, err)
	assert.Equal(t, preview.ForFile(a.Prompt.RemoteFileID, "hw1.pdf"), target)

	teacher := core.Identity{Username: "teacher", Role: core.RoleTeacher}
	amy := core.Identity{Username: "amy", Role: core.RoleStudent}
	rory := core.Identity{Username: "rory", Role: core.RoleStudent}
	rootDoc, err := f.mem.FindByNameAndParent(ctx, "database.json", f.rootID(t))
	require.NoError(t, err)

	tests := []struct {
		name     string
		id       core.Identity
		fileID   string
		wantName string
		wantErr  error
	}{
		{name: "prompt for student", id: rory, fileID: a.Prompt.RemoteFileID, wantName: "hw1.pdf"},
		{name: "own submission", id: amy, fileID: amySubs[0].RemoteFileID, wantName: "amy_a.txt"},
		{name: "other's submission", id: rory, fileID: amySubs[0].RemoteFileID, wantErr: core.ErrForbidden},
		{name: "submission for teacher", id: teacher, fileID: rorySubs[0].RemoteFileID, wantName: "rory_b.txt"},
		{name: "own graded file", id: amy, fileID: graded[0].RemoteFileID, wantName: "GRADED_amy_a.txt"},
		{name: "other's graded file", id: rory, fileID: graded[0].RemoteFileID, wantErr: core.ErrForbidden},
		{name: "unreferenced file", id: teacher, fileID: rootDoc, wantErr: core.ErrNotFound},
		{name: "unknown file", id: teacher, fileID: "nope", wantErr: core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, data, err := f.svc.OpenFile(ctx, tt.id, tt.fileID)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
				assert.Nil(t, data)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, ref.Name)
			assert.NotEmpty(t, data)
		})
	}
}
