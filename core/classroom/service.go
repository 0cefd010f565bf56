// Package classroom manages classes, assignments, submissions and graded files,
// keeping the document records and the remote folder tree in step.
package classroom

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/document"
	"github.com/trezcool/classdrive/core/preview"
)

const submissionTemplate = "submission_received"

var (
	errInvalidPrompt = errors.New("invalid prompt")
	errNoFiles       = errors.New("no files")
)

type Service struct {
	store   *document.Store
	objects core.ObjectStore
	mailer  core.EmailService
	logger  core.Logger
	notify  []mail.Address
}

// NewService builds a Service. objects is used for remote folders and blobs; pass the cached store
// so that prompt links and downloads are served from the cache.
func NewService(store *document.Store, objects core.ObjectStore, mailer core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		store:   store,
		objects: objects,
		mailer:  mailer,
		logger:  logger,
		notify:  conf.NotifyEmails,
	}
}

func classNotFound(name string) error {
	return errors.Wrapf(core.ErrNotFound, "class %q", name)
}

func assignmentNotFound(class, title string) error {
	return errors.Wrapf(core.ErrNotFound, "assignment %q in class %q", title, class)
}

func lookup(doc *document.Document, class, title string) (document.Class, document.Assignment, error) {
	cls, ok := doc.Classes[class]
	if !ok {
		return document.Class{}, document.Assignment{}, classNotFound(class)
	}
	a, ok := cls.Assignments[title]
	if !ok {
		return document.Class{}, document.Assignment{}, assignmentNotFound(class, title)
	}
	return cls, a, nil
}

// baseName strips any client path from an uploaded file name.
func baseName(name string) string {
	name = core.CleanString(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// discard deletes remote objects left behind by a failed operation. Failures are only logged.
func (svc *Service) discard(ctx context.Context, ids ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		if err := svc.objects.DeleteByID(ctx, id); err != nil && !errors.Is(err, core.ErrNotFound) {
			svc.logger.Warn(fmt.Sprintf("discarding remote object %s", id), err)
		}
	}
}

// ListClasses returns all classes sorted by name.
func (svc *Service) ListClasses(ctx context.Context) ([]ClassSummary, error) {
	var classes []ClassSummary
	err := svc.store.View(ctx, func(doc *document.Document) error {
		classes = make([]ClassSummary, 0, len(doc.Classes))
		for name, cls := range doc.Classes {
			classes = append(classes, ClassSummary{Name: name, Assignments: len(cls.Assignments)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

// CreateClass creates the class folder under the root folder and records it.
func (svc *Service) CreateClass(ctx context.Context, name string) error {
	name = core.CleanString(name)
	if name == "" {
		return core.NewValidationError(errors.New("invalid class"), core.FieldError{Field: "name", Error: "name is required"})
	}

	err := svc.store.View(ctx, func(doc *document.Document) error {
		if _, ok := doc.Classes[name]; ok {
			return errors.Wrapf(core.ErrDuplicateName, "class %q", name)
		}
		return nil
	})
	if err != nil {
		return err
	}

	rootID, err := svc.store.RootID(ctx)
	if err != nil {
		return err
	}
	folderID, err := svc.objects.CreateFolder(ctx, name, rootID)
	if err != nil {
		return errors.Wrap(err, "creating class folder")
	}

	err = svc.store.Update(ctx, func(doc *document.Document) error {
		// created concurrently while the folder was being made
		if _, ok := doc.Classes[name]; ok {
			return errors.Wrapf(core.ErrDuplicateName, "class %q", name)
		}
		doc.Classes[name] = document.Class{
			RemoteFolderID: folderID,
			Assignments:    make(map[string]document.Assignment),
		}
		return nil
	})
	if err != nil {
		svc.discard(ctx, folderID)
	}
	return err
}

// DeleteClass deletes the class folder with all its contents, then the class record.
// The record is kept when the remote deletion fails.
func (svc *Service) DeleteClass(ctx context.Context, name string) error {
	var folderID string
	err := svc.store.View(ctx, func(doc *document.Document) error {
		cls, ok := doc.Classes[name]
		if !ok {
			return classNotFound(name)
		}
		folderID = cls.RemoteFolderID
		return nil
	})
	if err != nil {
		return err
	}

	if err = svc.objects.DeleteByID(ctx, folderID); err != nil && !errors.Is(err, core.ErrNotFound) {
		return errors.Wrap(err, "deleting class folder")
	}
	return svc.store.Update(ctx, func(doc *document.Document) error {
		delete(doc.Classes, name)
		return nil
	})
}

// ListAssignments returns the assignments of a class sorted by title.
func (svc *Service) ListAssignments(ctx context.Context, class string) ([]AssignmentSummary, error) {
	var assignments []AssignmentSummary
	err := svc.store.View(ctx, func(doc *document.Document) error {
		cls, ok := doc.Classes[class]
		if !ok {
			return classNotFound(class)
		}
		assignments = make([]AssignmentSummary, 0, len(cls.Assignments))
		for title, a := range cls.Assignments {
			assignments = append(assignments, AssignmentSummary{
				Title:       title,
				Prompt:      a.Prompt,
				Submissions: len(a.Submissions),
				GradedFiles: len(a.GradedFiles),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].Title < assignments[j].Title })
	return assignments, nil
}

// GetAssignment returns a copy of the assignment record.
func (svc *Service) GetAssignment(ctx context.Context, class, title string) (document.Assignment, error) {
	var a document.Assignment
	err := svc.store.View(ctx, func(doc *document.Document) error {
		_, found, err := lookup(doc, class, title)
		a = found.Clone()
		return err
	})
	return a, err
}

func promptBlob(title string, src PromptSource) (core.Blob, bool, error) {
	invalid := func(msg string) error {
		return core.NewValidationError(errInvalidPrompt, core.FieldError{Field: "file", Error: msg})
	}
	switch s := src.(type) {
	case UploadedBlob:
		name := baseName(s.Name)
		if name == "" || s.Content == nil {
			return core.Blob{}, false, invalid("a named file is required")
		}
		return core.Blob{Name: name, Content: s.Content}, false, nil
	case ExternalLink:
		link := core.CleanString(s.URL)
		if link == "" {
			return core.Blob{}, false, invalid("link is required")
		}
		return core.Blob{Name: title + LinkExt, Content: strings.NewReader(link)}, true, nil
	}
	return core.Blob{}, false, invalid("a file or a link is required")
}

// CreateAssignment creates the assignment folder, its submissions and graded sub-folders,
// uploads the prompt and records the assignment.
// Remote objects are cleaned up when any step fails.
func (svc *Service) CreateAssignment(ctx context.Context, class, title string, src PromptSource) (document.Assignment, error) {
	title = core.CleanString(title)
	if title == "" {
		return document.Assignment{}, core.NewValidationError(errors.New("invalid assignment"), core.FieldError{Field: "title", Error: "title is required"})
	}
	prompt, isLink, err := promptBlob(title, src)
	if err != nil {
		return document.Assignment{}, err
	}

	var classFolderID string
	err = svc.store.View(ctx, func(doc *document.Document) error {
		cls, ok := doc.Classes[class]
		if !ok {
			return classNotFound(class)
		}
		if _, ok = cls.Assignments[title]; ok {
			return errors.Wrapf(core.ErrDuplicateName, "assignment %q in class %q", title, class)
		}
		classFolderID = cls.RemoteFolderID
		return nil
	})
	if err != nil {
		return document.Assignment{}, err
	}

	a, err := svc.createAssignmentTree(ctx, classFolderID, title, prompt)
	if err != nil {
		return document.Assignment{}, err
	}
	a.Prompt.IsExternalLink = isLink

	err = svc.store.Update(ctx, func(doc *document.Document) error {
		cls, ok := doc.Classes[class]
		if !ok {
			return classNotFound(class)
		}
		if _, ok = cls.Assignments[title]; ok {
			return errors.Wrapf(core.ErrDuplicateName, "assignment %q in class %q", title, class)
		}
		cls.Assignments[title] = a
		return nil
	})
	if err != nil {
		svc.discard(ctx, a.RemoteFolderID)
		return document.Assignment{}, err
	}
	return a.Clone(), nil
}

func (svc *Service) createAssignmentTree(ctx context.Context, parentID, title string, prompt core.Blob) (document.Assignment, error) {
	folderID, err := svc.objects.CreateFolder(ctx, title, parentID)
	if err != nil {
		return document.Assignment{}, errors.Wrap(err, "creating assignment folder")
	}
	fail := func(err error, msg string) (document.Assignment, error) {
		svc.discard(ctx, folderID)
		return document.Assignment{}, errors.Wrap(err, msg)
	}

	a := document.Assignment{
		RemoteFolderID: folderID,
		Submissions:    make([]document.Submission, 0),
		GradedFiles:    make([]document.GradedFile, 0),
	}
	if a.SubmissionsFolderID, err = svc.objects.CreateFolder(ctx, SubmissionsFolder, folderID); err != nil {
		return fail(err, "creating submissions folder")
	}
	if a.GradedFolderID, err = svc.objects.CreateFolder(ctx, GradedFolder, folderID); err != nil {
		return fail(err, "creating graded folder")
	}
	obj, err := svc.objects.UploadBlob(ctx, prompt.Content, prompt.Name, folderID)
	if err != nil {
		return fail(err, "uploading prompt")
	}
	if err = svc.objects.SetPublicReadable(ctx, obj.ID); err != nil {
		svc.logger.Debug("sharing prompt", err)
	}
	a.Prompt = document.Prompt{RemoteFileID: obj.ID, DisplayName: prompt.Name}
	return a, nil
}

// DeleteAssignment deletes the assignment folder with all its contents, then the assignment record.
// The record is kept when the remote deletion fails.
func (svc *Service) DeleteAssignment(ctx context.Context, class, title string) error {
	var folderID string
	err := svc.store.View(ctx, func(doc *document.Document) error {
		_, a, err := lookup(doc, class, title)
		folderID = a.RemoteFolderID
		return err
	})
	if err != nil {
		return err
	}

	if err = svc.objects.DeleteByID(ctx, folderID); err != nil && !errors.Is(err, core.ErrNotFound) {
		return errors.Wrap(err, "deleting assignment folder")
	}
	return svc.store.Update(ctx, func(doc *document.Document) error {
		if cls, ok := doc.Classes[class]; ok {
			delete(cls.Assignments, title)
		}
		return nil
	})
}

// storedNames checks the uploaded files and returns the names they are stored under.
func storedNames(prefix string, files []core.Blob) ([]string, error) {
	if len(files) == 0 {
		return nil, core.NewValidationError(errNoFiles, core.FieldError{Field: "files", Error: "at least one file is required"})
	}
	names := make([]string, len(files))
	for i, f := range files {
		name := baseName(f.Name)
		if name == "" || f.Content == nil {
			return nil, core.NewValidationError(errNoFiles, core.FieldError{Field: "files", Error: "every file must be named"})
		}
		names[i] = prefix + name
	}
	return names, nil
}

// uploadAll uploads files concurrently into folderID.
// When one upload fails the others are deleted and no object is returned.
func (svc *Service) uploadAll(ctx context.Context, folderID string, names []string, files []core.Blob) ([]core.Object, error) {
	objs := make([]core.Object, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i := range files {
		g.Go(func() error {
			obj, err := svc.objects.UploadBlob(gctx, files[i].Content, names[i], folderID)
			if err != nil {
				return errors.Wrapf(err, "uploading %q", names[i])
			}
			objs[i] = obj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		svc.discard(ctx, objectIDs(objs)...)
		return nil, err
	}
	return objs, nil
}

func objectIDs(objs []core.Object) []string {
	ids := make([]string, 0, len(objs))
	for _, obj := range objs {
		if obj.ID != "" {
			ids = append(ids, obj.ID)
		}
	}
	return ids
}

// RecordSubmission stores the files of a student in the submissions folder and records one submission per file,
// in argument order. Either all files are recorded or none.
func (svc *Service) RecordSubmission(ctx context.Context, class, title, student string, files ...core.Blob) ([]document.Submission, error) {
	names, err := storedNames(student+"_", files)
	if err != nil {
		return nil, err
	}

	var folderID, fullName string
	err = svc.store.View(ctx, func(doc *document.Document) error {
		_, a, err := lookup(doc, class, title)
		folderID = a.SubmissionsFolderID
		if acc, ok := doc.LookupAccount(student); ok {
			fullName = acc.FullName
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	objs, err := svc.uploadAll(ctx, folderID, names, files)
	if err != nil {
		return nil, err
	}

	now := NowFunc().UTC()
	subs := make([]document.Submission, len(objs))
	for i, obj := range objs {
		subs[i] = document.Submission{
			StudentUsername: student,
			RemoteFileID:    obj.ID,
			DisplayName:     names[i],
			SubmittedAt:     now,
		}
	}

	err = svc.store.Update(ctx, func(doc *document.Document) error {
		cls, a, err := lookup(doc, class, title)
		if err != nil {
			return err
		}
		a.Submissions = append(a.Submissions, subs...)
		cls.Assignments[title] = a
		return nil
	})
	if err != nil {
		svc.discard(ctx, objectIDs(objs)...)
		return nil, err
	}

	svc.notifySubmission(class, title, student, fullName, names)
	return subs, nil
}

func (svc *Service) notifySubmission(class, title, student, fullName string, files []string) {
	if svc.mailer == nil || len(svc.notify) == 0 {
		return
	}
	svc.mailer.SendMessages(&core.EmailMessage{
		To:           svc.notify,
		Subject:      fmt.Sprintf("New submission for %s / %s", class, title),
		TemplateName: submissionTemplate,
		TemplateData: map[string]interface{}{
			"Class":      class,
			"Assignment": title,
			"Student":    student,
			"FullName":   fullName,
			"Files":      files,
		},
	})
}

// RecordGradedFile stores graded files for a student in the graded folder and records them,
// in argument order. Either all files are recorded or none.
func (svc *Service) RecordGradedFile(ctx context.Context, class, title, student string, files ...core.Blob) ([]document.GradedFile, error) {
	names, err := storedNames(GradedPrefix+student+"_", files)
	if err != nil {
		return nil, err
	}

	var folderID string
	err = svc.store.View(ctx, func(doc *document.Document) error {
		if _, ok := doc.Users[student]; !ok {
			return errors.Wrapf(core.ErrNotFound, "student %q", student)
		}
		_, a, err := lookup(doc, class, title)
		folderID = a.GradedFolderID
		return err
	})
	if err != nil {
		return nil, err
	}

	objs, err := svc.uploadAll(ctx, folderID, names, files)
	if err != nil {
		return nil, err
	}

	graded := make([]document.GradedFile, len(objs))
	for i, obj := range objs {
		graded[i] = document.GradedFile{StudentUsername: student, RemoteFileID: obj.ID, DisplayName: names[i]}
	}

	err = svc.store.Update(ctx, func(doc *document.Document) error {
		cls, a, err := lookup(doc, class, title)
		if err != nil {
			return err
		}
		a.GradedFiles = append(a.GradedFiles, graded...)
		cls.Assignments[title] = a
		return nil
	})
	if err != nil {
		svc.discard(ctx, objectIDs(objs)...)
		return nil, err
	}
	return graded, nil
}

// Submissions returns the submissions of an assignment grouped by student, with their full names.
func (svc *Service) Submissions(ctx context.Context, class, title string) ([]StudentSubmissions, error) {
	var groups []StudentSubmissions
	err := svc.store.View(ctx, func(doc *document.Document) error {
		_, a, err := lookup(doc, class, title)
		if err != nil {
			return err
		}
		groups = GroupSubmissionsByStudent(a)
		for i := range groups {
			if acc, ok := doc.Users[groups[i].Student]; ok {
				groups[i].FullName = acc.FullName
			}
		}
		return nil
	})
	return groups, err
}

// StudentSubmissions returns what student submitted for an assignment.
func (svc *Service) StudentSubmissions(ctx context.Context, class, title, student string) ([]document.Submission, error) {
	var subs []document.Submission
	err := svc.store.View(ctx, func(doc *document.Document) error {
		_, a, err := lookup(doc, class, title)
		subs = FilterSubmissions(a, student)
		return err
	})
	return subs, err
}

// GradedFiles returns all graded files of an assignment.
func (svc *Service) GradedFiles(ctx context.Context, class, title string) ([]document.GradedFile, error) {
	a, err := svc.GetAssignment(ctx, class, title)
	return a.GradedFiles, err
}

// StudentGradedFiles returns the graded files returned to student for an assignment.
func (svc *Service) StudentGradedFiles(ctx context.Context, class, title, student string) ([]document.GradedFile, error) {
	var files []document.GradedFile
	err := svc.store.View(ctx, func(doc *document.Document) error {
		_, a, err := lookup(doc, class, title)
		files = FilterGradedFiles(a, student)
		return err
	})
	return files, err
}

// PromptPreview describes how the prompt of an assignment can be shown.
// Link prompts are read to resolve their preview URL.
func (svc *Service) PromptPreview(ctx context.Context, class, title string) (preview.Target, error) {
	a, err := svc.GetAssignment(ctx, class, title)
	if err != nil {
		return preview.Target{}, err
	}
	p := a.Prompt
	if !p.IsExternalLink {
		return preview.ForFile(p.RemoteFileID, p.DisplayName), nil
	}
	data, err := svc.objects.DownloadBlob(ctx, p.RemoteFileID)
	if err != nil {
		return preview.Target{}, errors.Wrap(err, "reading prompt link")
	}
	return preview.ForLink(p.RemoteFileID, p.DisplayName, string(data)), nil
}

// LookupFile finds a recorded file that id may read.
// Prompts are readable by everyone, submissions and graded files by teachers and their student.
// Files the document does not reference are not found.
func (svc *Service) LookupFile(ctx context.Context, id core.Identity, fileID string) (FileRef, error) {
	var (
		ref     FileRef
		allowed bool
	)
	err := svc.store.View(ctx, func(doc *document.Document) error {
		for _, cls := range doc.Classes {
			for _, a := range cls.Assignments {
				if a.Prompt.RemoteFileID == fileID {
					ref, allowed = FileRef{ID: fileID, Name: a.Prompt.DisplayName}, true
					return nil
				}
				for _, sub := range a.Submissions {
					if sub.RemoteFileID == fileID {
						ref = FileRef{ID: fileID, Name: sub.DisplayName}
						allowed = id.IsTeacher() || sub.StudentUsername == id.Username
						return nil
					}
				}
				for _, g := range a.GradedFiles {
					if g.RemoteFileID == fileID {
						ref = FileRef{ID: fileID, Name: g.DisplayName}
						allowed = id.IsTeacher() || g.StudentUsername == id.Username
						return nil
					}
				}
			}
		}
		return errors.Wrapf(core.ErrNotFound, "file %q", fileID)
	})
	if err != nil {
		return FileRef{}, err
	}
	if !allowed {
		return FileRef{}, errors.Wrapf(core.ErrForbidden, "file %q", fileID)
	}
	return ref, nil
}

// OpenFile returns the content of a recorded file that id may read.
func (svc *Service) OpenFile(ctx context.Context, id core.Identity, fileID string) (FileRef, []byte, error) {
	ref, err := svc.LookupFile(ctx, id, fileID)
	if err != nil {
		return FileRef{}, nil, err
	}
	data, err := svc.objects.DownloadBlob(ctx, fileID)
	if err != nil {
		return FileRef{}, nil, errors.Wrap(err, "downloading file")
	}
	return ref, data, nil
}
