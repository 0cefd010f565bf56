package classroom

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/document"
)

// Remote layout of an assignment folder.
const (
	SubmissionsFolder = "submissions"
	GradedFolder      = "graded"
	LinkExt           = ".link"
	GradedPrefix      = "GRADED_"
)

// NowFunc is mocked in tests.
var NowFunc = time.Now

type (
	// PromptSource is the material of an assignment: an UploadedBlob or an ExternalLink.
	PromptSource interface {
		promptSource()
	}

	UploadedBlob struct {
		Name    string
		Content io.Reader
	}

	// ExternalLink is stored as a small text blob named after the assignment.
	ExternalLink struct {
		URL string
	}
)

func (UploadedBlob) promptSource() {}
func (ExternalLink) promptSource() {}

// NewClass contains information needed to create a class.
type NewClass struct {
	Name string `json:"name" validate:"required,notblank,max=128,name_"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

// NewAssignment contains the form fields of an assignment; the prompt file comes separately.
type NewAssignment struct {
	Title string `json:"title" validate:"required,notblank,max=128,name_"`
	Link  string `json:"link" validate:"omitempty,url"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Link = core.CleanString(na.Link)
	return validate.Struct(na)
}

type (
	// StudentSubmissions are the submissions of one student, in submission order.
	StudentSubmissions struct {
		Student     string                `json:"student"`
		FullName    string                `json:"fullName,omitempty"`
		Submissions []document.Submission `json:"submissions"`
	}

	// ClassSummary is a listed class.
	ClassSummary struct {
		Name        string `json:"name"`
		Assignments int    `json:"assignments"`
	}

	// AssignmentSummary is a listed assignment.
	AssignmentSummary struct {
		Title       string          `json:"title"`
		Prompt      document.Prompt `json:"prompt"`
		Submissions int             `json:"submissions"`
		GradedFiles int             `json:"gradedFiles"`
	}

	// FileRef is a stored file an identity may download.
	FileRef struct {
		ID   string
		Name string
	}
)

// GroupSubmissionsByStudent partitions the submissions of a per student, in order of first appearance.
// Submissions without a student are skipped.
func GroupSubmissionsByStudent(a document.Assignment) []StudentSubmissions {
	groups := make([]StudentSubmissions, 0)
	index := make(map[string]int)
	for _, sub := range a.Submissions {
		if sub.StudentUsername == "" {
			continue
		}
		i, ok := index[sub.StudentUsername]
		if !ok {
			i = len(groups)
			index[sub.StudentUsername] = i
			groups = append(groups, StudentSubmissions{Student: sub.StudentUsername})
		}
		groups[i].Submissions = append(groups[i].Submissions, sub)
	}
	return groups
}

// FilterSubmissions returns the submissions of student in a.
func FilterSubmissions(a document.Assignment, student string) []document.Submission {
	subs := make([]document.Submission, 0)
	for _, sub := range a.Submissions {
		if sub.StudentUsername == student {
			subs = append(subs, sub)
		}
	}
	return subs
}

// FilterGradedFiles returns the graded files returned to student in a.
func FilterGradedFiles(a document.Assignment, student string) []document.GradedFile {
	files := make([]document.GradedFile, 0)
	for _, f := range a.GradedFiles {
		if f.StudentUsername == student {
			files = append(files, f)
		}
	}
	return files
}
