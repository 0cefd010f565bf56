package echoapi

import (
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/classroom"
)

var (
	filesField = "files"
	errNoFiles = core.NewValidationError(errors.New("no files"), core.FieldError{Field: filesField, Error: "at least one file is required"})
)

type classroomApi struct {
	svc      *classroom.Service
	validate *validator.Validate
}

func registerClassroomAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *classroom.Service, validate *validator.Validate) {
	api := classroomApi{
		svc:      svc,
		validate: validate,
	}
	teacher := roleMiddleware(core.RoleTeacher)
	student := roleMiddleware(core.RoleStudent)

	cg := g.Group("/classes", auth)
	cg.GET("", api.listClasses)
	cg.POST("", api.createClass, teacher)
	cg.DELETE("/:class", api.deleteClass, teacher)

	ag := cg.Group("/:class/assignments")
	ag.GET("", api.listAssignments)
	ag.POST("", api.createAssignment, teacher)
	ag.GET("/:title", api.retrieveAssignment)
	ag.DELETE("/:title", api.deleteAssignment, teacher)
	ag.GET("/:title/prompt", api.prompt)
	ag.GET("/:title/submissions", api.submissions)
	ag.POST("/:title/submissions", api.submit, student)
	ag.GET("/:title/graded", api.gradedFiles)
	ag.POST("/:title/graded/:student", api.returnGraded, teacher)

	g.GET("/files/:id", api.download, auth)
}

// pathParam returns the unescaped value of a path parameter.
func pathParam(ctx echo.Context, name string) string {
	val := ctx.Param(name)
	if unescaped, err := url.PathUnescape(val); err == nil {
		return unescaped
	}
	return val
}

// formFiles opens the files uploaded under field. The returned closer closes them all.
func formFiles(ctx echo.Context, field string) ([]core.Blob, func(), error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, func() {}, core.NewValidationError(err, core.FieldError{Field: field, Error: "multipart form expected"})
	}
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, func() {}, errNoFiles
	}

	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	blobs := make([]core.Blob, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, errors.Wrapf(err, "opening %q", fh.Filename)
		}
		opened = append(opened, f)
		blobs = append(blobs, core.Blob{Name: fh.Filename, Content: f})
	}
	return blobs, closeAll, nil
}

// Handlers

func (api *classroomApi) listClasses(ctx echo.Context) error {
	classes, err := api.svc.ListClasses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classroomApi) createClass(ctx echo.Context) error {
	var data classroom.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.CreateClass(ctx.Request().Context(), data.Name); err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, classroom.ClassSummary{Name: data.Name})
}

func (api *classroomApi) deleteClass(ctx echo.Context) error {
	if err := api.svc.DeleteClass(ctx.Request().Context(), pathParam(ctx, "class")); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classroomApi) listAssignments(ctx echo.Context) error {
	assignments, err := api.svc.ListAssignments(ctx.Request().Context(), pathParam(ctx, "class"))
	if err != nil {
		return errors.Wrap(err, "listing assignments")
	}
	return ctx.JSON(http.StatusOK, assignments)
}

// createAssignment reads a multipart form with a title and either a prompt file or a link.
func (api *classroomApi) createAssignment(ctx echo.Context) error {
	data := classroom.NewAssignment{Title: ctx.FormValue("title"), Link: ctx.FormValue("link")}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	var src classroom.PromptSource
	if data.Link != "" {
		src = classroom.ExternalLink{URL: data.Link}
	} else {
		fh, err := ctx.FormFile("file")
		if err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "file", Error: "a prompt file or link is required"})
		}
		f, err := fh.Open()
		if err != nil {
			return errors.Wrapf(err, "opening %q", fh.Filename)
		}
		defer f.Close()
		src = classroom.UploadedBlob{Name: fh.Filename, Content: f}
	}

	a, err := api.svc.CreateAssignment(ctx.Request().Context(), pathParam(ctx, "class"), data.Title, src)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

// retrieveAssignment only shows students their own submissions and graded files.
func (api *classroomApi) retrieveAssignment(ctx echo.Context) error {
	a, err := api.svc.GetAssignment(ctx.Request().Context(), pathParam(ctx, "class"), pathParam(ctx, "title"))
	if err != nil {
		return errors.Wrap(err, "getting assignment")
	}
	if id := contextIdentity(ctx); !id.IsTeacher() {
		a.Submissions = classroom.FilterSubmissions(a, id.Username)
		a.GradedFiles = classroom.FilterGradedFiles(a, id.Username)
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *classroomApi) deleteAssignment(ctx echo.Context) error {
	err := api.svc.DeleteAssignment(ctx.Request().Context(), pathParam(ctx, "class"), pathParam(ctx, "title"))
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classroomApi) prompt(ctx echo.Context) error {
	target, err := api.svc.PromptPreview(ctx.Request().Context(), pathParam(ctx, "class"), pathParam(ctx, "title"))
	if err != nil {
		return errors.Wrap(err, "resolving prompt preview")
	}
	return ctx.JSON(http.StatusOK, target)
}

// submissions returns all submissions grouped by student to teachers, and their own to students.
func (api *classroomApi) submissions(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	class, title := pathParam(ctx, "class"), pathParam(ctx, "title")

	if id := contextIdentity(ctx); !id.IsTeacher() {
		subs, err := api.svc.StudentSubmissions(reqCtx, class, title, id.Username)
		if err != nil {
			return errors.Wrap(err, "listing student submissions")
		}
		return ctx.JSON(http.StatusOK, subs)
	}
	groups, err := api.svc.Submissions(reqCtx, class, title)
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *classroomApi) submit(ctx echo.Context) error {
	files, closeFiles, err := formFiles(ctx, filesField)
	if err != nil {
		return err
	}
	defer closeFiles()

	id := contextIdentity(ctx)
	subs, err := api.svc.RecordSubmission(ctx.Request().Context(), pathParam(ctx, "class"), pathParam(ctx, "title"), id.Username, files...)
	if err != nil {
		return errors.Wrap(err, "recording submission")
	}
	return ctx.JSON(http.StatusCreated, subs)
}

func (api *classroomApi) gradedFiles(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	class, title := pathParam(ctx, "class"), pathParam(ctx, "title")

	if id := contextIdentity(ctx); !id.IsTeacher() {
		files, err := api.svc.StudentGradedFiles(reqCtx, class, title, id.Username)
		if err != nil {
			return errors.Wrap(err, "listing student graded files")
		}
		return ctx.JSON(http.StatusOK, files)
	}
	files, err := api.svc.GradedFiles(reqCtx, class, title)
	if err != nil {
		return errors.Wrap(err, "listing graded files")
	}
	return ctx.JSON(http.StatusOK, files)
}

func (api *classroomApi) returnGraded(ctx echo.Context) error {
	files, closeFiles, err := formFiles(ctx, filesField)
	if err != nil {
		return err
	}
	defer closeFiles()

	graded, err := api.svc.RecordGradedFile(
		ctx.Request().Context(), pathParam(ctx, "class"), pathParam(ctx, "title"), pathParam(ctx, "student"), files...,
	)
	if err != nil {
		return errors.Wrap(err, "recording graded files")
	}
	return ctx.JSON(http.StatusCreated, graded)
}

// inlineTypes are rendered by browsers without running scripts; anything else is downloaded.
var inlineTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// download serves a recorded file: pdf and images inline, everything else as an attachment.
func (api *classroomApi) download(ctx echo.Context) error {
	ref, data, err := api.svc.OpenFile(ctx.Request().Context(), contextIdentity(ctx), pathParam(ctx, "id"))
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	disposition := "attachment"
	contentType, ok := inlineTypes[strings.ToLower(path.Ext(ref.Name))]
	if ok {
		disposition = "inline"
	} else {
		contentType = echo.MIMEOctetStream
	}
	header := ctx.Response().Header()
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType(disposition, map[string]string{"filename": ref.Name}))
	header.Set(echo.HeaderXContentTypeOptions, "nosniff")
	return ctx.Blob(http.StatusOK, contentType, data)
}
