package document

import "time"

type (
	// Document is the whole persisted state, written as a single JSON blob.
	Document struct {
		Users    map[string]Account `json:"users"`
		Admins   map[string]Account `json:"admins"`
		Sessions map[string]Session `json:"sessions"`
		Classes  map[string]Class   `json:"classes"`
	}

	Account struct {
		PasswordHash string `json:"passwordHash"`
		FullName     string `json:"fullName"`
		Role         string `json:"role"`
	}

	Session struct {
		Username string    `json:"username"`
		Role     string    `json:"role"`
		FullName string    `json:"fullName"`
		Expiry   time.Time `json:"expiry"`
	}

	Class struct {
		RemoteFolderID string                `json:"remoteFolderId"`
		Assignments    map[string]Assignment `json:"assignments"`
	}

	Assignment struct {
		RemoteFolderID      string       `json:"remoteFolderId"`
		SubmissionsFolderID string       `json:"submissionsFolderId"`
		GradedFolderID      string       `json:"gradedFolderId"`
		Prompt              Prompt       `json:"prompt"`
		Submissions         []Submission `json:"submissions"`
		GradedFiles         []GradedFile `json:"gradedFiles"`
	}

	Prompt struct {
		RemoteFileID   string `json:"remoteFileId"`
		DisplayName    string `json:"displayName"`
		IsExternalLink bool   `json:"isExternalLink"`
	}

	Submission struct {
		StudentUsername string    `json:"studentUsername"`
		RemoteFileID    string    `json:"remoteFileId"`
		DisplayName     string    `json:"displayName"`
		SubmittedAt     time.Time `json:"submittedAt"`
	}

	GradedFile struct {
		StudentUsername string `json:"studentUsername"`
		RemoteFileID    string `json:"remoteFileId"`
		DisplayName     string `json:"displayName"`
	}
)

// New returns an empty Document.
func New() *Document {
	return &Document{
		Users:    make(map[string]Account),
		Admins:   make(map[string]Account),
		Sessions: make(map[string]Session),
		Classes:  make(map[string]Class),
	}
}

// normalize replaces nil collections so that callers can write without checks.
func (d *Document) normalize() {
	if d.Users == nil {
		d.Users = make(map[string]Account)
	}
	if d.Admins == nil {
		d.Admins = make(map[string]Account)
	}
	if d.Sessions == nil {
		d.Sessions = make(map[string]Session)
	}
	if d.Classes == nil {
		d.Classes = make(map[string]Class)
	}
	for name, cls := range d.Classes {
		if cls.Assignments == nil {
			cls.Assignments = make(map[string]Assignment)
			d.Classes[name] = cls
		}
	}
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	c := &Document{
		Users:    make(map[string]Account, len(d.Users)),
		Admins:   make(map[string]Account, len(d.Admins)),
		Sessions: make(map[string]Session, len(d.Sessions)),
		Classes:  make(map[string]Class, len(d.Classes)),
	}
	for k, v := range d.Users {
		c.Users[k] = v
	}
	for k, v := range d.Admins {
		c.Admins[k] = v
	}
	for k, v := range d.Sessions {
		c.Sessions[k] = v
	}
	for name, cls := range d.Classes {
		c.Classes[name] = cls.clone()
	}
	return c
}

func (c Class) clone() Class {
	cc := Class{
		RemoteFolderID: c.RemoteFolderID,
		Assignments:    make(map[string]Assignment, len(c.Assignments)),
	}
	for title, a := range c.Assignments {
		cc.Assignments[title] = a.Clone()
	}
	return cc
}

// Clone returns a copy of a that shares no slices with it.
func (a Assignment) Clone() Assignment {
	ca := a
	if a.Submissions != nil {
		ca.Submissions = make([]Submission, len(a.Submissions))
		copy(ca.Submissions, a.Submissions)
	}
	if a.GradedFiles != nil {
		ca.GradedFiles = make([]GradedFile, len(a.GradedFiles))
		copy(ca.GradedFiles, a.GradedFiles)
	}
	return ca
}

// LookupAccount finds the account named username, checking admins first.
func (d *Document) LookupAccount(username string) (Account, bool) {
	if acc, ok := d.Admins[username]; ok {
		return acc, true
	}
	acc, ok := d.Users[username]
	return acc, ok
}

// HasAccount reports whether username is taken in either account map.
func (d *Document) HasAccount(username string) bool {
	_, ok := d.LookupAccount(username)
	return ok
}
