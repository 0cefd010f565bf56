package core

// Roles
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Identity is the authenticated account behind a session, resolved once at login.
type Identity struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	FullName string `json:"fullName"`
}

func (id Identity) IsTeacher() bool { return id.Role == RoleTeacher }

func (id Identity) IsStudent() bool { return id.Role == RoleStudent }
