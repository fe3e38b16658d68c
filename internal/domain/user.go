package domain

// UserSnapshot is the cached subset of the profile needed for immediate display.
// It is replaced wholesale, never patched field by field.
type UserSnapshot struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Age    int     `json:"age,omitempty"`
	Weight float64 `json:"weight,omitempty"`
	Height float64 `json:"height,omitempty"`
	Goal   string  `json:"goal,omitempty"`
	Level  string  `json:"level,omitempty"`
}

// Valid reports whether the snapshot identifies a user.
func (u UserSnapshot) Valid() bool {
	return u.ID != ""
}

// ProfileStats holds the counters shown on the own-profile screen.
type ProfileStats struct {
	Workouts  int    `json:"treinos"`
	Followers int    `json:"seguidores"`
	Weight    string `json:"peso"`
}

// Profile is the full own profile returned by GET /users/me.
type Profile struct {
	UserSnapshot

	BirthDate    string        `json:"birthDate,omitempty"`
	ProfileImage string        `json:"profileImage,omitempty"`
	Stats        *ProfileStats `json:"stats,omitempty"`
}

// Snapshot returns the cacheable part of the profile.
func (p Profile) Snapshot() UserSnapshot {
	return p.UserSnapshot
}

// SignUpData holds the raw registration form input.
type SignUpData struct {
	Name      string
	Email     string
	Password  string
	BirthDate string // DD/MM/YYYY or YYYY-MM-DD
	Weight    string // kilograms, comma or dot decimal
	Height    string // centimeters, comma or dot decimal
	Goal      string
}

// RegisterRequest is the validated body of POST /users/register.
type RegisterRequest struct {
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	BirthDate string  `json:"birthDate"`
	Weight    float64 `json:"weight"`
	Height    float64 `json:"height"`
	Goal      string  `json:"goal"`
}

// ProfileUpdate holds the raw profile edit form input.
type ProfileUpdate struct {
	Name         string
	BirthDate    string // DD/MM/YYYY
	Height       string
	Goal         string
	ProfileImage string // data URI or URL, empty keeps the current image
}

// UpdateProfileRequest is the validated body of PUT /users/me.
type UpdateProfileRequest struct {
	Name         string  `json:"name"`
	BirthDate    string  `json:"birthDate"`
	Height       float64 `json:"height"`
	Goal         string  `json:"goal"`
	ProfileImage string  `json:"profileImage,omitempty"`
}

// FollowCounts holds the relation counters of a public profile.
type FollowCounts struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
	Posts     int `json:"posts"`
}

// PublicProfile is another user's profile as returned by GET /users/profile/:id.
type PublicProfile struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	ProfileImage string       `json:"profileImage,omitempty"`
	Goal         string       `json:"goal"`
	Level        string       `json:"level"`
	IsFollowing  bool         `json:"isFollowing"`
	Count        FollowCounts `json:"_count"`
}

// UserSummary is an entry of GET /users/search.
type UserSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProfileImage string `json:"profileImage,omitempty"`
}
