package forms

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"example.com/yatube/internal/models"
	_ "golang.org/x/image/webp"
)

const (
	MsgRequired      = "This field is required."
	MsgInvalidChoice = "Select a valid choice. That choice is not one of the available choices."
	MsgInvalidImage  = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."
	MsgImageTooLarge = "The uploaded image is too large."
	MsgUsername      = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	MsgUsernameTaken = "A user with that username already exists."
	MsgReserved      = "This username is reserved."
	MsgPasswordMatch = "The two password fields didn't match."
	MsgBadLogin      = "Please enter a correct username and password."
)

// Errors maps a field name to its message. "__all__" holds form-wide errors.
type Errors map[string]string

func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

func (e Errors) Get(field string) string { return e[field] }

// --- posts ---

// PostForm carries a submitted post exactly as entered so it can be
// re-rendered after a failed validation.
type PostForm struct {
	Text       string
	Group      string
	ClearImage bool
	Errors     Errors

	// set by Validate
	GroupID *int64

	image         []byte
	imageProvided bool
	imageTooLarge bool
	imageFormat   string
}

// ParsePostForm reads text, group, image and image-clear from a urlencoded or
// multipart body. Images larger than maxImageBytes are rejected by Validate.
func ParsePostForm(r *http.Request, maxImageBytes int64) (*PostForm, error) {
	f := &PostForm{Errors: Errors{}}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImageBytes + 1<<20); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}

	f.Text = r.PostFormValue("text")
	f.Group = strings.TrimSpace(r.PostFormValue("group"))
	f.ClearImage = r.PostFormValue("image-clear") != ""

	if r.MultipartForm == nil {
		return f, nil
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return f, nil
		}
		return nil, fmt.Errorf("read image: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	f.imageProvided = true
	if int64(len(data)) > maxImageBytes {
		f.imageTooLarge = true
		return f, nil
	}
	f.image = data
	return f, nil
}

// Validate checks the form against the available groups and reports
// whether it is valid. Errors are collected per field.
func (f *PostForm) Validate(groups []models.Group) bool {
	if f.Errors == nil {
		f.Errors = Errors{}
	}
	f.Text = strings.TrimSpace(f.Text)
	if f.Text == "" {
		f.Errors.Add("text", MsgRequired)
	}

	f.GroupID = nil
	if f.Group != "" {
		id, err := strconv.ParseInt(f.Group, 10, 64)
		found := false
		if err == nil {
			for _, g := range groups {
				if g.ID == id {
					found = true
					break
				}
			}
		}
		if found {
			f.GroupID = &id
		} else {
			f.Errors.Add("group", MsgInvalidChoice)
		}
	}

	if f.imageProvided {
		switch {
		case f.imageTooLarge:
			f.Errors.Add("image", MsgImageTooLarge)
		default:
			if format, ok := decodeImage(f.image); ok {
				f.imageFormat = format
			} else {
				f.Errors.Add("image", MsgInvalidImage)
			}
		}
	}

	return len(f.Errors) == 0
}

// maxImagePixels bounds the decoded size so a tiny header cannot force a huge allocation.
const maxImagePixels = 50_000_000

// decodeImage fully decodes data; a valid header over truncated or corrupt
// pixel data is rejected.
func decodeImage(data []byte) (string, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return "", false
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return "", false
	}
	_, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", false
	}
	return format, true
}

// HasImage reports whether a valid image was uploaded.
func (f *PostForm) HasImage() bool { return f.imageFormat != "" }

func (f *PostForm) ImageReader() io.Reader { return bytes.NewReader(f.image) }

// ImageExt is the file extension for the decoded format, dot included.
func (f *PostForm) ImageExt() string {
	if f.imageFormat == "jpeg" {
		return ".jpg"
	}
	return "." + f.imageFormat
}

func (f *PostForm) ImageContentType() string { return "image/" + f.imageFormat }

// PostFormFrom prefills the form for editing an existing post.
func PostFormFrom(p models.Post) *PostForm {
	f := &PostForm{Text: p.Text, Errors: Errors{}}
	if p.GroupID != nil {
		f.Group = strconv.FormatInt(*p.GroupID, 10)
	}
	return f
}

// --- comments ---

type CommentForm struct {
	Text   string
	Errors Errors
}

func ParseCommentForm(r *http.Request) (*CommentForm, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	return &CommentForm{Text: r.PostFormValue("text"), Errors: Errors{}}, nil
}

func (f *CommentForm) Validate() bool {
	if f.Errors == nil {
		f.Errors = Errors{}
	}
	f.Text = strings.TrimSpace(f.Text)
	if f.Text == "" {
		f.Errors.Add("text", MsgRequired)
	}
	return len(f.Errors) == 0
}

// --- auth ---

var usernameRe = regexp.MustCompile(`^[\w.@+-]{1,150}$`)

// ReservedUsernames collide with top-level routes.
var ReservedUsernames = map[string]bool{
	"new":    true,
	"follow": true,
	"group":  true,
	"auth":   true,
	"media":  true,
	"static": true,
}

type LoginForm struct {
	Username string
	Password string
	Next     string
	Errors   Errors
}

func ParseLoginForm(r *http.Request) (*LoginForm, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	return &LoginForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
		Next:     r.FormValue("next"),
		Errors:   Errors{},
	}, nil
}

func (f *LoginForm) Validate() bool {
	if f.Username == "" {
		f.Errors.Add("username", MsgRequired)
	}
	if f.Password == "" {
		f.Errors.Add("password", MsgRequired)
	}
	return len(f.Errors) == 0
}

type SignupForm struct {
	Username  string
	Password  string
	Password2 string
	Next      string
	Errors    Errors
}

func ParseSignupForm(r *http.Request) (*SignupForm, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	return &SignupForm{
		Username:  strings.TrimSpace(r.PostFormValue("username")),
		Password:  r.PostFormValue("password1"),
		Password2: r.PostFormValue("password2"),
		Next:      r.FormValue("next"),
		Errors:    Errors{},
	}, nil
}

func (f *SignupForm) Validate() bool {
	switch {
	case f.Username == "":
		f.Errors.Add("username", MsgRequired)
	case !usernameRe.MatchString(f.Username):
		f.Errors.Add("username", MsgUsername)
	case ReservedUsernames[strings.ToLower(f.Username)]:
		f.Errors.Add("username", MsgReserved)
	}
	if f.Password == "" {
		f.Errors.Add("password1", MsgRequired)
	}
	if f.Password2 == "" {
		f.Errors.Add("password2", MsgRequired)
	} else if f.Password != f.Password2 {
		f.Errors.Add("password2", MsgPasswordMatch)
	}
	return len(f.Errors) == 0
}

// SafeNext returns next if it is a local path, otherwise fallback.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}
