// Package scriptgen renders the downloadable folder-uploader script that
// submits images to the pipeline with a script-scoped bearer token.
package scriptgen

import (
	"bytes"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"text/template"
)

// ContentType is the media type of the rendered script.
const ContentType = "text/x-python"

// TokenBytes is the entropy of a script token before hex encoding.
const TokenBytes = 32

// ErrRender indicates the script could not be produced.
var ErrRender = errors.New("render uploader script")

//go:embed templates/uploader.py.tmpl
var templateFS embed.FS

var uploaderTemplate = template.Must(template.New("uploader.py.tmpl").
	Funcs(template.FuncMap{"quote": strconv.Quote}).
	ParseFS(templateFS, "templates/uploader.py.tmpl"))

// Params are the values baked into a script.
type Params struct {
	UploadURL string
	Token     string
}

// Render returns the script source for p.
func Render(p Params) ([]byte, error) {
	if p.UploadURL == "" || p.Token == "" {
		return nil, fmt.Errorf("%w: upload url and token are required", ErrRender)
	}
	var buf bytes.Buffer
	if err := uploaderTemplate.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	return buf.Bytes(), nil
}

// NewToken returns a fresh hex-encoded script token.
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: token: %w", ErrRender, err)
	}
	return hex.EncodeToString(b), nil
}

// Filename is the download name for a script issued to userID.
func Filename(userID string) string {
	prefix := userID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "sudea_uploader_" + prefix + ".py"
}
