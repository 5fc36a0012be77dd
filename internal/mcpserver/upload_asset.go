package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

const maxAssetSize = 10 << 20 // 10 MB

// imageExt maps the media types an image block can display to the
// extension the file is saved with.
var imageExt = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

var unsafeNameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

type uploadResult struct {
	SavedPath     string `json:"savedPath"`
	MarkdownImage string `json:"markdownImage"`
	InsertedInto  string `json:"insertedInto,omitempty"`
}

// asset is an image fetched for upload. ext comes from the declared media
// type and is empty when the source did not name one.
type asset struct {
	data []byte
	ext  string
}

func (s *Server) uploadAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	a, err := loadAsset(ctx, src)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := req.GetString("filename", "")
	if name == "" {
		name = nameFromSource(src, a.ext)
	}
	name = sanitizeFilename(name)
	if err := checkImage(a.data, name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := s.attachments.Read(name); err == nil {
		return mcp.NewToolResultError(fmt.Sprintf("file already exists: %s", name)), nil
	}
	if err := s.attachments.Write(name, a.data); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save attachment: %v", err)), nil
	}

	link := "/attachments/" + name
	caption := req.GetString("caption", "")
	if caption == "" {
		caption = name
	}
	res := uploadResult{
		SavedPath:     link,
		MarkdownImage: fmt.Sprintf("![%s](%s)", caption, link),
	}

	if title := req.GetString("note_title", ""); title != "" {
		n, err := s.svc.FindByTitle(ctx, title)
		if err != nil {
			return toolError(err), nil
		}
		if _, err := s.svc.InsertImage(ctx, n.ID, link, caption); err != nil {
			return toolError(err), nil
		}
		res.InsertedInto = n.ID
	}

	out, _ := json.Marshal(res)
	return mcp.NewToolResultText(string(out)), nil
}

// loadAsset reads src, a base64 data URI or an http(s) URL.
func loadAsset(ctx context.Context, src string) (*asset, error) {
	var (
		a   *asset
		err error
	)
	if rest, ok := strings.CutPrefix(src, "data:"); ok {
		a, err = decodeDataURI(rest)
	} else {
		a, err = fetchHTTP(ctx, src)
	}
	if err != nil {
		return nil, err
	}
	if len(a.data) > maxAssetSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", len(a.data), maxAssetSize)
	}
	return a, nil
}

// decodeDataURI decodes the part of a data URI after "data:". Only base64
// payloads of image types are accepted.
func decodeDataURI(rest string) (*asset, error) {
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errors.New("invalid data URI: missing comma separator")
	}
	meta, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, errors.New("only base64 data URIs are supported")
	}

	mediaType, _, _ := strings.Cut(meta, ";")
	ext, ok := imageExt[mediaType]
	if !ok {
		return nil, fmt.Errorf("unsupported media type in data URI: %q", mediaType)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	return &asset{data: data, ext: ext}, nil
}

// fetchHTTP downloads src. Loopback and metadata hosts are refused, also
// after redirects.
func fetchHTTP(ctx context.Context, src string) (*asset, error) {
	if err := validation.Validate(src, validation.Required, is.URL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	u, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s (only http/https)", u.Scheme)
	}
	if err := checkBlockedHost(u.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects (max 5)")
			}
			return checkBlockedHost(r.URL.Hostname())
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}

	mediaType, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	return &asset{data: data, ext: imageExt[strings.TrimSpace(mediaType)]}, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			// DNS failures surface from the request itself.
			return nil
		}
		ip = ips[0]
	}
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("blocked host: loopback address %s", host)
	case ip.Equal(net.IPv4(169, 254, 169, 254)):
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// nameFromSource uses the last path element of an http(s) URL when it has
// an extension, and a random name otherwise.
func nameFromSource(src, ext string) string {
	if !strings.HasPrefix(src, "data:") {
		if u, err := url.Parse(src); err == nil {
			if base := path.Base(u.Path); strings.Contains(base, ".") && base != "." {
				return base
			}
		}
	}
	if ext == "" {
		ext = ".png"
	}
	return uuid.NewString() + ext
}

// sanitizeFilename strips path separators and unsafe characters.
func sanitizeFilename(name string) string {
	name = unsafeNameRe.ReplaceAllString(filepath.Base(name), "_")
	if name == "" || name == "." {
		return uuid.NewString()
	}
	return name
}

// checkImage verifies that data is an image of the type name's extension
// claims.
func checkImage(data []byte, name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".jpeg" {
		ext = ".jpg"
	}

	if ext == ".svg" {
		head := data[:min(len(data), 1024)]
		if !bytes.Contains(head, []byte("<svg")) {
			return errors.New("content does not appear to be a valid SVG (missing <svg tag)")
		}
		return nil
	}

	known := false
	for _, e := range imageExt {
		known = known || e == ext
	}
	if !known {
		return fmt.Errorf("unsupported file extension %q (allowed: png, jpg, jpeg, gif, webp, svg)", ext)
	}

	detected := http.DetectContentType(data)
	mediaType, _, _ := strings.Cut(detected, ";")
	if imageExt[mediaType] != ext {
		return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
	}
	return nil
}
