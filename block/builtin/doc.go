//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package builtin

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/gomutex/godocx"
	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"

	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/fileref"
	"trpc.group/trpc-go/trpc-flow-go/render"
)

type docExtractSettings struct {
	Content any    `json:"content,omitempty" jsonschema:"description=Document bytes, media descriptor, file reference or URL; omit to use the first upstream file"`
	Format  string `json:"format,omitempty" jsonschema:"description=Force the document format,enum=pdf,enum=docx,enum=markdown,enum=text"`
	Path    string `json:"path,omitempty" jsonschema:"description=Filename hint used for format detection"`
}

type docExtractOutput struct {
	Text   string `json:"text"`
	Format string `json:"format"`
}

// docExtractBlock pulls plain text out of a document: PDF, DOCX, markdown
// or raw text, detected from the filename and the content itself.
func docExtractBlock() block.Block {
	return block.New("doc.extract",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s docExtractSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			data, pathHint, mimeType, berr := resolveDocument(ctx, in, rc, s.Content)
			if berr != nil {
				return nil, berr
			}
			if len(data) == 0 {
				return nil, block.Configf("doc.extract: no document content resolved")
			}
			if s.Path != "" {
				pathHint = s.Path
			}

			format := strings.ToLower(s.Format)
			if format == "md" {
				format = "markdown"
			}
			if format == "" {
				format = detectDocFormat(pathHint, mimeType, data)
			}

			var text string
			switch format {
			case "pdf":
				extracted, err := extractPDFText(data)
				if err != nil {
					return nil, block.Configf("doc.extract: %v", err)
				}
				text = extracted
			case "docx":
				extracted, err := extractDOCXText(data)
				if err != nil {
					return nil, block.Configf("doc.extract: %v", err)
				}
				text = extracted
			case "markdown":
				text = extractMarkdownText(data)
			case "text":
				if decoded, ok := decodeTextBody(data, mimeType); ok {
					text = decoded
				} else {
					text = string(data)
				}
			default:
				return nil, block.Configf("doc.extract: unsupported format %q", format)
			}

			rc.Info(in.NodeID, "doc.extract: extracted "+format+" document", map[string]any{
				"format": format,
				"bytes":  len(data),
				"chars":  len(text),
			})
			return map[string]any{"text": text, "format": format}, nil
		},
		block.WithSummary("Extract plain text from PDF, DOCX, markdown or text documents"),
		block.WithSettings(docExtractSettings{}),
		block.WithOutput(docExtractOutput{}),
	)
}

// resolveDocument turns the content setting into document bytes plus a
// filename hint. A nil setting falls back to the first upstream file
// reference.
func resolveDocument(ctx context.Context, in *block.Input, rc *block.RunContext, content any) ([]byte, string, string, *block.Error) {
	switch t := content.(type) {
	case nil:
		ref, ok := fileref.FindInOutputs(in.Upstream)
		if !ok {
			return nil, "", "", block.Configf("doc.extract requires 'content' or an upstream file reference")
		}
		data, mimeType, berr := downloadRef(ctx, rc, ref)
		if berr != nil {
			return nil, "", "", berr
		}
		if ref.ContentType != "" {
			mimeType = ref.ContentType
		}
		return data, ref.Path, mimeType, nil
	case map[string]any:
		if media, ok := fileref.MediaFromMap(t); ok {
			if media.BytesB64 != "" {
				data, err := media.Bytes()
				if err != nil {
					return nil, "", "", block.Configf("doc.extract: decode media payload: %v", err)
				}
				return data, media.Filename, media.MIME, nil
			}
			data, mimeType, berr := fetchBytes(ctx, rc, media.URI)
			if berr != nil {
				return nil, "", "", berr
			}
			if media.MIME != "" {
				mimeType = media.MIME
			}
			return data, media.Filename, mimeType, nil
		}
		if ref, ok := fileref.FromMap(t); ok {
			data, mimeType, berr := downloadRef(ctx, rc, ref)
			if berr != nil {
				return nil, "", "", berr
			}
			if ref.ContentType != "" {
				mimeType = ref.ContentType
			}
			return data, ref.Path, mimeType, nil
		}
		return nil, "", "", block.Configf("doc.extract: content object is neither a media descriptor nor a file reference")
	case string:
		rendered := render.Render(t, renderContext(in))
		if strings.HasPrefix(rendered, "http://") || strings.HasPrefix(rendered, "https://") {
			data, mimeType, berr := fetchBytes(ctx, rc, rendered)
			if berr != nil {
				return nil, "", "", berr
			}
			return data, pathBase(rendered), mimeType, nil
		}
		data, mimeType, err := fileref.DecodeContent(rendered)
		if err != nil {
			return nil, "", "", block.Configf("doc.extract: %v", err)
		}
		return data, "", mimeType, nil
	default:
		return nil, "", "", block.Configf("doc.extract: unsupported content value")
	}
}

// detectDocFormat picks a format from the filename extension, the MIME
// type, then the content's magic bytes.
func detectDocFormat(pathHint, mimeType string, data []byte) string {
	switch strings.ToLower(filepath.Ext(pathHint)) {
	case ".pdf":
		return "pdf"
	case ".docx":
		return "docx"
	case ".md", ".markdown":
		return "markdown"
	}
	switch {
	case strings.Contains(mimeType, "pdf"):
		return "pdf"
	case strings.Contains(mimeType, "officedocument.wordprocessingml"):
		return "docx"
	case strings.Contains(mimeType, "markdown"):
		return "markdown"
	}
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return "pdf"
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return "docx"
	}
	return "text"
}

// extractPDFText concatenates the plain text of every readable page.
func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err == nil && text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// extractDOCXText reads word/document.xml out of the DOCX container and
// joins the w:t runs, breaking lines at paragraph ends.
func extractDOCXText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx container: %w", err)
	}
	var body io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("open document part: %w", err)
			}
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("word/document.xml not found")
	}
	defer body.Close()

	dec := xml.NewDecoder(body)
	var sb strings.Builder
	var inText bool
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document part: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "br":
				sb.WriteByte('\n')
			case "tab":
				sb.WriteByte('\t')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// extractMarkdownText parses markdown and walks the AST collecting text
// nodes, with a line break after each block.
func extractMarkdownText(data []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(gtext.NewReader(data))
	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch v := n.(type) {
			case *ast.Text:
				buf.Write(v.Text(data))
				if v.SoftLineBreak() || v.HardLineBreak() {
					buf.WriteByte('\n')
				}
			case *ast.String:
				buf.Write(v.Value)
			}
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock && buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimRight(buf.String(), "\n")
}

type docRenderSettings struct {
	Content string `json:"content" jsonschema:"description=Document body text; supports {{ }} expressions"`
	Title   string `json:"title,omitempty"`
	Format  string `json:"format,omitempty" jsonschema:"description=Output format,enum=pdf,enum=docx"`
	Path    string `json:"path,omitempty" jsonschema:"description=Object key for the rendered file; defaults under generated/"`
	Bucket  string `json:"bucket,omitempty"`
}

// docRenderBlock renders text into a PDF or DOCX document and saves it to
// the object store like file.save does.
func docRenderBlock() block.Block {
	return block.New("doc.render",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			if rc.Artifacts == nil {
				return nil, block.Dependencyf("doc.render requires an object store")
			}
			var s docRenderSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			if s.Content == "" {
				return nil, block.Configf("doc.render requires 'content'")
			}
			rctx := renderContext(in)
			content, err := strictRender(s.Content, rctx)
			if err != nil {
				return nil, err
			}
			title, err := strictRender(s.Title, rctx)
			if err != nil {
				return nil, err
			}

			format := strings.ToLower(s.Format)
			if format == "" {
				format = "pdf"
			}
			var data []byte
			var contentType string
			switch format {
			case "pdf":
				rendered, rerr := renderPDF(title, content)
				if rerr != nil {
					return nil, block.Internalf("doc.render: %v", rerr)
				}
				data, contentType = rendered, "application/pdf"
			case "docx":
				rendered, rerr := renderDOCX(title, content)
				if rerr != nil {
					return nil, block.Internalf("doc.render: %v", rerr)
				}
				data, contentType = rendered, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
			default:
				return nil, block.Configf("doc.render: unsupported format %q", format)
			}

			path := s.Path
			if path == "" {
				path = fmt.Sprintf("generated/%s-%d.%s", in.NodeID, time.Now().UnixNano(), format)
			}
			path, berr := renderStorePath("doc.render", path, rctx)
			if berr != nil {
				return nil, berr
			}

			ref, berr := persistUpload(ctx, in, rc, s.Bucket, path, data, contentType, false)
			if berr != nil {
				return nil, berr
			}
			rc.Info(in.NodeID, "doc.render: rendered "+format+" document", map[string]any{
				"path": ref.Path, "size": ref.Size, "format": format,
			})
			return map[string]any{"files": []any{ref.Map()}}, nil
		},
		block.WithSummary("Render text into a PDF or DOCX file in the object store"),
		block.WithSettings(docRenderSettings{}),
		block.WithOutput(filesOutput{}),
	)
}

// renderPDF lays out the title and body on A4 pages.
func renderPDF(title, content string) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	if title != "" {
		doc.SetFont("Helvetica", "B", 16)
		doc.MultiCell(0, 10, title, "", "L", false)
		doc.Ln(4)
	}
	doc.SetFont("Helvetica", "", 12)
	doc.MultiCell(0, 6, content, "", "L", false)
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// renderDOCX builds the document in memory and round-trips it through a
// temp file because the writer only saves to paths.
func renderDOCX(title, content string) ([]byte, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("new docx: %w", err)
	}
	if title != "" {
		doc.AddHeading(title, 0)
	}
	for _, line := range strings.Split(content, "\n") {
		doc.AddParagraph(line)
	}
	tmp, err := os.CreateTemp("", "docrender-*.docx")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)
	if err := doc.SaveTo(tmpPath); err != nil {
		return nil, fmt.Errorf("save docx: %w", err)
	}
	return os.ReadFile(tmpPath)
}
