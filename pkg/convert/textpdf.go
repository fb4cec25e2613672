package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"langgrade/pkg/domain"
)

type pdfDescription struct {
	Paper  string             `json:"paper"`
	Origin string             `json:"origin"`
	Pages  map[string]pdfPage `json:"pages"`
}

type pdfPage struct {
	Content pdfContent `json:"content"`
}

type pdfContent struct {
	Text []pdfText `json:"text"`
}

type pdfText struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  pdfFont    `json:"font"`
}

type pdfFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// writeTextPDF renders pages of plain text lines with pdfcpu using the
// layout's core font, so no font program is embedded. Characters outside
// Windows-1252 are replaced by pdfcpu.
func writeTextPDF(pages []Page, l Layout, meta domain.DocumentMetadata) ([]byte, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	desc := pdfDescription{
		Paper:  l.Paper,
		Origin: "LowerLeft",
		Pages:  make(map[string]pdfPage, len(pages)),
	}
	f := pdfFont{Name: l.Font, Size: int(l.FontSize)}
	for i, page := range pages {
		var content pdfContent
		y := l.PageHeight - l.Margin
		for _, line := range page {
			content.Text = append(content.Text, pdfText{Value: escapeText(line), Pos: [2]float64{l.Margin, y}, Font: f})
			y -= l.LineHeight
		}
		desc.Pages[strconv.Itoa(i+1)] = pdfPage{Content: content}
	}
	raw, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("encode page description: %w", err)
	}

	var buf bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(raw), &buf, pdfConfig()); err != nil {
		return nil, fmt.Errorf("create pdf: %w", err)
	}

	props := map[string]string{}
	if meta.Title != "" {
		props["Title"] = meta.Title
	}
	if meta.Creator != "" {
		props["Author"] = meta.Creator
	}
	if len(props) == 0 {
		return buf.Bytes(), nil
	}
	var out bytes.Buffer
	if err := api.AddProperties(bytes.NewReader(buf.Bytes()), &out, props, pdfConfig()); err != nil {
		return nil, fmt.Errorf("set document properties: %w", err)
	}
	return out.Bytes(), nil
}

// escapeText keeps '%' literal in pdfcpu text values, where %p, %P, %t and
// %v are placeholders and a run of n percent signs renders as n-1. A run
// directly before one of those letters is followed by a space.
func escapeText(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		b.WriteByte('%')
		for i < len(s) && s[i] == '%' {
			b.WriteByte('%')
			i++
		}
		if i < len(s) && strings.IndexByte("pPtv", s[i]) >= 0 {
			b.WriteByte(' ')
		}
		i--
	}
	return b.String()
}
